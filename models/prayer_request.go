package models

import "time"

// PrayerRequest is a community post. UserHandle is a snapshot of the author's handle at post time.
type PrayerRequest struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	UserID      string    `gorm:"size:64;index;not null" json:"userId"`
	UserHandle  string    `gorm:"size:128" json:"userHandle"`
	Request     string    `gorm:"type:text;not null" json:"request"`
	PrayerCount int64     `gorm:"not null;default:0" json:"prayerCount"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}
