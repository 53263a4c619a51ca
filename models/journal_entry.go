package models

import "time"

// JournalEntry is a reflection written when a journey day is completed. Never mutated after creation.
type JournalEntry struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	UserID     string    `gorm:"size:64;index;not null" json:"userId"`
	Day        int       `gorm:"not null" json:"day"`
	Reflection string    `gorm:"type:text;not null" json:"reflection"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
