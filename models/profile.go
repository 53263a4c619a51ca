package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProfile is the per-identity journey progress record.
// CompletedDays and Badges are append-only; CreatedAt is immutable once set.
type UserProfile struct {
	UserID        string                      `gorm:"primaryKey;size:64" json:"userId"`
	Nickname      string                      `gorm:"size:128" json:"nickname"`
	Handle        string                      `gorm:"size:128;index" json:"handle"`
	CurrentDay    int                         `gorm:"not null;default:1" json:"currentDay"`
	CompletedDays datatypes.JSONSlice[int]    `json:"completedDays"`
	Badges        datatypes.JSONSlice[string] `json:"badges"`
	FCMToken      *string                     `gorm:"size:512;index" json:"fcmToken,omitempty"`
	CreatedAt     time.Time                   `json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

// HasBadge reports whether the badge was already awarded.
func (p *UserProfile) HasBadge(badge string) bool {
	for _, b := range p.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// MaxCompletedDay returns the highest completed day, or 0 when none.
func (p *UserProfile) MaxCompletedDay() int {
	highest := 0
	for _, d := range p.CompletedDays {
		if d > highest {
			highest = d
		}
	}
	return highest
}
