package models

import (
	"time"

	"gorm.io/gorm"
)

// Identity providers an Account can originate from.
const (
	ProviderAnonymous = "anonymous"
	ProviderGoogle    = "google"
	ProviderPassword  = "password"
)

// Account is a sign-in identity. Its ID is the stable user identifier shared by
// the profile, journal and prayer tables. Passwords are stored as bcrypt hashes only.
// ProviderID is unique per provider: the federated subject, the lowercased
// email for password accounts, the account ID for anonymous ones.
type Account struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Anonymous    bool      `gorm:"not null;default:false" json:"anonymous"`
	Provider     string    `gorm:"size:32;uniqueIndex:idx_account_provider_subject" json:"provider"`
	ProviderID   string    `gorm:"size:255;uniqueIndex:idx_account_provider_subject" json:"provider_id"`
	Email        string    `gorm:"size:255;index" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	DisplayName  string    `gorm:"size:128" json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return nil
}
