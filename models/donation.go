package models

import "time"

// Donation records a payment-gateway transaction initiated from the donate page.
type Donation struct {
	ReferenceNumber string    `gorm:"primaryKey;size:128" json:"referenceNumber"`
	Amount          float64   `gorm:"not null" json:"amount"`
	Currency        string    `gorm:"size:8;not null" json:"currency"`
	Reason          string    `gorm:"size:255" json:"reason"`
	Status          string    `gorm:"size:32;index" json:"status"`
	RedirectURL     string    `gorm:"size:1024" json:"redirectUrl"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
