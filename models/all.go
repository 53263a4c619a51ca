package models

// All lists every persisted model, in auto-migration order.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&UserProfile{},
		&JournalEntry{},
		&PrayerRequest{},
		&Donation{},
	}
}
