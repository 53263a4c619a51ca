package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novojourney/novo/models"
)

// JournalStore is the append-only collection of reflections.
type JournalStore struct {
	db   *gorm.DB
	feed *Feed
}

// NewJournalStore builds the store. feed may be nil.
func NewJournalStore(db *gorm.DB, feed *Feed) *JournalStore {
	return &JournalStore{db: db, feed: feed}
}

// Add appends e, assigning an ID when missing. A preset CreatedAt is kept.
func (s *JournalStore) Add(ctx context.Context, e *models.JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return classify(err)
	}
	payload, _ := json.Marshal(e)
	s.feed.Publish(ctx, ChangeEvent{Topic: TopicJournal, Kind: KindCreated, ID: e.ID, UserID: e.UserID, Payload: payload})
	return nil
}

// ListByUser returns the user's entries, newest first.
func (s *JournalStore) ListByUser(ctx context.Context, userID string) ([]models.JournalEntry, error) {
	var out []models.JournalEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, classify(err)
}

// DeleteByUser removes every entry owned by userID.
func (s *JournalStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.JournalEntry{})
	return res.RowsAffected, classify(res.Error)
}

// Count returns the total number of entries.
func (s *JournalStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.JournalEntry{}).Count(&n).Error
	return n, classify(err)
}

// CountByUser returns how many entries userID has written.
func (s *JournalStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.JournalEntry{}).Where("user_id = ?", userID).Count(&n).Error
	return n, classify(err)
}
