package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novojourney/novo/models"
)

// PrayerStore holds community prayer requests.
type PrayerStore struct {
	db   *gorm.DB
	feed *Feed
}

// NewPrayerStore builds the store. feed may be nil.
func NewPrayerStore(db *gorm.DB, feed *Feed) *PrayerStore {
	return &PrayerStore{db: db, feed: feed}
}

// Add appends r, assigning an ID when missing.
func (s *PrayerStore) Add(ctx context.Context, r *models.PrayerRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.PrayerCount < 0 {
		r.PrayerCount = 0
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return classify(err)
	}
	payload, _ := json.Marshal(r)
	s.feed.Publish(ctx, ChangeEvent{Topic: TopicPrayers, Kind: KindCreated, ID: r.ID, UserID: r.UserID, Payload: payload})
	return nil
}

// Get loads one request.
func (s *PrayerStore) Get(ctx context.Context, id string) (*models.PrayerRequest, error) {
	var r models.PrayerRequest
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &r, nil
}

// List pages through requests, newest first.
func (s *PrayerStore) List(ctx context.Context, limit, offset int) ([]models.PrayerRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.PrayerRequest
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, classify(err)
}

// ListByUser returns requests posted by userID, newest first.
func (s *PrayerStore) ListByUser(ctx context.Context, userID string) ([]models.PrayerRequest, error) {
	var out []models.PrayerRequest
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, classify(err)
}

// Increment adds one to prayerCount in a single SQL expression so concurrent
// callers never lose updates. It returns the count read back afterwards.
func (s *PrayerStore) Increment(ctx context.Context, id string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PrayerRequest{}).
		Where("id = ?", id).
		UpdateColumn("prayer_count", gorm.Expr("prayer_count + ?", 1))
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	payload, _ := json.Marshal(r)
	s.feed.Publish(ctx, ChangeEvent{Topic: TopicPrayers, Kind: KindPrayedFor, ID: id, UserID: r.UserID, Payload: payload})
	return r.PrayerCount, nil
}

// DeleteByUser removes every request owned by userID.
func (s *PrayerStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.PrayerRequest{})
	return res.RowsAffected, classify(res.Error)
}

// Totals returns the number of requests and the sum of prayers offered.
func (s *PrayerStore) Totals(ctx context.Context) (requests int64, prayers int64, err error) {
	var row struct {
		Requests int64
		Prayers  int64
	}
	err = s.db.WithContext(ctx).Model(&models.PrayerRequest{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(prayer_count), 0) AS prayers").
		Scan(&row).Error
	return row.Requests, row.Prayers, classify(err)
}
