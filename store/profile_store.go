package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/novojourney/novo/models"
)

// ProfileStore persists one UserProfile per identity.
type ProfileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Get loads the profile for userID.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

// Create inserts p unless a profile already exists for p.UserID, in which case
// nothing is written and created is false.
func (s *ProfileStore) Create(ctx context.Context, p *models.UserProfile) (bool, error) {
	if p.CurrentDay < 1 {
		p.CurrentDay = 1
	}
	if p.CompletedDays == nil {
		p.CompletedDays = []int{}
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Put writes p in full, replacing whatever is stored under p.UserID.
// CreatedAt is taken from p as given; a zero value becomes now. A nil
// FCMToken leaves the stored token alone, use ClearPushToken to drop one.
func (s *ProfileStore) Put(ctx context.Context, p *models.UserProfile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cols := []string{"nickname", "handle", "current_day", "completed_days", "badges", "created_at", "updated_at"}
	if p.FCMToken != nil {
		cols = append(cols, "fcm_token")
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(p).Error
	return classify(err)
}

// AppendProgress appends day to completedDays and advances currentDay to day+1.
// currentDay never moves backwards.
func (s *ProfileStore) AppendProgress(ctx context.Context, userID string, day int) (*models.UserProfile, error) {
	var out models.UserProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "user_id = ?", userID).Error; err != nil {
			return err
		}
		out.CompletedDays = append(out.CompletedDays, day)
		if day+1 > out.CurrentDay {
			out.CurrentDay = day + 1
		}
		return tx.Model(&out).Select("completed_days", "current_day").Updates(&out).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

// SetCurrentDay raises currentDay to day. Lower values are ignored.
func (s *ProfileStore) SetCurrentDay(ctx context.Context, userID string, day int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ? AND current_day < ?", userID, day).
		Update("current_day", day)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AddBadge appends badge unless already awarded. It reports whether it was added.
func (s *ProfileStore) AddBadge(ctx context.Context, userID, badge string) (bool, error) {
	added := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.UserProfile
		if err := tx.First(&p, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if p.HasBadge(badge) {
			return nil
		}
		p.Badges = append(p.Badges, badge)
		added = true
		return tx.Model(&p).Select("badges").Updates(&p).Error
	})
	if err != nil {
		return false, classify(err)
	}
	return added, nil
}

// UpdateNickname changes the display nickname.
func (s *ProfileStore) UpdateNickname(ctx context.Context, userID, nickname string) error {
	res := s.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("nickname", nickname)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPushToken stores the push-delivery token, last write wins.
func (s *ProfileStore) SetPushToken(ctx context.Context, userID, token string) error {
	res := s.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("fcm_token", token)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearPushToken removes token from every profile holding it.
func (s *ProfileStore) ClearPushToken(ctx context.Context, token string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("fcm_token = ?", token).
		Update("fcm_token", nil)
	return res.RowsAffected, classify(res.Error)
}

// ListWithPushToken returns every profile with a non-empty push token.
func (s *ProfileStore) ListWithPushToken(ctx context.Context) ([]models.UserProfile, error) {
	var out []models.UserProfile
	err := s.db.WithContext(ctx).
		Where("fcm_token IS NOT NULL AND fcm_token <> ''").
		Find(&out).Error
	return out, classify(err)
}

// List pages through all profiles ordered by user id.
func (s *ProfileStore) List(ctx context.Context, limit, offset int) ([]models.UserProfile, error) {
	var out []models.UserProfile
	err := s.db.WithContext(ctx).Order("user_id").Limit(limit).Offset(offset).Find(&out).Error
	return out, classify(err)
}

// Delete removes the profile. Deleting a missing profile is not an error.
func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	return classify(s.db.WithContext(ctx).Delete(&models.UserProfile{}, "user_id = ?", userID).Error)
}

// Count returns the number of profiles.
func (s *ProfileStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UserProfile{}).Count(&n).Error
	return n, classify(err)
}
