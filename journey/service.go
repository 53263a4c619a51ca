package journey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/utils"
)

var (
	ErrEmptyReflection = errors.New("reflection text is required")
	ErrInvalidDay      = errors.New("day is outside the journey")
)

// JournalWriter appends reflections.
type JournalWriter interface {
	Add(ctx context.Context, e *models.JournalEntry) error
}

// ProgressStore is the slice of the profile store that day completion touches.
type ProgressStore interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	AppendProgress(ctx context.Context, userID string, day int) (*models.UserProfile, error)
	SetCurrentDay(ctx context.Context, userID string, day int) (bool, error)
	AddBadge(ctx context.Context, userID, badge string) (bool, error)
}

// OfflineCopy keeps the device-side copy of a profile fresh.
type OfflineCopy interface {
	Remember(ctx context.Context, p *models.UserProfile)
}

// Completion is the outcome of a recorded day.
type Completion struct {
	Entry        *models.JournalEntry `json:"entry"`
	Profile      *models.UserProfile  `json:"profile,omitempty"`
	BadgeAwarded string               `json:"badgeAwarded,omitempty"`

	// ProgressErr is set when the journal entry was written but the progress bump failed.
	ProgressErr error `json:"-"`
}

// Repair reports what RepairProgress changed.
type Repair struct {
	UserID  string `json:"userId"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
	Changed bool   `json:"changed"`
}

// Service records day completions against the journal and profile stores.
type Service struct {
	catalog   *Catalog
	journal   JournalWriter
	progress  ProgressStore
	cache     OfflineCopy
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService wires a Service. cache and publisher may be nil.
func NewService(catalog *Catalog, journal JournalWriter, progress ProgressStore, cache OfflineCopy, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:   catalog,
		journal:   journal,
		progress:  progress,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
	}
}

// Catalog exposes the content the service validates days against.
func (s *Service) Catalog() *Catalog { return s.catalog }

// RecordDayCompletion appends a journal entry for day, then advances the profile.
// The two writes are not atomic; a failed progress bump is returned alongside the
// written entry and can be fixed later by RepairProgress.
func (s *Service) RecordDayCompletion(ctx context.Context, userID string, day int, reflection string) (*Completion, error) {
	text := utils.SanitizeText(reflection)
	if text == "" {
		return nil, ErrEmptyReflection
	}
	if day < 1 || (s.catalog != nil && day > s.catalog.TotalDays()) {
		return nil, ErrInvalidDay
	}

	entry := &models.JournalEntry{
		UserID:     userID,
		Day:        day,
		Reflection: text,
		CreatedAt:  time.Now(),
	}
	if err := s.journal.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("save journal entry: %w", err)
	}

	out := &Completion{Entry: entry}
	profile, err := s.progress.AppendProgress(ctx, userID, day)
	if err != nil {
		s.logger.Warn("progress update failed after journal write",
			zap.String("user_id", userID), zap.Int("day", day), zap.Error(err))
		out.ProgressErr = err
		return out, nil
	}

	if day%DaysPerWeek == 0 {
		badge := "week-" + strconv.Itoa(day/DaysPerWeek)
		added, err := s.progress.AddBadge(ctx, userID, badge)
		switch {
		case err != nil:
			s.logger.Warn("badge award failed", zap.String("user_id", userID), zap.String("badge", badge), zap.Error(err))
		case added:
			out.BadgeAwarded = badge
			profile.Badges = append(profile.Badges, badge)
		}
	}
	out.Profile = profile

	if s.cache != nil {
		s.cache.Remember(ctx, profile)
	}
	attrs := map[string]string{"day": strconv.Itoa(day), "current_day": strconv.Itoa(profile.CurrentDay)}
	if out.BadgeAwarded != "" {
		attrs["badge"] = out.BadgeAwarded
	}
	if err := s.publisher.Publish(ctx, events.New(events.TypeDayCompleted, userID, attrs)); err != nil {
		s.logger.Warn("publish day.completed failed", zap.Error(err))
	}
	return out, nil
}

// RepairProgress recomputes currentDay as max(completedDays)+1 without ever lowering it.
func (s *Service) RepairProgress(ctx context.Context, userID string) (Repair, error) {
	p, err := s.progress.Get(ctx, userID)
	if err != nil {
		return Repair{UserID: userID}, err
	}
	res := Repair{UserID: userID, Before: p.CurrentDay, After: p.CurrentDay}
	want := p.MaxCompletedDay() + 1
	if want <= p.CurrentDay {
		return res, nil
	}
	changed, err := s.progress.SetCurrentDay(ctx, userID, want)
	if err != nil {
		return res, err
	}
	if changed {
		res.After = want
		res.Changed = true
		p.CurrentDay = want
		if s.cache != nil {
			s.cache.Remember(ctx, p)
		}
	}
	return res, nil
}
