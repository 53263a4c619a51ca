// Package migration copies everything an anonymous identity owns onto the
// durable identity it was upgraded to.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/store"
)

// ErrMissingDestination is returned when no destination identity is given.
var ErrMissingDestination = errors.New("migration: destination user id is required")

// Profiles is the profile record access the migration needs.
type Profiles interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	Put(ctx context.Context, p *models.UserProfile) error
}

// Journal is the journal collection access the migration needs.
type Journal interface {
	ListByUser(ctx context.Context, userID string) ([]models.JournalEntry, error)
	Add(ctx context.Context, e *models.JournalEntry) error
}

// Prayers is the prayer collection access the migration needs.
type Prayers interface {
	ListByUser(ctx context.Context, userID string) ([]models.PrayerRequest, error)
	Add(ctx context.Context, r *models.PrayerRequest) error
}

// OfflineCache re-keys the offline profile copy.
type OfflineCache interface {
	Rekey(ctx context.Context, from, to string) (bool, error)
}

// Result reports what a migration did. Completed is false when any step failed.
type Result struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Skipped       bool   `json:"skipped"`
	ProfileCopied bool   `json:"profileCopied"`
	JournalCopied int    `json:"journalCopied"`
	PrayersCopied int    `json:"prayersCopied"`
	CacheRekeyed  bool   `json:"cacheRekeyed"`
	Completed     bool   `json:"completed"`
}

// Service copies profile, journal and prayer data between identities.
//
// Rows are copied, never moved, and nothing marks them as migrated: running the
// same pair twice duplicates journal and prayer rows. Callers invoke it once
// per anonymous to durable transition.
type Service struct {
	profiles Profiles
	journal  Journal
	prayers  Prayers
	cache    OfflineCache
	events   events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the migration. cache and publisher may be nil.
func NewService(profiles Profiles, journal Journal, prayers Prayers, cache OfflineCache, publisher events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		profiles: profiles,
		journal:  journal,
		prayers:  prayers,
		cache:    cache,
		events:   publisher,
		logger:   logger,
		now:      time.Now,
	}
}

// Migrate copies from's data onto to. Each step runs regardless of the others
// failing; all step errors are combined into the returned error.
func (s *Service) Migrate(ctx context.Context, from, to string) (Result, error) {
	res := Result{From: from, To: to}
	if to == "" {
		return res, ErrMissingDestination
	}
	if from == "" || from == to {
		res.Skipped = true
		res.Completed = true
		return res, nil
	}

	var errs error
	errs = multierr.Append(errs, s.copyProfile(ctx, from, to, &res))
	errs = multierr.Append(errs, s.copyJournal(ctx, from, to, &res))
	errs = multierr.Append(errs, s.copyPrayers(ctx, from, to, &res))
	errs = multierr.Append(errs, s.rekeyCache(ctx, from, to, &res))
	res.Completed = errs == nil

	fields := []zap.Field{
		zap.String("from", from),
		zap.String("to", to),
		zap.Bool("profile", res.ProfileCopied),
		zap.Int("journal", res.JournalCopied),
		zap.Int("prayers", res.PrayersCopied),
	}
	if errs != nil {
		s.logger.Warn("account migration incomplete", append(fields, zap.Error(errs))...)
	} else {
		s.logger.Info("account migrated", fields...)
	}

	ev := events.New(events.TypeAccountMigrated, to, map[string]string{
		"from":      from,
		"completed": fmt.Sprint(res.Completed),
	})
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish migration event failed", zap.Error(err))
	}
	return res, errs
}

func (s *Service) copyProfile(ctx context.Context, from, to string, res *Result) error {
	src, err := s.profiles.Get(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read source profile: %w", err)
	}
	dst := *src
	dst.UserID = to
	dst.CompletedDays = append([]int{}, src.CompletedDays...)
	dst.Badges = append([]string{}, src.Badges...)
	// nil keeps any token the destination already holds; this device re-registers
	dst.FCMToken = nil
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = s.now()
	}
	if err := s.profiles.Put(ctx, &dst); err != nil {
		return fmt.Errorf("write destination profile: %w", err)
	}
	res.ProfileCopied = true
	return nil
}

func (s *Service) copyJournal(ctx context.Context, from, to string, res *Result) error {
	entries, err := s.journal.ListByUser(ctx, from)
	if err != nil {
		return fmt.Errorf("scan journal: %w", err)
	}
	var errs error
	for _, e := range entries {
		cp := models.JournalEntry{
			UserID:     to,
			Day:        e.Day,
			Reflection: e.Reflection,
			CreatedAt:  e.CreatedAt,
		}
		if err := s.journal.Add(ctx, &cp); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("copy journal entry %s: %w", e.ID, err))
			continue
		}
		res.JournalCopied++
	}
	return errs
}

func (s *Service) copyPrayers(ctx context.Context, from, to string, res *Result) error {
	requests, err := s.prayers.ListByUser(ctx, from)
	if err != nil {
		return fmt.Errorf("scan prayer requests: %w", err)
	}
	var errs error
	for _, r := range requests {
		cp := models.PrayerRequest{
			UserID:      to,
			UserHandle:  r.UserHandle,
			Request:     r.Request,
			PrayerCount: r.PrayerCount,
			CreatedAt:   r.CreatedAt,
		}
		if err := s.prayers.Add(ctx, &cp); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("copy prayer request %s: %w", r.ID, err))
			continue
		}
		res.PrayersCopied++
	}
	return errs
}

func (s *Service) rekeyCache(ctx context.Context, from, to string, res *Result) error {
	if s.cache == nil {
		return nil
	}
	moved, err := s.cache.Rekey(ctx, from, to)
	if err != nil {
		return fmt.Errorf("rekey offline profile: %w", err)
	}
	res.CacheRekeyed = moved
	return nil
}
