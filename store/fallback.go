package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/novojourney/novo/models"
)

// ProfileView is a profile together with where it came from.
type ProfileView struct {
	Profile *models.UserProfile
	// Created is true when this call created the profile.
	Created bool
	// Degraded is true when the database could not be reached and the offline copy was used.
	Degraded bool
}

// FallbackProfiles reads and writes profiles through the database, keeping an
// offline copy current. When the database is unavailable it serves or records
// the offline copy instead and flags the result as degraded.
type FallbackProfiles struct {
	store  *ProfileStore
	cache  *ProfileCache
	logger *zap.Logger
}

func NewFallbackProfiles(store *ProfileStore, cache *ProfileCache, logger *zap.Logger) *FallbackProfiles {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackProfiles{store: store, cache: cache, logger: logger}
}

// Get loads the profile, falling back to the offline copy on store failure.
func (f *FallbackProfiles) Get(ctx context.Context, userID string) (ProfileView, error) {
	p, err := f.store.Get(ctx, userID)
	if err == nil {
		f.Remember(ctx, p)
		return ProfileView{Profile: p}, nil
	}
	if errors.Is(err, ErrNotFound) {
		return ProfileView{}, err
	}
	return f.degradedRead(ctx, userID, err)
}

// Ensure returns the existing profile for seed.UserID or creates it from seed.
// An existing profile is never modified.
func (f *FallbackProfiles) Ensure(ctx context.Context, seed *models.UserProfile) (ProfileView, error) {
	created, err := f.store.Create(ctx, seed)
	if err != nil {
		if view, cerr := f.degradedRead(ctx, seed.UserID, err); cerr == nil {
			return view, nil
		}
		// nothing cached either: keep the seed locally so the session can continue
		if perr := f.cache.Put(ctx, seed); perr != nil {
			f.logger.Warn("offline profile write failed", zap.String("user_id", seed.UserID), zap.Error(perr))
			return ProfileView{}, err
		}
		return ProfileView{Profile: seed, Created: true, Degraded: true}, nil
	}
	if created {
		f.Remember(ctx, seed)
		return ProfileView{Profile: seed, Created: true}, nil
	}
	view, err := f.Get(ctx, seed.UserID)
	view.Created = false
	return view, err
}

// Put writes p to the database and the offline copy.
func (f *FallbackProfiles) Put(ctx context.Context, p *models.UserProfile) error {
	err := f.store.Put(ctx, p)
	f.Remember(ctx, p)
	return err
}

// Remember refreshes the offline copy. Failures are logged only.
func (f *FallbackProfiles) Remember(ctx context.Context, p *models.UserProfile) {
	if p == nil {
		return
	}
	if err := f.cache.Put(ctx, p); err != nil {
		f.logger.Warn("offline profile write failed", zap.String("user_id", p.UserID), zap.Error(err))
	}
}

// Rekey moves the offline copy from one identity to another.
func (f *FallbackProfiles) Rekey(ctx context.Context, from, to string) (bool, error) {
	return f.cache.Rekey(ctx, from, to)
}

// Forget drops the offline copy.
func (f *FallbackProfiles) Forget(ctx context.Context, userID string) error {
	return f.cache.Delete(ctx, userID)
}

func (f *FallbackProfiles) degradedRead(ctx context.Context, userID string, cause error) (ProfileView, error) {
	cached, ok, err := f.cache.Get(ctx, userID)
	if err != nil || !ok {
		return ProfileView{}, cause
	}
	f.logger.Warn("profile store unavailable, serving offline copy",
		zap.String("user_id", userID), zap.Error(cause))
	return ProfileView{Profile: cached, Degraded: true}, nil
}
