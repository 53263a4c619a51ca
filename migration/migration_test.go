package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/internal/testutil"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/store"
)

type fixture struct {
	profiles *store.ProfileStore
	journal  *store.JournalStore
	prayers  *store.PrayerStore
	cache    *store.ProfileCache
	events   *testutil.EventRecorder
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	f := &fixture{
		profiles: store.NewProfileStore(db),
		journal:  store.NewJournalStore(db, nil),
		prayers:  store.NewPrayerStore(db, nil),
		cache:    store.NewProfileCache(nil),
		events:   &testutil.EventRecorder{},
	}
	f.svc = NewService(f.profiles, f.journal, f.prayers, f.cache, f.events, nil)
	return f
}

func (f *fixture) seedAnonymous(t *testing.T, id string) *models.UserProfile {
	t.Helper()
	ctx := context.Background()
	token := "device-token"
	p := &models.UserProfile{
		UserID:        id,
		Nickname:      "Guest 1234",
		Handle:        "BravePilgrim#42",
		CurrentDay:    5,
		CompletedDays: []int{1, 2, 3, 4},
		Badges:        []string{},
		FCMToken:      &token,
		CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, f.profiles.Put(ctx, p))
	for day, text := range map[int]string{1: "I surrendered today", 2: "Called a friend"} {
		require.NoError(t, f.journal.Add(ctx, &models.JournalEntry{UserID: id, Day: day, Reflection: text}))
	}
	require.NoError(t, f.prayers.Add(ctx, &models.PrayerRequest{UserID: id, UserHandle: p.Handle, Request: "pray for my family", PrayerCount: 2}))
	return p
}

func reflectionsByDay(entries []models.JournalEntry) map[int]string {
	out := map[int]string{}
	for _, e := range entries {
		out[e.Day] = e.Reflection
	}
	return out
}

func TestMigrateCopiesAndKeepsSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.seedAnonymous(t, "anon")
	require.NoError(t, f.cache.Put(ctx, src))

	res, err := f.svc.Migrate(ctx, "anon", "google-user")
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.True(t, res.ProfileCopied)
	assert.Equal(t, 2, res.JournalCopied)
	assert.Equal(t, 1, res.PrayersCopied)
	assert.True(t, res.CacheRekeyed)

	dst, err := f.profiles.Get(ctx, "google-user")
	require.NoError(t, err)
	assert.Equal(t, 5, dst.CurrentDay)
	assert.Equal(t, []int{1, 2, 3, 4}, []int(dst.CompletedDays))
	assert.Equal(t, "BravePilgrim#42", dst.Handle)
	assert.True(t, src.CreatedAt.Equal(dst.CreatedAt))
	assert.Nil(t, dst.FCMToken)

	// source untouched
	still, err := f.profiles.Get(ctx, "anon")
	require.NoError(t, err)
	assert.Equal(t, 5, still.CurrentDay)
	assert.Equal(t, []int{1, 2, 3, 4}, []int(still.CompletedDays))

	srcEntries, err := f.journal.ListByUser(ctx, "anon")
	require.NoError(t, err)
	dstEntries, err := f.journal.ListByUser(ctx, "google-user")
	require.NoError(t, err)
	assert.Len(t, srcEntries, 2)
	assert.Equal(t, reflectionsByDay(srcEntries), reflectionsByDay(dstEntries))

	dstPrayers, err := f.prayers.ListByUser(ctx, "google-user")
	require.NoError(t, err)
	require.Len(t, dstPrayers, 1)
	assert.Equal(t, int64(2), dstPrayers[0].PrayerCount)
	srcPrayers, err := f.prayers.ListByUser(ctx, "anon")
	require.NoError(t, err)
	assert.Len(t, srcPrayers, 1)

	_, ok, err := f.cache.Get(ctx, "anon")
	require.NoError(t, err)
	assert.False(t, ok)
	cached, ok, err := f.cache.Get(ctx, "google-user")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, cached.CurrentDay)

	assert.Equal(t, []string{events.TypeAccountMigrated}, f.events.Types())
}

func TestMigrateTwiceDuplicatesRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAnonymous(t, "anon")

	_, err := f.svc.Migrate(ctx, "anon", "durable")
	require.NoError(t, err)
	_, err = f.svc.Migrate(ctx, "anon", "durable")
	require.NoError(t, err)

	entries, err := f.journal.ListByUser(ctx, "durable")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	prayers, err := f.prayers.ListByUser(ctx, "durable")
	require.NoError(t, err)
	assert.Len(t, prayers, 2)
}

func TestMigrateSkipsWithoutSourceOrSameIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAnonymous(t, "same")

	res, err := f.svc.Migrate(ctx, "", "durable")
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	res, err = f.svc.Migrate(ctx, "same", "same")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	entries, err := f.journal.ListByUser(ctx, "same")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = f.svc.Migrate(ctx, "same", "")
	assert.ErrorIs(t, err, ErrMissingDestination)
	assert.Empty(t, f.events.Types())
}

func TestMigrateWithoutSourceProfileStillCopiesRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.journal.Add(ctx, &models.JournalEntry{UserID: "anon", Day: 1, Reflection: "first"}))

	res, err := f.svc.Migrate(ctx, "anon", "durable")
	require.NoError(t, err)
	assert.False(t, res.ProfileCopied)
	assert.Equal(t, 1, res.JournalCopied)

	_, err = f.profiles.Get(ctx, "durable")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type brokenJournal struct{ Journal }

func (brokenJournal) ListByUser(context.Context, string) ([]models.JournalEntry, error) {
	return nil, errors.New("connection reset")
}

func TestMigrateIsBestEffortAcrossSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAnonymous(t, "anon")
	svc := NewService(f.profiles, brokenJournal{}, f.prayers, f.cache, f.events, nil)

	res, err := svc.Migrate(ctx, "anon", "durable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan journal")
	assert.False(t, res.Completed)

	// the other steps still ran
	assert.True(t, res.ProfileCopied)
	assert.Equal(t, 1, res.PrayersCopied)
	_, err = f.profiles.Get(ctx, "durable")
	require.NoError(t, err)
}

func TestMigrateIntoExistingProfileCarriesSourceCreatedAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.seedAnonymous(t, "anon")
	other := "token-from-laptop"
	require.NoError(t, f.profiles.Put(ctx, &models.UserProfile{
		UserID:     "durable",
		Nickname:   "Ruth",
		CurrentDay: 1,
		FCMToken:   &other,
		CreatedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}))

	res, err := f.svc.Migrate(ctx, "anon", "durable")
	require.NoError(t, err)
	assert.True(t, res.ProfileCopied)

	dst, err := f.profiles.Get(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, 5, dst.CurrentDay)
	assert.Equal(t, "Guest 1234", dst.Nickname)
	assert.True(t, src.CreatedAt.Equal(dst.CreatedAt), "createdAt not carried over: %v", dst.CreatedAt)
	require.NotNil(t, dst.FCMToken)
	assert.Equal(t, other, *dst.FCMToken)
}
