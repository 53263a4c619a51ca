package journey

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/internal/testutil"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/store"
)

func TestCatalogLoadsTwelveWeeks(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)
	assert.Len(t, c.Weeks(), 12)
	assert.Equal(t, 84, c.TotalDays())
	for _, w := range c.Weeks() {
		for i, d := range w.Days {
			assert.Equal(t, i+1, d.Day, "week %d", w.Number)
			assert.NotEmpty(t, d.Verse)
			assert.NotEmpty(t, d.VerseReference)
			assert.NotEmpty(t, d.Reflection)
		}
	}
}

func TestCatalogToday(t *testing.T) {
	c := MustLoadCatalog()

	first := c.Today(1)
	assert.Equal(t, 1, first.Week)
	assert.Equal(t, 1, first.DayInWeek)
	assert.Equal(t, "Foundations of Freedom", first.WeekTitle)

	seventh := c.Today(7)
	assert.Equal(t, 1, seventh.Week)
	assert.Equal(t, 7, seventh.DayInWeek)

	eighth := c.Today(8)
	assert.Equal(t, 2, eighth.Week)
	assert.Equal(t, 1, eighth.DayInWeek)
	assert.Equal(t, "Romans 12:2", eighth.Card.VerseReference)

	done := c.Today(85)
	assert.True(t, done.Finished)
	assert.Equal(t, 12, done.Week)
	assert.Equal(t, 7, done.DayInWeek)
	assert.Equal(t, 85, done.Day)

	assert.Equal(t, 1, c.Today(0).Week)
}

func TestRescuePanel(t *testing.T) {
	c := MustLoadCatalog()

	panel := c.RescuePanel(nil)
	assert.Equal(t, "1 Corinthians 10:13", panel.Scripture.Reference)
	assert.Contains(t, panel.Prayer, "Lord, I'm struggling right now")
	assert.Len(t, panel.Steps, 6)
	require.NotEmpty(t, panel.Worship)
	assert.Contains(t, panel.Worship[0].URL, "open.spotify.com/playlist/5c9j2CzRpK9KCEWJYCclx0")
	assert.Equal(t, "Philippians 4:13", panel.Encouragement.Reference)

	random := c.RescuePanel(rand.New(rand.NewSource(7)))
	assert.Contains(t, c.Rescue().Prayers, random.Prayer)
}

type countingJournal struct {
	calls int
}

func (j *countingJournal) Add(context.Context, *models.JournalEntry) error {
	j.calls++
	return nil
}

type failingProgress struct {
	*store.ProfileStore
}

func (failingProgress) AppendProgress(context.Context, string, int) (*models.UserProfile, error) {
	return nil, store.ErrUnavailable
}

type fixture struct {
	profiles *store.ProfileStore
	journal  *store.JournalStore
	events   *testutil.EventRecorder
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	f := &fixture{
		profiles: store.NewProfileStore(db),
		journal:  store.NewJournalStore(db, nil),
		events:   &testutil.EventRecorder{},
	}
	f.svc = NewService(MustLoadCatalog(), f.journal, f.profiles, nil, f.events, nil)
	_, err := f.profiles.Create(context.Background(), &models.UserProfile{UserID: "u1", Nickname: "Guest 1", Handle: "FreeLight#9"})
	require.NoError(t, err)
	return f
}

func TestRecordDayCompletionRejectsEmptyReflectionBeforeWriting(t *testing.T) {
	journal := &countingJournal{}
	svc := NewService(MustLoadCatalog(), journal, nil, nil, nil, nil)

	for _, text := range []string{"", "   ", "<script>alert(1)</script>", "\n\t"} {
		_, err := svc.RecordDayCompletion(context.Background(), "u1", 1, text)
		assert.ErrorIs(t, err, ErrEmptyReflection, "input %q", text)
	}
	assert.Zero(t, journal.calls)
}

func TestRecordDayCompletionRejectsDayOutsideJourney(t *testing.T) {
	journal := &countingJournal{}
	svc := NewService(MustLoadCatalog(), journal, nil, nil, nil, nil)

	_, err := svc.RecordDayCompletion(context.Background(), "u1", 0, "thanks")
	assert.ErrorIs(t, err, ErrInvalidDay)
	_, err = svc.RecordDayCompletion(context.Background(), "u1", 85, "thanks")
	assert.ErrorIs(t, err, ErrInvalidDay)
	assert.Zero(t, journal.calls)
}

func TestRecordDayCompletionAppendsJournalThenProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RecordDayCompletion(ctx, "u1", 1, "  I prayed <b>before</b> work  ")
	require.NoError(t, err)
	assert.Equal(t, "I prayed before work", res.Entry.Reflection)
	assert.NotEmpty(t, res.Entry.ID)
	require.NotNil(t, res.Profile)
	assert.Equal(t, 2, res.Profile.CurrentDay)
	assert.Empty(t, res.BadgeAwarded)

	entries, err := f.journal.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Day)

	p, err := f.profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, []int(p.CompletedDays))
	assert.Equal(t, 2, p.CurrentDay)
	assert.Equal(t, []string{events.TypeDayCompleted}, f.events.Types())
}

func TestRecordDayCompletionAwardsWeekBadgeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RecordDayCompletion(ctx, "u1", 7, "one week down")
	require.NoError(t, err)
	assert.Equal(t, "week-1", res.BadgeAwarded)
	assert.Contains(t, []string(res.Profile.Badges), "week-1")

	again, err := f.svc.RecordDayCompletion(ctx, "u1", 7, "revisiting day seven")
	require.NoError(t, err)
	assert.Empty(t, again.BadgeAwarded)

	p, err := f.profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"week-1"}, []string(p.Badges))
	assert.Equal(t, 8, p.CurrentDay)
}

func TestRecordDayCompletionKeepsEntryWhenProgressFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(MustLoadCatalog(), f.journal, failingProgress{f.profiles}, nil, f.events, nil)

	res, err := svc.RecordDayCompletion(ctx, "u1", 3, "kept going")
	require.NoError(t, err)
	assert.True(t, errors.Is(res.ProgressErr, store.ErrUnavailable))
	assert.Nil(t, res.Profile)

	entries, err := f.journal.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	p, err := f.profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentDay)
	assert.Empty(t, f.events.Types())
}

func TestRepairProgressRaisesButNeverLowers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.Put(ctx, &models.UserProfile{
		UserID: "behind", CurrentDay: 2, CompletedDays: []int{1, 2, 3},
	}))
	res, err := f.svc.RepairProgress(ctx, "behind")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Before)
	assert.Equal(t, 4, res.After)

	require.NoError(t, f.profiles.Put(ctx, &models.UserProfile{
		UserID: "ahead", CurrentDay: 10, CompletedDays: []int{1, 2},
	}))
	res, err = f.svc.RepairProgress(ctx, "ahead")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 10, res.After)

	_, err = f.svc.RepairProgress(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
