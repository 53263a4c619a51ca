package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/identity"
	"github.com/novojourney/novo/internal/testutil"
	"github.com/novojourney/novo/migration"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/push"
	"github.com/novojourney/novo/store"
	"github.com/novojourney/novo/utils"
)

type fakeExchanger struct {
	profiles map[string]*identity.FederatedProfile
}

func (f *fakeExchanger) AuthCodeURL(state string) string { return "https://accounts.example/?state=" + state }

func (f *fakeExchanger) Exchange(_ context.Context, code string) (*identity.FederatedProfile, error) {
	p, ok := f.profiles[code]
	if !ok {
		return nil, errors.New("unknown code")
	}
	return p, nil
}

type failingMigrator struct{ calls int }

func (m *failingMigrator) Migrate(_ context.Context, from, to string) (migration.Result, error) {
	m.calls++
	return migration.Result{From: from, To: to}, errors.New("journal scan failed")
}

// sameIDProvider upgrades the anonymous identity in place.
type sameIDProvider struct {
	identity.Provider
	id string
}

func (p sameIDProvider) SignInWithPassword(context.Context, identity.PasswordCredential) (identity.Identity, error) {
	return identity.Identity{ID: p.id, Provider: models.ProviderPassword, Email: "kept@example.com"}, nil
}

type env struct {
	accounts *identity.AccountProvider
	profiles *store.ProfileStore
	journal  *store.JournalStore
	prayers  *store.PrayerStore
	fallback *store.FallbackProfiles
	events   *testutil.EventRecorder
	deps     Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	e := &env{
		profiles: store.NewProfileStore(db),
		journal:  store.NewJournalStore(db, nil),
		prayers:  store.NewPrayerStore(db, nil),
		events:   &testutil.EventRecorder{},
	}
	cache := store.NewProfileCache(nil)
	e.fallback = store.NewFallbackProfiles(e.profiles, cache, nil)
	e.accounts = identity.NewAccountProvider(db, utils.NewTokenBlacklist(nil), map[string]identity.Exchanger{
		models.ProviderGoogle: &fakeExchanger{profiles: map[string]*identity.FederatedProfile{
			"code-ruth": {Subject: "g-ruth", Email: "ruth@example.com", DisplayName: "Ruth"},
		}},
	}, nil)
	e.deps = Deps{
		Identity:     e.accounts,
		Profiles:     e.fallback,
		Migrator:     migration.NewService(e.profiles, e.journal, e.prayers, e.fallback, e.events, nil),
		Push:         push.NewRegistrar(e.profiles, nil),
		ProfileRows:  e.profiles,
		Journal:      e.journal,
		Prayers:      e.prayers,
		Events:       e.events,
		NewHandle:    func() string { return "BravePilgrim#7" },
		NewGuestName: func() string { return "Guest 0007" },
	}
	return e
}

func TestAnonymousSignInCreatesGuestProfile(t *testing.T) {
	e := newEnv(t)
	o := New(e.deps)
	assert.Equal(t, StatusUnauthenticated, o.State().Status)

	out, err := o.SignInAnonymously(context.Background())
	require.NoError(t, err)
	assert.True(t, out.ProfileCreated)
	assert.Nil(t, out.Migration)
	assert.Equal(t, StatusAnonymous, out.State.Status)
	require.NotNil(t, out.State.Profile)
	assert.Equal(t, "Guest 0007", out.State.Profile.Nickname)
	assert.Equal(t, "BravePilgrim#7", out.State.Profile.Handle)
	assert.Equal(t, 1, out.State.Profile.CurrentDay)
	assert.False(t, out.State.Loading)
	assert.Equal(t, []string{events.TypeProfileCreated}, e.events.Types())
}

func TestResumeIsIdempotentForExistingProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	anon, err := e.accounts.SignInAnonymous(ctx)
	require.NoError(t, err)

	first, err := New(e.deps).Resume(ctx, anon)
	require.NoError(t, err)
	require.NotNil(t, first.Profile)

	deps := e.deps
	deps.NewHandle = func() string { return "FreeLight#1" }
	second, err := New(deps).Resume(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, StatusAnonymous, second.Status)
	assert.Equal(t, first.Profile.Handle, second.Profile.Handle)
}

func TestGoogleUpgradeMigratesAnonymousProgress(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := New(e.deps)

	anon, err := o.SignInAnonymously(ctx)
	require.NoError(t, err)
	anonID := anon.State.Identity.ID
	for day := 1; day <= 4; day++ {
		_, err := e.profiles.AppendProgress(ctx, anonID, day)
		require.NoError(t, err)
	}
	require.NoError(t, e.journal.Add(ctx, &models.JournalEntry{UserID: anonID, Day: 3, Reflection: "held on"}))
	require.NoError(t, e.journal.Add(ctx, &models.JournalEntry{UserID: anonID, Day: 4, Reflection: "prayed first"}))

	out, err := o.SignInWithFederatedProvider(ctx, identity.FederatedCredential{
		Provider: models.ProviderGoogle, Code: "code-ruth",
	}, "fcm-device-1")
	require.NoError(t, err)
	assert.NoError(t, out.MigrationWarning)
	require.NotNil(t, out.Migration)
	assert.True(t, out.Migration.Completed)
	assert.Equal(t, 2, out.Migration.JournalCopied)

	st := out.State
	assert.Equal(t, StatusAuthenticated, st.Status)
	assert.NotEqual(t, anonID, st.Identity.ID)
	require.NotNil(t, st.Profile)
	assert.Equal(t, 5, st.Profile.CurrentDay)
	assert.False(t, out.ProfileCreated)
	assert.True(t, out.Push.Registered)

	migrated, err := e.journal.ListByUser(ctx, st.Identity.ID)
	require.NoError(t, err)
	assert.Len(t, migrated, 2)
	original, err := e.journal.ListByUser(ctx, anonID)
	require.NoError(t, err)
	assert.Len(t, original, 2)

	stored, err := e.profiles.Get(ctx, st.Identity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FCMToken)
	assert.Equal(t, "fcm-device-1", *stored.FCMToken)
}

func TestMigrationFailureDoesNotBlockSignIn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := &failingMigrator{}
	e.deps.Migrator = m
	o := New(e.deps)

	_, err := o.SignInAnonymously(ctx)
	require.NoError(t, err)
	out, err := o.CreateAccountWithPassword(ctx, identity.PasswordCredential{Email: "Naomi@Example.com", Password: "secret12"})
	require.NoError(t, err)

	assert.Equal(t, 1, m.calls)
	assert.Error(t, out.MigrationWarning)
	assert.Equal(t, StatusAuthenticated, out.State.Status)
	require.NotNil(t, out.State.Profile)
	assert.Equal(t, "naomi", out.State.Profile.Nickname)
	assert.True(t, out.ProfileCreated)
}

func TestSameIdentifierUpgradeSkipsMigration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := &failingMigrator{}
	e.deps.Migrator = m

	anon, err := e.accounts.SignInAnonymous(ctx)
	require.NoError(t, err)
	e.deps.Identity = sameIDProvider{Provider: e.accounts, id: anon.ID}
	o := New(e.deps)
	_, err = o.Resume(ctx, anon)
	require.NoError(t, err)

	out, err := o.SignInWithPassword(ctx, identity.PasswordCredential{Email: "kept@example.com", Password: "whatever"})
	require.NoError(t, err)
	assert.Zero(t, m.calls)
	assert.Nil(t, out.Migration)
	assert.Equal(t, StatusAuthenticated, out.State.Status)
	assert.Equal(t, anon.ID, out.State.Identity.ID)
}

func TestFailedSignInKeepsState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := New(e.deps)
	_, err := o.SignInAnonymously(ctx)
	require.NoError(t, err)
	before := o.State()

	_, err = o.SignInWithPassword(ctx, identity.PasswordCredential{Email: "nobody@example.com", Password: "secret12"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredential)
	_, err = o.SignInWithFederatedProvider(ctx, identity.FederatedCredential{Provider: models.ProviderGoogle, Error: "popup_closed"}, "")
	assert.ErrorIs(t, err, identity.ErrFederatedCancelled)

	after := o.State()
	assert.Equal(t, before.Identity, after.Identity)
	assert.False(t, after.Loading)
}

func TestWatcherSeesTransitions(t *testing.T) {
	e := newEnv(t)
	o := New(e.deps)
	w := o.Subscribe()

	first := <-w.Events()
	assert.Equal(t, StatusUnauthenticated, first.Status)

	_, err := o.SignInAnonymously(context.Background())
	require.NoError(t, err)

	loading := <-w.Events()
	assert.True(t, loading.Loading)
	done := <-w.Events()
	assert.Equal(t, StatusAnonymous, done.Status)
	assert.False(t, done.Loading)

	require.NoError(t, o.SignOut(context.Background(), "", time.Time{}))
	out := <-w.Events()
	assert.Equal(t, StatusUnauthenticated, out.Status)
	assert.Nil(t, out.Profile)

	w.Stop()
	w.Stop()
	_, open := <-w.Events()
	assert.False(t, open)
}

func TestDeleteAccountCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := New(e.deps)

	out, err := o.CreateAccountWithPassword(ctx, identity.PasswordCredential{Email: "leah@example.com", Password: "secret12"})
	require.NoError(t, err)
	uid := out.State.Identity.ID
	require.NoError(t, e.journal.Add(ctx, &models.JournalEntry{UserID: uid, Day: 1, Reflection: "first"}))
	require.NoError(t, e.prayers.Add(ctx, &models.PrayerRequest{UserID: uid, UserHandle: "BravePilgrim#7", Request: "strength"}))
	require.NoError(t, e.journal.Add(ctx, &models.JournalEntry{UserID: "someone-else", Day: 1, Reflection: "untouched"}))

	rep, err := o.DeleteAccount(ctx, "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.JournalDeleted)
	assert.Equal(t, int64(1), rep.PrayersDeleted)
	assert.Equal(t, StatusUnauthenticated, o.State().Status)

	_, err = e.profiles.Get(ctx, uid)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = e.accounts.Lookup(ctx, uid)
	assert.ErrorIs(t, err, identity.ErrUnknownIdentity)
	others, err := e.journal.ListByUser(ctx, "someone-else")
	require.NoError(t, err)
	assert.Len(t, others, 1)
	assert.Contains(t, e.events.Types(), events.TypeAccountDeleted)

	_, err = o.DeleteAccount(ctx, "", time.Time{})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGenerateHandleShape(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z][a-z]+[A-Z][a-z]+#([1-9]\d{0,3})$`)
	for i := 0; i < 200; i++ {
		assert.Regexp(t, re, GenerateHandle())
	}
	assert.Regexp(t, `^Guest \d{4}$`, GenerateGuestName())
}
