// Package session turns identity provider results into a signed-in session:
// it creates profiles, migrates anonymous data on upgrade and tracks the
// observable {identity, profile} state.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/identity"
	"github.com/novojourney/novo/migration"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/push"
	"github.com/novojourney/novo/store"
)

// Status is the position in the session state machine.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAnonymous       Status = "anonymous"
	StatusAuthenticated   Status = "authenticated"
)

var ErrNoSession = errors.New("no active session")

// State is the observable view of a session.
type State struct {
	Status   Status              `json:"status"`
	Identity identity.Identity   `json:"identity"`
	Profile  *models.UserProfile `json:"profile,omitempty"`
	Loading  bool                `json:"loading"`
	Degraded bool                `json:"degraded"`
}

// Outcome describes a completed sign-in.
type Outcome struct {
	State          State
	ProfileCreated bool
	// Migration is set when an anonymous session was upgraded to a different identity.
	Migration *migration.Result
	// MigrationWarning carries a migration failure. Sign-in still succeeded.
	MigrationWarning error
	Push             push.RegistrationResult
}

// DeleteReport counts what DeleteAccount removed.
type DeleteReport struct {
	UserID         string `json:"userId"`
	JournalDeleted int64  `json:"journalDeleted"`
	PrayersDeleted int64  `json:"prayersDeleted"`
}

// Profiles is the fallback-aware profile access the orchestrator needs.
type Profiles interface {
	Ensure(ctx context.Context, seed *models.UserProfile) (store.ProfileView, error)
	Get(ctx context.Context, userID string) (store.ProfileView, error)
	Forget(ctx context.Context, userID string) error
}

// Migrator copies anonymous data onto a durable identity.
type Migrator interface {
	Migrate(ctx context.Context, from, to string) (migration.Result, error)
}

// Registrar stores device push tokens.
type Registrar interface {
	Register(ctx context.Context, userID, token string) push.RegistrationResult
}

// Eraser deletes every row a user owns in one collection.
type Eraser interface {
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// ProfileDeleter removes the stored profile row.
type ProfileDeleter interface {
	Delete(ctx context.Context, userID string) error
}

// Deps are the collaborators shared by every Orchestrator.
type Deps struct {
	Identity    identity.Provider
	Profiles    Profiles
	Migrator    Migrator
	Push        Registrar
	ProfileRows ProfileDeleter
	Journal     Eraser
	Prayers     Eraser
	Events      events.Publisher
	Logger      *zap.Logger
	// NewHandle and NewGuestName default to the random generators below.
	NewHandle    func() string
	NewGuestName func() string
}

// Orchestrator is one client's session. It is cheap; build one per request or connection.
type Orchestrator struct {
	deps Deps

	mu       sync.Mutex
	state    State
	watchers map[*Watcher]struct{}
}

// New returns an Orchestrator in the Unauthenticated state.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.NewHandle == nil {
		deps.NewHandle = GenerateHandle
	}
	if deps.NewGuestName == nil {
		deps.NewGuestName = GenerateGuestName
	}
	return &Orchestrator{
		deps:     deps,
		state:    State{Status: StatusUnauthenticated},
		watchers: make(map[*Watcher]struct{}),
	}
}

// State returns a snapshot of the current session.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Resume restores a session for an identity already known from a session token.
func (o *Orchestrator) Resume(ctx context.Context, id identity.Identity) (State, error) {
	if id.ID == "" {
		o.set(State{Status: StatusUnauthenticated})
		return o.State(), nil
	}
	view, err := o.deps.Profiles.Get(ctx, id.ID)
	if errors.Is(err, store.ErrNotFound) {
		view, err = o.deps.Profiles.Ensure(ctx, o.seedFor(id))
	}
	st := State{Status: statusFor(id), Identity: id, Profile: view.Profile, Degraded: view.Degraded}
	if err != nil {
		o.deps.Logger.Warn("profile unavailable on resume", zap.String("user_id", id.ID), zap.Error(err))
		st.Degraded = true
	}
	o.set(st)
	return st, nil
}

// SignInAnonymously starts a guest session.
func (o *Orchestrator) SignInAnonymously(ctx context.Context) (Outcome, error) {
	return o.signIn(ctx, "", func(ctx context.Context) (identity.Identity, error) {
		return o.deps.Identity.SignInAnonymous(ctx)
	})
}

// SignInWithFederatedProvider completes a provider consent flow. pushToken, when
// given, is registered best-effort once sign-in succeeds.
func (o *Orchestrator) SignInWithFederatedProvider(ctx context.Context, cred identity.FederatedCredential, pushToken string) (Outcome, error) {
	return o.signIn(ctx, pushToken, func(ctx context.Context) (identity.Identity, error) {
		return o.deps.Identity.SignInWithFederated(ctx, cred)
	})
}

// SignInWithPassword signs in an existing email account.
func (o *Orchestrator) SignInWithPassword(ctx context.Context, cred identity.PasswordCredential) (Outcome, error) {
	return o.signIn(ctx, "", func(ctx context.Context) (identity.Identity, error) {
		return o.deps.Identity.SignInWithPassword(ctx, cred)
	})
}

// CreateAccountWithPassword registers a new email account and signs it in.
func (o *Orchestrator) CreateAccountWithPassword(ctx context.Context, cred identity.PasswordCredential) (Outcome, error) {
	return o.signIn(ctx, "", func(ctx context.Context) (identity.Identity, error) {
		return o.deps.Identity.CreateAccount(ctx, cred)
	})
}

func (o *Orchestrator) signIn(ctx context.Context, pushToken string, authenticate func(context.Context) (identity.Identity, error)) (Outcome, error) {
	prev := o.State()
	o.setLoading(true)

	next, err := authenticate(ctx)
	if err != nil {
		o.setLoading(false)
		return Outcome{State: o.State()}, err
	}

	var out Outcome
	if o.deps.Migrator != nil && prev.Status == StatusAnonymous && next.Durable() && prev.Identity.ID != next.ID {
		res, err := o.deps.Migrator.Migrate(ctx, prev.Identity.ID, next.ID)
		out.Migration = &res
		if err != nil {
			o.deps.Logger.Warn("migration failed, continuing sign-in",
				zap.String("from", prev.Identity.ID), zap.String("to", next.ID), zap.Error(err))
			out.MigrationWarning = err
		}
	}

	st := State{Status: statusFor(next), Identity: next}
	view, err := o.deps.Profiles.Ensure(ctx, o.seedFor(next))
	if err != nil {
		o.deps.Logger.Warn("profile unavailable after sign-in", zap.String("user_id", next.ID), zap.Error(err))
		st.Degraded = true
	} else {
		st.Profile = view.Profile
		st.Degraded = view.Degraded
		out.ProfileCreated = view.Created
	}
	if out.ProfileCreated {
		o.publish(ctx, events.New(events.TypeProfileCreated, next.ID, map[string]string{"provider": next.Provider}))
	}

	if pushToken != "" && o.deps.Push != nil && !next.Anonymous {
		out.Push = o.deps.Push.Register(ctx, next.ID, pushToken)
		if out.Push.Registered && st.Profile != nil {
			token := strings.TrimSpace(pushToken)
			st.Profile.FCMToken = &token
		}
	}

	o.set(st)
	out.State = st
	return out, nil
}

// SignOut revokes the session token and clears the session.
func (o *Orchestrator) SignOut(ctx context.Context, token string, expiresAt time.Time) error {
	if token != "" {
		if err := o.deps.Identity.SignOut(ctx, token, expiresAt); err != nil {
			return err
		}
	}
	o.set(State{Status: StatusUnauthenticated})
	return nil
}

// DeleteAccount removes the user's journal entries, prayer requests, profile and
// identity, then signs out. The identity is kept when data removal fails so the
// request can be retried.
func (o *Orchestrator) DeleteAccount(ctx context.Context, token string, expiresAt time.Time) (DeleteReport, error) {
	st := o.State()
	if st.Identity.ID == "" {
		return DeleteReport{}, ErrNoSession
	}
	uid := st.Identity.ID
	rep := DeleteReport{UserID: uid}

	var errs error
	if o.deps.Journal != nil {
		n, err := o.deps.Journal.DeleteByUser(ctx, uid)
		rep.JournalDeleted = n
		errs = multierr.Append(errs, wrap("journal", err))
	}
	if o.deps.Prayers != nil {
		n, err := o.deps.Prayers.DeleteByUser(ctx, uid)
		rep.PrayersDeleted = n
		errs = multierr.Append(errs, wrap("prayers", err))
	}
	if o.deps.ProfileRows != nil {
		errs = multierr.Append(errs, wrap("profile", o.deps.ProfileRows.Delete(ctx, uid)))
	}
	if err := o.deps.Profiles.Forget(ctx, uid); err != nil {
		o.deps.Logger.Warn("offline profile removal failed", zap.String("user_id", uid), zap.Error(err))
	}
	if errs != nil {
		return rep, errs
	}

	if err := o.deps.Identity.Delete(ctx, uid); err != nil && !errors.Is(err, identity.ErrUnknownIdentity) {
		return rep, wrap("identity", err)
	}
	o.publish(ctx, events.New(events.TypeAccountDeleted, uid, nil))
	if err := o.SignOut(ctx, token, expiresAt); err != nil {
		o.deps.Logger.Warn("token revoke after delete failed", zap.String("user_id", uid), zap.Error(err))
		o.set(State{Status: StatusUnauthenticated})
	}
	return rep, nil
}

func (o *Orchestrator) seedFor(id identity.Identity) *models.UserProfile {
	nickname := strings.TrimSpace(id.DisplayName)
	switch {
	case id.Anonymous:
		nickname = o.deps.NewGuestName()
	case nickname == "" && id.Email != "":
		nickname, _, _ = strings.Cut(id.Email, "@")
	}
	if nickname == "" {
		nickname = "User"
	}
	return &models.UserProfile{
		UserID:     id.ID,
		Nickname:   nickname,
		Handle:     o.deps.NewHandle(),
		CurrentDay: 1,
		CreatedAt:  time.Now(),
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if err := o.deps.Events.Publish(ctx, ev); err != nil {
		o.deps.Logger.Warn("publish session event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (o *Orchestrator) setLoading(loading bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Loading = loading
	o.broadcast()
}

func (o *Orchestrator) set(st State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = st
	o.broadcast()
}

func statusFor(id identity.Identity) Status {
	switch {
	case id.ID == "":
		return StatusUnauthenticated
	case id.Anonymous:
		return StatusAnonymous
	default:
		return StatusAuthenticated
	}
}

func wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("delete %s: %w", step, err)
}

var (
	handleAdjectives = []string{"Brave", "Faithful", "Strong", "Hopeful", "Courageous", "Blessed", "Free", "Loved", "Chosen", "Victorious"}
	handleNouns      = []string{"Pilgrim", "Warrior", "Disciple", "Believer", "Overcomer", "Seeker", "Healer", "Light", "Grace", "Hope"}
)

// GenerateHandle returns an Adjective+Noun#N handle with N in [1, 9999].
// Uniqueness is not enforced.
func GenerateHandle() string {
	return fmt.Sprintf("%s%s#%d",
		handleAdjectives[rand.Intn(len(handleAdjectives))],
		handleNouns[rand.Intn(len(handleNouns))],
		rand.Intn(9999)+1)
}

// GenerateGuestName returns the nickname given to new anonymous profiles.
func GenerateGuestName() string {
	return fmt.Sprintf("Guest %04d", rand.Intn(10000))
}
