package routes

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/novojourney/novo/config"
	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/identity"
	"github.com/novojourney/novo/journey"
	"github.com/novojourney/novo/migration"
	"github.com/novojourney/novo/payment"
	"github.com/novojourney/novo/push"
	"github.com/novojourney/novo/session"
	"github.com/novojourney/novo/store"
	"github.com/novojourney/novo/utils"
)

const oauthStateTTL = 10 * time.Minute

// Clients are the external collaborators built by the caller. Any of them may
// be nil: no publisher means events are dropped, no gateway means donations are
// refused, no exchangers means federated sign-in is unavailable.
type Clients struct {
	Logger     *zap.Logger
	Publisher  events.Publisher
	Gateway    payment.Gateway
	Exchangers map[string]identity.Exchanger
}

// App holds every wired component of the service.
type App struct {
	Config config.AppConfig
	Logger *zap.Logger

	Profiles  *store.ProfileStore
	Fallback  *store.FallbackProfiles
	Journal   *store.JournalStore
	Prayers   *store.PrayerStore
	Donations *store.DonationStore
	Feed      *store.Feed

	Accounts  *identity.AccountProvider
	Migrator  *migration.Service
	Registrar *push.Registrar
	Journey   *journey.Service
	Sessions  session.Deps

	Issuer  *utils.TokenIssuer
	Revoked *utils.TokenBlacklist
	States  *utils.StateStore
	Guard   *utils.SignupGuard

	Publisher events.Publisher
	Gateway   payment.Gateway
}

// NewApp composes stores and services over db and the optional Redis client.
func NewApp(cfg config.AppConfig, db *gorm.DB, rc *redis.Client, clients Clients) (*App, error) {
	logger := clients.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := clients.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	catalog, err := journey.LoadCatalog()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Publisher: publisher,
		Gateway:   clients.Gateway,
	}
	a.Feed = store.NewFeed(rc, logger.Named("feed"))
	a.Profiles = store.NewProfileStore(db)
	a.Fallback = store.NewFallbackProfiles(a.Profiles, store.NewProfileCache(rc), logger.Named("profiles"))
	a.Journal = store.NewJournalStore(db, a.Feed)
	a.Prayers = store.NewPrayerStore(db, a.Feed)
	a.Donations = store.NewDonationStore(db)

	a.Issuer = utils.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	a.Revoked = utils.NewTokenBlacklist(rc)
	a.States = utils.NewStateStore(rc, oauthStateTTL)
	a.Guard = utils.NewSignupGuard(rc, cfg.SignupCooldownSec, cfg.SignupMaxPerIPPerDay)

	a.Accounts = identity.NewAccountProvider(db, a.Revoked, clients.Exchangers, logger.Named("identity"))
	a.Migrator = migration.NewService(a.Profiles, a.Journal, a.Prayers, a.Fallback, publisher, logger.Named("migration"))
	a.Registrar = push.NewRegistrar(a.Profiles, logger.Named("push"))
	a.Journey = journey.NewService(catalog, a.Journal, a.Profiles, a.Fallback, publisher, logger.Named("journey"))
	a.Sessions = session.Deps{
		Identity:    a.Accounts,
		Profiles:    a.Fallback,
		Migrator:    a.Migrator,
		Push:        a.Registrar,
		ProfileRows: a.Profiles,
		Journal:     a.Journal,
		Prayers:     a.Prayers,
		Events:      publisher,
		Logger:      logger.Named("session"),
	}
	return a, nil
}
