package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/novojourney/novo/config"
	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/identity"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/payment"
	"github.com/novojourney/novo/push"
	"github.com/novojourney/novo/routes"
	"github.com/novojourney/novo/utils"
)

const gatewayTimeout = 30 * time.Second

// runtime is everything a command needs, plus how to release it.
type runtime struct {
	cfg    config.AppConfig
	logger *zap.Logger
	db     *gorm.DB
	rc     *redis.Client
	app    *routes.App
}

func bootstrap(opts *RootOptions) (*runtime, error) {
	cfg := config.Load()
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	logger, err := utils.InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := config.OpenDatabase(cfg, models.All()...)
	if err != nil {
		return nil, err
	}
	rc := utils.NewRedis(cfg)

	clients := routes.Clients{
		Logger:     logger,
		Publisher:  events.FromConfig(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Named("events")),
		Exchangers: map[string]identity.Exchanger{},
	}
	if g := identity.NewGoogleExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectBase); g != nil {
		clients.Exchangers[models.ProviderGoogle] = g
	}

	gw, err := payment.NewPesepayClient(payment.PesepayConfig{
		IntegrationKey: cfg.PesepayIntegrationKey,
		EncryptionKey:  cfg.PesepayEncryptionKey,
		BaseURL:        cfg.PesepayBaseURL,
		ResultURL:      cfg.PublicBaseURL + "/api/pesepay/result",
		ReturnURL:      cfg.PublicBaseURL + "/donate/return",
	}, &http.Client{Timeout: gatewayTimeout})
	if err != nil {
		logger.Warn("donations disabled", zap.Error(err))
	} else {
		clients.Gateway = gw
	}

	app, err := routes.NewApp(cfg, db, rc, clients)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, db: db, rc: rc, app: app}, nil
}

// notifier builds the daily reminder job, or nil when push is not configured.
func (r *runtime) notifier(ctx context.Context) (*push.Notifier, error) {
	if r.cfg.FCMCredentialsFile == "" {
		return nil, nil
	}
	sender, err := push.NewFCMSender(ctx, r.cfg.FCMProjectID, r.cfg.FCMCredentialsFile)
	if err != nil {
		return nil, err
	}
	msg := push.Message{
		Title: r.cfg.ReminderTitle,
		Body:  r.cfg.ReminderBody,
		Link:  r.cfg.PublicBaseURL,
	}
	return push.NewNotifier(r.app.Profiles, sender, msg, r.logger.Named("reminders")), nil
}

func (r *runtime) close() {
	if err := r.app.Publisher.Close(); err != nil {
		r.logger.Warn("event publisher close failed", zap.Error(err))
	}
	if r.rc != nil {
		_ = r.rc.Close()
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = r.logger.Sync()
}
