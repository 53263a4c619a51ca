package push

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reminderRunTimeout = 5 * time.Minute

// Scheduler triggers the daily reminder on a cron spec.
type Scheduler struct {
	notifier *Notifier
	cron     *cron.Cron
	spec     string
	logger   *zap.Logger
}

// NewScheduler accepts standard five-field specs and descriptors such as "@every 24h".
func NewScheduler(notifier *Notifier, spec string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		notifier: notifier,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:     spec,
		logger:   logger,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("failed to add reminder job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("reminder scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderRunTimeout)
	defer cancel()
	if _, err := s.notifier.SendDailyReminders(ctx); err != nil {
		s.logger.Warn("daily reminder run failed", zap.Error(err))
	}
}
