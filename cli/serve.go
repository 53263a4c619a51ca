package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novojourney/novo/push"
	"github.com/novojourney/novo/routes"
	"github.com/novojourney/novo/utils"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Start the HTTP API and the reminder scheduler",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}
}

func runServe(opts *RootOptions) error {
	rt, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	var hooks []utils.ShutdownHook
	notifier, err := rt.notifier(context.Background())
	switch {
	case err != nil:
		rt.logger.Warn("push reminders disabled", zap.Error(err))
	case notifier == nil:
		rt.logger.Info("push reminders not configured")
	default:
		scheduler := push.NewScheduler(notifier, rt.cfg.ReminderSchedule, rt.logger.Named("scheduler"))
		if err := scheduler.Start(); err != nil {
			return err
		}
		hooks = append(hooks, scheduler.Stop)
	}

	r := routes.SetupRouter(rt.app)
	utils.Sugar.Infof("Starting server on port %s (graceful)", rt.cfg.AppPort)
	if err := utils.GraceServer(":"+rt.cfg.AppPort, r, hooks...); err != nil {
		utils.Sugar.Errorf("server stopped with error: %v", err)
		return err
	}
	return nil
}
