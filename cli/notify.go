package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewNotifyCommand creates the notify command, a one-shot reminder run.
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:          "notify",
		Short:        "Send the daily reminder to every device once",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			notifier, err := rt.notifier(ctx)
			if err != nil {
				return err
			}
			if notifier == nil {
				return errors.New("push is not configured: set GOOGLE_APPLICATION_CREDENTIALS")
			}
			report, err := notifier.SendDailyReminders(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(report)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}
