package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novojourney/novo/journey"
)

const repairPageSize = 200

// NewRepairProgressCommand creates the repair-progress command. It raises
// currentDay to match completed days for one user or for everyone.
func NewRepairProgressCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "repair-progress [user-id]",
		Short: "Recompute currentDay from completed days",
		Long: `Recompute currentDay as the highest completed day plus one. Progress is
never lowered. Use it after a day completion saved the journal entry but failed
to advance the profile.

Example:
  novo repair-progress 5f0c...
  novo repair-progress --all`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return cmd.Usage()
			}
			rt, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			enc := json.NewEncoder(os.Stdout)
			if !all {
				res, err := rt.app.Journey.RepairProgress(ctx, args[0])
				if err != nil {
					return err
				}
				return enc.Encode(res)
			}

			var repaired []journey.Repair
			for offset := 0; ; offset += repairPageSize {
				page, err := rt.app.Profiles.List(ctx, repairPageSize, offset)
				if err != nil {
					return err
				}
				for _, p := range page {
					res, err := rt.app.Journey.RepairProgress(ctx, p.UserID)
					if err != nil {
						rt.logger.Warn("repair failed", zap.String("user_id", p.UserID), zap.Error(err))
						continue
					}
					if res.Changed {
						repaired = append(repaired, res)
					}
				}
				if len(page) < repairPageSize {
					break
				}
			}
			return enc.Encode(map[string]interface{}{"repaired": repaired})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "repair every profile")
	return cmd
}
