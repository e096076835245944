package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"smarttrain/internal/services"
)

// releaseSweepCommand runs a single escrow release sweep and prints its
// result, for cron driven deployments that disable the in-process scheduler.
func releaseSweepCommand(scheduler *services.ReleaseScheduler) *cobra.Command {
	return &cobra.Command{
		Use:   "release-sweep",
		Short: "Release escrow for every trip past its halfway point",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
