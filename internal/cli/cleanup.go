package cli

import (
	"github.com/spf13/cobra"
)

// cleanupCommand creates the cleanup command.
func (c *CLI) cleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned auto-installed packages and stale cache rows",
		Long: `Cleanup removes auto-installed packages that no explicitly installed
package depends on anymore, then purges metadata cache entries older
than the staleness window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			spin := newSpinnerWithContext(ctx, "Cleaning up...")
			spin.Start()
			res, err := mgr.Cleanup(ctx)
			spin.Stop()
			if err != nil {
				return err
			}

			if res.RemovedPackages == 0 && res.RemovedCacheEntries == 0 {
				printInfo("Nothing to clean up")
				return nil
			}
			printSuccess("Removed %d orphaned package(s) and %d stale cache entries",
				res.RemovedPackages, res.RemovedCacheEntries)
			return nil
		},
	}
}
