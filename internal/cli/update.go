package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// updateCommand creates the update command.
func (c *CLI) updateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update [name]",
		Short: "Update one package, or all, to the greatest available version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			label := "all packages"
			if len(args) == 1 {
				label = args[0]
			}
			spin := newSpinnerWithContext(ctx, fmt.Sprintf("Updating %s...", label))
			spin.Start()

			if len(args) == 1 {
				out, uerr := mgr.Update(ctx, args[0])
				spin.Stop()
				if uerr != nil {
					return uerr
				}
				if out.NoOp {
					printInfo("%s is already at the latest version", args[0])
					return nil
				}
				printSuccess("Updated %s", args[0])
				return nil
			}

			out, uerr := mgr.UpdateAll(ctx)
			spin.Stop()
			if uerr != nil {
				return uerr
			}
			if out.NoOp {
				printInfo("Everything is up to date")
				return nil
			}
			printSuccess("Updated %d package(s)", len(out.Updated))
			for _, name := range out.Updated {
				printDetail("%s", name)
			}
			for _, name := range out.Failed {
				printError("update failed: %s", name)
			}
			if len(out.Failed) > 0 {
				return fmt.Errorf("%d package(s) failed to update", len(out.Failed))
			}
			return nil
		},
	}
}
