package cli

import (
	"github.com/spf13/cobra"
)

// uninstallCommand creates the uninstall command.
func (c *CLI) uninstallCommand() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:     "uninstall <name>",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove an installed package",
		Long: `Uninstall removes a package's files and its ledger entry. Removal is
refused while other installed packages depend on it; pass --cascade to
remove the dependents first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			res, err := mgr.Uninstall(ctx, args[0], cascade)
			if err != nil {
				return err
			}

			printSuccess("Removed %d package(s)", len(res.Removed))
			for _, name := range res.Removed {
				printDetail("%s", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "also remove packages that depend on this one")
	return cmd
}
