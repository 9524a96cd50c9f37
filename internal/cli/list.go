package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			rows, err := mgr.List(ctx)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				printInfo("No packages installed")
				return nil
			}

			shown := 0
			for _, row := range rows {
				if row.AutoInstalled && !all {
					continue
				}
				line := row.Name + StyleDim.Render("@"+row.Version)
				if row.AutoInstalled {
					line += " " + StyleDim.Render("(auto)")
				}
				fmt.Println(StyleValue.Render(line))
				shown++
			}
			printNewline()
			printDetail("%d of %d shown", shown, len(rows))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include auto-installed dependencies")
	return cmd
}
