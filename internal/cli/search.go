package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// searchCommand creates the search command.
func (c *CLI) searchCommand() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search configured sources for packages",
		Long: `Search queries every configured source and merges the results, keeping
the highest-priority source's entry for each package name. With
--interactive an arrow-key picker opens and the selected package is
installed directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			results, err := mgr.Search(ctx, args[0])
			if err != nil {
				return err
			}
			if len(results) == 0 {
				printInfo("No packages matching %q", args[0])
				return nil
			}

			if !interactive {
				for _, r := range results {
					line := StyleValue.Render(r.Name) + StyleDim.Render("@"+r.Version)
					if r.Description != "" {
						line += "  " + StyleDim.Render(r.Description)
					}
					fmt.Println(line)
				}
				printNewline()
				printDetail("%d result(s)", len(results))
				return nil
			}

			model := NewPackagePickerModel(results)
			out, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
			if err != nil {
				return fmt.Errorf("run picker: %w", err)
			}
			picked, ok := out.(PackagePickerModel)
			if !ok || picked.Selected == nil {
				printInfo("Nothing selected")
				return nil
			}

			spec := fmt.Sprintf("%s==%s", picked.Selected.Name, picked.Selected.Version)
			printInfo("Installing %s", spec)
			res, err := mgr.Install(ctx, spec, false)
			if err != nil {
				return err
			}
			if res.NoOp {
				printInfo("%s is already installed", spec)
				return nil
			}
			if !res.Success {
				for _, conflict := range res.Conflicts {
					printWarning("%s", conflict)
				}
				return fmt.Errorf("install %s failed", spec)
			}
			printSuccess("Installed %d package(s)", len(res.Installed))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick a result interactively and install it")
	return cmd
}
