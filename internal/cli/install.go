package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/depforge/depforge/pkg/graphout"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var (
		force     bool
		graphFile string
	)

	cmd := &cobra.Command{
		Use:   "install <spec>",
		Short: "Install a package and its dependencies",
		Long: `Install resolves the given spec against the configured sources,
fetches every package in the dependency closure and installs them in
dependency order.

The spec is a package name optionally followed by a version constraint:

  depforge install redis
  depforge install "redis>=7.0.0"
  depforge install "redis==7.2.1"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if graphFile != "" {
				graph, gerr := mgr.Resolve(ctx, args[0])
				if gerr != nil {
					return gerr
				}
				svg, gerr := graphout.RenderSVG(graphout.ToDOT(graph, graphout.Options{Detailed: true}))
				if gerr != nil {
					return gerr
				}
				if gerr := os.WriteFile(graphFile, svg, 0o644); gerr != nil {
					return fmt.Errorf("write %s: %w", graphFile, gerr)
				}
				printDetail("graph written to %s", graphFile)
			}

			track := newProgress(logger)
			spin := newSpinnerWithContext(ctx, fmt.Sprintf("Installing %s...", args[0]))
			spin.Start()

			res, err := mgr.Install(ctx, args[0], force)
			spin.Stop()
			if err != nil {
				return err
			}

			for _, conflict := range res.Conflicts {
				printWarning("%s", conflict)
			}
			if !res.Success && !res.NoOp {
				if len(res.Conflicts) > 0 && !force {
					printError("Resolution failed, nothing installed")
					printNextStep("Install the clean part anyway", fmt.Sprintf("depforge install --force %q", args[0]))
				} else {
					printError("Install failed")
				}
				return fmt.Errorf("install %s: %d of %d packages installed", args[0], res.Completed, res.Planned)
			}

			if res.NoOp {
				printInfo("%s is already installed and up to date", args[0])
				return nil
			}

			printSuccess("Installed %d package(s)", len(res.Installed))
			for _, name := range res.Installed {
				printDetail("%s", name)
			}
			if len(res.Skipped) > 0 {
				printDetail("%d already present", len(res.Skipped))
			}
			track.done("install complete")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "install the conflict-free part of the graph even when resolution reports conflicts")
	cmd.Flags().StringVar(&graphFile, "graph", "", "also write the resolved dependency graph as SVG to this file")
	return cmd
}
