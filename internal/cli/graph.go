package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/depforge/depforge/pkg/graphout"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		output   string
		format   string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "graph <spec>",
		Short: "Render the resolved dependency graph",
		Long: `Graph resolves the given spec without installing anything and renders
the dependency graph. Conflicting packages are highlighted. Output is
Graphviz DOT by default; --format svg renders through the graphviz
engine.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if format != "dot" && format != "svg" {
				return fmt.Errorf("unknown format %q (want dot or svg)", format)
			}

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			res, err := mgr.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			for _, conflict := range res.Conflicts {
				printWarning("%s", conflict)
			}

			dot := graphout.ToDOT(res, graphout.Options{Detailed: detailed})

			var data []byte
			switch format {
			case "svg":
				data, err = graphout.RenderSVG(dot)
				if err != nil {
					return err
				}
			default:
				data = []byte(dot)
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				if err == nil && !strings.HasSuffix(string(data), "\n") {
					fmt.Println()
				}
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Wrote %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot or svg")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include versions and sources on nodes")
	return cmd
}
