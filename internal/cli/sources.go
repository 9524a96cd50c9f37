package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/depforge/depforge/internal/config"
)

// sourcesCommand creates the sources command.
func (c *CLI) sourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured package sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, cfg, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if len(cfg.Sources) == 0 {
				printInfo("No sources configured")
				printNextStep("Add one in the config file", c.configPath)
				return nil
			}

			srcs := make([]config.Source, len(cfg.Sources))
			copy(srcs, cfg.Sources)
			sort.Slice(srcs, func(i, j int) bool { return srcs[i].Priority < srcs[j].Priority })

			for _, s := range srcs {
				trust := StyleDim.Render("untrusted")
				if s.Trusted {
					trust = StyleSuccess.Render("trusted")
				}
				fmt.Println(StyleValue.Render(s.Name) +
					StyleDim.Render(fmt.Sprintf(" (%s, priority %d) ", s.Type, s.Priority)) + trust)
				printDetail("%s", s.Location)
			}
			return nil
		},
	}
}
