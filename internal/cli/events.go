package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// eventsCommand creates the events command.
func (c *CLI) eventsCommand() *cobra.Command {
	var pkg string

	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"history"},
		Short:   "Show the install/uninstall/update event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			events, err := mgr.Events(ctx, pkg)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				printInfo("No events recorded")
				return nil
			}

			for _, ev := range events {
				status := styleIconSuccess.Render(iconSuccess)
				if !ev.Success {
					status = styleIconError.Render(iconError)
				}
				line := fmt.Sprintf("%s %s  %-9s %s",
					status,
					StyleDim.Render(ev.Time.Local().Format("2006-01-02 15:04:05")),
					ev.Action,
					StyleValue.Render(ev.Package))
				fmt.Println(line)
				if ev.Error != "" {
					printDetail("%s", ev.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pkg, "package", "p", "", "only show events for this package")
	return cmd
}
