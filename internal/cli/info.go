package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// infoCommand creates the info command.
func (c *CLI) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "info <name>",
		Aliases: []string{"show"},
		Short:   "Show details about an installed package",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			row, err := mgr.Info(ctx, args[0])
			if err != nil {
				return err
			}

			printKeyValue("Name", row.Name)
			printKeyValue("Version", row.Version)
			if row.Description != "" {
				printKeyValue("Description", row.Description)
			}
			if row.Author != "" {
				printKeyValue("Author", row.Author)
			}
			if row.License != "" {
				printKeyValue("License", row.License)
			}
			printKeyValue("Path", row.InstallPath)
			printKeyValue("Checksum", row.Checksum)
			printKeyValue("Installed", row.InstalledAt.Local().Format("2006-01-02 15:04:05"))
			if row.AutoInstalled {
				printKeyValue("Origin", "auto-installed dependency")
			} else {
				printKeyValue("Origin", "explicitly installed")
			}
			if len(row.Dependencies) > 0 {
				printKeyValue("Depends on", strings.Join(row.Dependencies, ", "))
			}
			return nil
		},
	}
}
