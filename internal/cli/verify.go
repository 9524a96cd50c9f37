package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// verifyCommand creates the verify command.
func (c *CLI) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [name]",
		Short: "Check installed files against their recorded checksums",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			names := args
			if len(names) == 0 {
				rows, lerr := mgr.List(ctx)
				if lerr != nil {
					return lerr
				}
				for _, row := range rows {
					names = append(names, row.Name)
				}
			}
			if len(names) == 0 {
				printInfo("No packages installed")
				return nil
			}

			bad := 0
			for _, name := range names {
				ok, verr := mgr.Verify(ctx, name)
				if verr != nil {
					return verr
				}
				if ok {
					printSuccess("%s", name)
				} else {
					printError("%s: contents differ from install-time checksum", name)
					bad++
				}
			}
			if bad > 0 {
				return fmt.Errorf("%d package(s) failed verification", bad)
			}
			return nil
		},
	}
}
