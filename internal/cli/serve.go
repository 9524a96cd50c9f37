package cli

import (
	"github.com/spf13/cobra"

	"github.com/depforge/depforge/internal/api"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve exposes the package manager over HTTP. The API mirrors the CLI:
install, uninstall, update, list, search, verify, events, resolve and
cleanup, plus /healthz and Prometheus metrics on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, err := c.openManager(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			srv := api.NewServer(mgr, c.Logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8374", "listen address")
	return cmd
}
