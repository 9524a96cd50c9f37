// Package cli implements the depforge command-line interface.
//
// Commands cover the package lifecycle (install, uninstall, update,
// verify, cleanup), inspection (list, info, search, events, graph) and
// the API server (serve). All commands support --verbose (-v) for
// debug-level logging; loggers travel through context.Context.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/depforge/depforge/internal/config"
	"github.com/depforge/depforge/pkg/buildinfo"
	"github.com/depforge/depforge/pkg/manager"
)

// appName is the application name used for directories and display.
const appName = "depforge"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger     *log.Logger
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands
// registered.
func (c *CLI) RootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          appName,
		Short:        "Depforge installs packages with full dependency resolution",
		Long:         `Depforge resolves, fetches and installs packages from configured sources, keeping a durable ledger of everything it has done.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				c.Logger.SetLevel(log.DebugLevel)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", config.DefaultPath, "config file path")

	root.AddCommand(c.installCommand())
	root.AddCommand(c.uninstallCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.searchCommand())
	root.AddCommand(c.verifyCommand())
	root.AddCommand(c.cleanupCommand())
	root.AddCommand(c.sourcesCommand())
	root.AddCommand(c.eventsCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// openManager loads the configuration and wires a manager. The caller
// must Close it.
func (c *CLI) openManager(ctx context.Context) (*manager.Manager, *config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := cfg.BuildManager(ctx, c.Logger)
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}
