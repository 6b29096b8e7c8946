// Package cli implements the tmctl administrative command tree.  tmctl talks
// directly to the database, so it is meant for operators, not end users: the
// HTTP API is the product surface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/ThreatCanvas/internal/config"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds global CLI flags shared by all subcommands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root cobra command with global flags and all
// subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tmctl",
		Short: "ThreatCanvas administrative CLI",
		Long: "tmctl manages a ThreatCanvas deployment: it runs schema migrations\n" +
			"and performs threat model merges directly against the database.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: THREATCANVAS_* environment variables)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newMergeCommand(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// bootstrap loads configuration and builds the logger for a subcommand run.
// Without --config, settings come from THREATCANVAS_* environment variables.
func bootstrap(opts *RootOptions) (*config.Config, logging.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
