package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/internal/observability"
	"go.uber.org/zap"
)

// rootOptions carries what PersistentPreRunE loads to the subcommands.
type rootOptions struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "zoneauth",
		Short: "Sign-in, session and zone gateway for the multi-zone app",
		Long: `zoneauth runs one zone of the application: the front door that owns
sign-in and proxies the zone prefixes, or the user and admin zones that
verify the shared session cookie on every request.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, err := observability.NewLogger(observability.LoggerConfig{
				Level:       cfg.Observability.LogLevel,
				Format:      cfg.Observability.LogFormat,
				Development: cfg.IsDevelopment(),
			})
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			opts.cfg = cfg
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newUsersCmd(opts))
	return cmd
}

// Execute runs the root command
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
