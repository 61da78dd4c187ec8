package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/zoneauth/repositories/postgres"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Long:  `Applies the schema for users, accounts, tenants and audit logs. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := postgres.NewDB(cmd.Context(), opts.cfg.Database, opts.logger)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			return db.InitSchema(cmd.Context())
		},
	}
}
