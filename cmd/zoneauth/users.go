package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/zoneauth/repositories/postgres"
	"github.com/upb/zoneauth/services/users"
	"github.com/upb/zoneauth/utils"
)

func newUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect accounts and change roles",
	}
	cmd.AddCommand(newUsersShowCmd(opts), newUsersSetRoleCmd(opts))
	return cmd
}

func newUsersShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <email>",
		Short: "Print a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateEmail(args[0]); err != nil {
				return err
			}

			svc, closeFn, err := openUserService(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			user, err := svc.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(user)
		},
	}
}

func newUsersSetRoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Change a user's application role",
		Long: `Changes the role of an existing user. Roles are USER, ADMIN and
SUPER_ADMIN. The change takes effect on the user's next request.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := users.SetRoleRequest{Email: args[0], Role: args[1], ChangedBy: "cli"}
			if err := utils.ValidateStruct(req); err != nil {
				return fmt.Errorf("invalid arguments: %w", err)
			}

			svc, closeFn, err := openUserService(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			user, err := svc.SetRole(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
			return nil
		},
	}
}

func openUserService(ctx context.Context, opts *rootOptions) (*users.Service, func(), error) {
	factory, err := postgres.NewRepositoryFactory(ctx, opts.cfg, opts.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repos := factory.NewRepositories()
	svc := users.NewService(repos.Users, repos.AuditLogs, factory.GetTransactionManager(), opts.logger)
	return svc, func() { _ = factory.Close() }, nil
}
