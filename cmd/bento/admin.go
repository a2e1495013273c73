package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Raforawesome/bento/internal/auth"
	"github.com/Raforawesome/bento/internal/config"
)

// NewAdminCmd creates the admin command group.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations against the data store",
	}

	cmd.AddCommand(newAdminCreateUserCmd())
	return cmd
}

// newAdminCreateUserCmd creates a user directly in the store, bypassing
// the HTTP API. The server must not be running when this targets the
// bolt backend; the database file is single-process.
func newAdminCreateUserCmd() *cobra.Command {
	var (
		username string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, nil)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if err := auth.ValidateUsername(username); err != nil {
				return fmt.Errorf("invalid username: %w", err)
			}
			r := auth.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid role %q (want %q or %q)", role, auth.RoleUser, auth.RoleAdmin)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			logger := slog.New(slog.DiscardHandler)
			users, _, cleanup, err := openStores(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			var user auth.User
			if r == auth.RoleAdmin {
				user, err = auth.CreateAdmin(cmd.Context(), users, username, hash)
			} else {
				user, err = auth.CreateStandardUser(cmd.Context(), users, username, hash)
			}
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			cmd.Printf("created user %s (%s) with role %s\n", user.Username, user.ID, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username for the new account")
	cmd.Flags().StringVar(&password, "password", "", "password for the new account")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "account role (user or admin)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
