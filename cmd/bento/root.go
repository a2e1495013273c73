package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Bento CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bento",
		Short: "Bento - identity and project backend",
		Long: `Bento is a small backend-as-a-service providing user accounts,
cookie sessions, and per-user project storage over an embedded database.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAdminCmd())

	return cmd
}
