package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	configPath string
	dryRun     bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "sweeper",
		Short: "Expired resource group cleanup",
		Long: `Sweeper - expired resource group cleanup

Sweeper periodically lists the resource groups of an Azure subscription,
deletes every group whose expiration tag is more than a day in the past,
and records each deletion in an append-only audit table.

Configuration comes from the environment (ClientId, ClientSecret, TenantId,
DefaultSubscriptionId, ExpirationDateTagName, TimerExpression,
StorageAccountConnectionString) and an optional TOML file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Sweeper {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "List expired groups without deleting them")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
