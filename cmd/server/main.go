// Package main implements the clientflow server: the HTTP API for client task
// updates plus its database migrations.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configFile overrides the config.yaml lookup
	configFile string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clientflow",
	Short: "Client task update tracking server",
	Long: `clientflow tracks update requests between clients and an administrator.

Configuration comes from config.yaml (or --config) and CLIENTFLOW_ environment
variables, e.g. CLIENTFLOW_DATABASE_URL and CLIENTFLOW_AUTH_JWT_SECRET.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (default ./config.yaml if present)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
