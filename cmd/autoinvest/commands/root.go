// Package commands implements the autoinvest CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/autoinvest/pkg/config"
	"github.com/wonny/autoinvest/pkg/database"
	"github.com/wonny/autoinvest/pkg/logger"
)

var verbose bool

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "autoinvest",
	Short: "Weekly pie auto-invest daemon for Trading212",
	Long: `autoinvest spreads a weekly budget across a Trading212 pie,
scheduling purchases into market-open slots and executing them as they
come due.

Usage:
  go run ./cmd/autoinvest [command]

Examples:
  go run ./cmd/autoinvest run
  go run ./cmd/autoinvest status
  go run ./cmd/autoinvest plan`,
}

// Execute runs the CLI. Called by main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// setup loads configuration and builds the logger every command shares.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// openDatabase connects to Postgres for commands that need the store.
func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
