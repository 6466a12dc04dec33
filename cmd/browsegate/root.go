package main

import (
	"fmt"
	"os"

	"github.com/browsegate/browsegate/adapters/sqlite"
	"github.com/browsegate/browsegate/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "browsegate",
	Short: "Anonymizing web proxy with session-based time metering",
	Long: `Browsegate is a self-hosted anonymizing web proxy.

It fetches target pages on behalf of callers, strips identifying
headers, rewrites HTML so framed pages keep working, and meters
transfer against per-user time balances.

Quick start:
  browsegate serve      # Start the proxy server

Management:
  browsegate sessions   # Manage proxy sessions
  browsegate quota      # Manage user time balances
  browsegate usage      # Inspect the usage log
  browsegate validate   # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "browsegate.yaml", "config file path")
}

// openDatabase opens the configured database for management commands.
func openDatabase() (*sqlite.DB, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
