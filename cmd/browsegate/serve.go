package main

import (
	"fmt"
	"os"

	"github.com/browsegate/browsegate/bootstrap"
	"github.com/browsegate/browsegate/config"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the browsegate proxy server.

The server will:
  - Load configuration from browsegate.yaml (or --config)
  - Or load configuration from BROWSEGATE_* environment variables
  - Connect to the database
  - Serve /proxy-service with session metering and HTML rewriting

Environment variables (for Docker deployments):
  BROWSEGATE_SERVER_PORT      - Server port (default: 8080)
  BROWSEGATE_DATABASE_DSN     - Database path (default: browsegate.db)
  BROWSEGATE_SIMPLE_MODE      - Enable unauthenticated ?url= mode (default: true)
  BROWSEGATE_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  browsegate serve
  browsegate serve --config /etc/browsegate/config.yaml
  browsegate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
