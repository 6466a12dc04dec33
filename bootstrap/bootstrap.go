// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/browsegate/browsegate/adapters/clock"
	gatehttp "github.com/browsegate/browsegate/adapters/http"
	"github.com/browsegate/browsegate/adapters/idgen"
	"github.com/browsegate/browsegate/adapters/metrics"
	"github.com/browsegate/browsegate/adapters/sqlite"
	"github.com/browsegate/browsegate/app"
	"github.com/browsegate/browsegate/config"
	"github.com/rs/zerolog"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Holder     *config.Holder
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	proxyService *app.ProxyService
	recorder     *app.Recorder
	upstream     *gatehttp.Fetcher
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)
	return build(cfg, nil, logger)
}

// NewWithHotReload loads the config from path and watches it for
// changes. Reloadable fields take effect without a restart.
func NewWithHotReload(path string) (*App, error) {
	bootLogger := SetupLogger(config.LoggingConfig{Level: "info", Format: "json"})

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}

	cfg := holder.Get()
	logger := SetupLogger(cfg.Logging)

	a, err := build(cfg, holder, logger)
	if err != nil {
		holder.Stop()
		return nil, err
	}

	holder.OnChange(func(newCfg *config.Config) {
		SetupLogger(newCfg.Logging)
		a.proxyService.UpdateConfig(app.DynamicConfig{
			SimpleModeEnabled: newCfg.Proxy.SimpleModeEnabled(),
		})
	})
	if err := holder.WatchFile(); err != nil {
		logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

func build(cfg *config.Config, holder *config.Holder, logger zerolog.Logger) (*App, error) {
	logger.Info().Str("version", Version).Msg("initializing browsegate")

	a := &App{
		Logger: logger,
		Config: cfg,
		Holder: holder,
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	store := sqlite.NewSessionStore(db)
	usageLog := sqlite.NewUsageLog(db)

	a.recorder = app.NewRecorder(usageLog, logger, a.Metrics, app.RecorderConfig{
		FlushInterval: cfg.Usage.FlushInterval,
		MaxBatch:      cfg.Usage.BatchSize,
	})

	a.upstream = gatehttp.NewFetcher(gatehttp.FetcherConfig{
		Timeout:         cfg.Upstream.Timeout,
		MaxIdleConns:    cfg.Upstream.MaxIdleConns,
		IdleConnTimeout: cfg.Upstream.IdleConnTimeout,
	})

	a.proxyService = app.NewProxyService(app.ProxyDeps{
		Store:    store,
		Recorder: a.recorder,
		Upstream: a.upstream,
		Clock:    clock.Real{},
		IDGen:    idgen.UUID{},
		Logger:   logger,
	}, app.DynamicConfig{
		SimpleModeEnabled: cfg.Proxy.SimpleModeEnabled(),
	})

	proxyHandler := gatehttp.NewProxyHandler(a.proxyService, logger, a.Metrics)
	healthHandler := gatehttp.NewHealthHandler(db.PingContext)

	router := gatehttp.NewRouter(proxyHandler, healthHandler, logger, gatehttp.RouterConfig{
		Metrics:        a.Metrics,
		Version:        Version,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application: server first so no new
// requests arrive, then the recorder flush, then the database.
func (a *App) Shutdown() error {
	timeout := 15 * time.Second
	if a.Config != nil && a.Config.Server.ShutdownTimeout > 0 {
		timeout = a.Config.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("usage recorder close error")
		}
	}

	if a.upstream != nil {
		a.upstream.Close()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger configures the global log level and returns a logger.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
