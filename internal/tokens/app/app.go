package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/resys/shop-auth/internal/tokens/service"
	"github.com/resys/shop-auth/internal/tokens/store"
	"github.com/resys/shop-auth/internal/tokens/store/drivers/sqlite"
	"github.com/resys/shop-auth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the token lifecycle service together: store, rotation
// protocol, access token issuer, and the retention sweeper.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	Rotation *service.RotationService
	Access   *service.AccessTokenService
	sweeper  *service.RetentionSweeper
}

// New validates configuration and initializes all dependencies.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "shop-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// 64-byte secrets resist offline attack far longer; accept but nag.
	if len(cfg.SigningSecret) < 64 {
		app.logger.Warn("signing secret shorter than the recommended 64 bytes",
			slog.Int("length", len(cfg.SigningSecret)))
	}

	db, err := sqlite.NewStore(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	app.Rotation = &service.RotationService{
		Store:             app.db,
		StandardTTL:       cfg.RefreshTTL,
		RememberTTL:       cfg.RememberMeTTL,
		Retention:         cfg.Retention,
		MaxActivePerUser:  cfg.MaxActivePerUser,
		MaxActivePerAdmin: cfg.MaxActivePerAdmin,
	}

	access, err := service.NewAccessTokenService(
		[]byte(cfg.SigningSecret),
		cfg.Issuer,
		[]string{cfg.Audience},
		cfg.AccessTokenTTL,
		app.logger,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init access token issuer: %w", err)
	}
	app.Access = access

	app.sweeper = service.NewRetentionSweeper(app.Rotation, app.logger, cfg.SweepInterval)

	return app, nil
}

// Run starts the retention sweeper and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.sweeper.Start()
	app.logger.Info("token service started", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the sweeper and releases the store.
func (app *Application) Shutdown() error {
	app.sweeper.Stop()

	if err := app.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	app.logger.Info("token service stopped")
	return nil
}

// Ping reports store health, for external readiness checks.
func (app *Application) Ping(ctx context.Context) error {
	return app.db.Ping(ctx)
}
