package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/campuskeep/campuskeep/internal/onboard/http"
	"github.com/campuskeep/campuskeep/internal/onboard/identity"
	"github.com/campuskeep/campuskeep/internal/onboard/mail"
	"github.com/campuskeep/campuskeep/internal/onboard/service"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/internal/onboard/store/drivers/sqlite"
	"github.com/campuskeep/campuskeep/pkg/cryptox"
	"github.com/campuskeep/campuskeep/pkg/ratelimit"
	"github.com/campuskeep/campuskeep/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the onboarding service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	limiter  *ratelimit.Limiter
	queue    *mail.Queue
	provider *identity.LocalProvider

	// Services
	auditService        *service.AuditService
	invitationService   *service.InvitationService
	setupService        *service.SetupService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "onboard-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initIdentity(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.queue.Start()
	app.limiter.StartSweeping(ratelimit.DefaultSweepInterval)
	app.housekeepingService.Start()

	app.logger.Info("onboard service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down onboard service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Workers drain before the store goes away.
	app.housekeepingService.Stop()
	app.queue.Stop()
	app.limiter.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("onboard service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initIdentity configures the local identity provider. Without a configured
// secret, sessions do not survive restarts; fine for dev, fatal-adjacent in
// prod, so it is logged loudly.
func (app *Application) initIdentity() error {
	secret := []byte(app.cfg.SessionSecret)
	if len(secret) == 0 {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("failed to generate ephemeral session secret: %w", err)
		}
		secret = []byte(hex.EncodeToString(raw))
		app.logger.Warn("SESSION_SECRET not set, using an ephemeral secret; sessions will not survive restarts")
	}

	app.provider = &identity.LocalProvider{
		Store:  app.db,
		Secret: secret,
		Issuer: app.cfg.SessionIssuer,
		TTL:    identity.DefaultSessionTTL,
	}
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.limiter = ratelimit.New()

	app.queue = mail.NewQueue(
		&mail.LogTransport{Logger: app.logger},
		app.logger,
		mail.Config{Interval: app.cfg.QueueInterval},
	)

	app.auditService = &service.AuditService{Store: app.db}

	app.invitationService = &service.InvitationService{
		Store:    app.db,
		Limiter:  app.limiter,
		Audit:    app.auditService,
		Queue:    app.queue,
		Identity: app.provider,
		BaseURL:  app.cfg.BaseURL,
		AppName:  app.cfg.AppName,
	}

	app.setupService = &service.SetupService{
		Store:         app.db,
		Audit:         app.auditService,
		Queue:         app.queue,
		Identity:      app.provider,
		OperatorToken: app.cfg.SetupOperatorToken,
		BaseURL:       app.cfg.BaseURL,
		AppName:       app.cfg.AppName,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.limiter,
		app.queue,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.provider,
		app.logger,
	)

	router.Identity = app.provider
	router.InvitationService = app.invitationService
	router.SetupService = app.setupService
	router.AuditService = app.auditService
	router.Queue = app.queue
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
