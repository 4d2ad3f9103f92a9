package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "manuscript-review/docs" // This is for Swagger
	"manuscript-review/internal/auth"
	"manuscript-review/internal/config"
	"manuscript-review/internal/database"
	"manuscript-review/internal/email"
	"manuscript-review/internal/handlers"
	"manuscript-review/internal/logger"
	"manuscript-review/internal/middleware"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/scheduler"
	"manuscript-review/internal/service"
	"manuscript-review/internal/vault"
	"manuscript-review/migrations"
)

// @title Manuscript Review API
// @version 1.0
// @description Editorial submission and peer review lifecycle

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Setup(logger.Config{
		Level:   cfg.Log.Level,
		Service: cfg.App.Name,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"storage", cfg.Storage.Driver,
		"log_level", cfg.Log.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	policy, err := service.LoadPolicy(cfg.Policy.File)
	if err != nil {
		return fmt.Errorf("failed to load authorization policy: %w", err)
	}

	tokens, err := auth.NewService(&cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	opts := service.Options{Workflow: cfg.Workflow}

	if cfg.Vault.Enabled {
		sealer, err := vault.NewSealer(ctx, &cfg.Vault)
		if err != nil {
			return fmt.Errorf("failed to initialize vault sealer: %w", err)
		}
		opts.Sealer = sealer
		slog.Info("Reviewer comments are sealed with Vault transit", "vault_addr", cfg.Vault.Address)
	} else {
		slog.Warn("Vault is disabled - reviewer comments are stored in plain text")
	}

	notifiers := service.Notifiers{service.LogNotifier{}}
	var mailer scheduler.Mailer
	if cfg.Email.Enabled {
		emailService := email.NewService(&cfg.Email)
		mailNotifier := email.NewNotifier(emailService, 0)
		mailNotifier.Start()
		defer mailNotifier.Stop()
		notifiers = append(notifiers, mailNotifier)
		mailer = emailService
	}
	opts.Notifier = notifiers

	svc := service.NewServices(store, policy, opts)

	sched := scheduler.NewScheduler(store, mailer, &cfg.Scheduler)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, svc,
		handlers.NewHealthHandler(store, cfg.App.Version),
		handlers.NewConfigHandler(cfg),
		middleware.NewAuthMiddleware(tokens),
	)

	var limited http.Handler = mux
	if cfg.RateLimit.Enabled {
		limited = middleware.NewRateLimiter(ctx, &cfg.RateLimit).Limit(mux)
	}
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)

	handler := middleware.RequestID(
		middleware.Logging(
			middleware.Recover(
				middleware.SecurityHeaders(
					corsMw.Handler(limited),
				),
			),
		),
	)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}

// openStore connects the configured storage driver and applies migrations
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Storage.Driver == config.StorageMemory {
		slog.Warn("Using in-memory storage - data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("Database connection established")

	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}

	if cfg.Database.AutoMigrate {
		if err := database.NewMigrationExecutor(db.DB).RunMigrations(ctx, migrations.FS); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("Database migrations completed")
	}

	return repository.NewPostgresStore(db.DB), closeDB, nil
}
