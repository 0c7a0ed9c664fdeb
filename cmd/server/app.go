package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nimbusvault/nimbus-api/internal/config"
	"github.com/nimbusvault/nimbus-api/internal/events"
	"github.com/nimbusvault/nimbus-api/internal/platform/gemini"
	"github.com/nimbusvault/nimbus-api/internal/platform/postgres"
	"github.com/nimbusvault/nimbus-api/internal/processor"
)

// application holds the wired dependencies of the running server.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	db      *sql.DB
	bus     *events.EventBus
	service *processor.Service
}

// newApplication connects the database, builds the processing pipeline, and
// starts the service so it is subscribed before any request arrives.
func newApplication(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*application, error) {
	db, err := setupDatabase(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(appLogger)

	taskStore := postgres.NewPostgresTaskStore(db)
	resultStore := postgres.NewPostgresResultStore(db)

	analyzer, err := gemini.NewGeminiAnalyzer(ctx, appLogger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	policy, err := processor.NewRetryPolicy(cfg.Processing)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry policy: %w", err)
	}

	retryHandler, err := processor.NewRetryHandler(
		taskStore,
		bus,
		policy,
		processor.NewClassifier(),
		processor.RetryHandlerConfig{
			MaxRetries:     cfg.Processing.MaxRetries,
			MaxRetryWindow: cfg.Processing.MaxRetryWindow,
		},
		appLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry handler: %w", err)
	}

	taskProcessor, err := processor.NewTaskProcessor(
		taskStore,
		resultStore,
		analyzer,
		retryHandler,
		bus,
		appLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task processor: %w", err)
	}

	service, err := processor.NewService(
		taskStore,
		resultStore,
		taskProcessor,
		retryHandler,
		bus,
		processor.ServiceConfig{
			DefaultTaskTypes:  cfg.Processing.DefaultTaskTypes,
			ReconcileInterval: cfg.Processing.ReconcileInterval,
		},
		appLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor service: %w", err)
	}
	service.Start()

	return &application{
		config:  cfg,
		logger:  appLogger,
		db:      db,
		bus:     bus,
		service: service,
	}, nil
}

// setupDatabase establishes a connection to the database and configures the
// connection pool.
func setupDatabase(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.Info("database connection established")
	return db, nil
}

// run starts the HTTP server and blocks until shutdown.
func (app *application) run(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.setupRouter(),
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("server failed", "error", err)
			cancelServer()
		}
	}()

	select {
	case <-shutdownCh:
		app.logger.Info("shutting down server")
	case <-serverCtx.Done():
		app.logger.Info("server context canceled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.cleanup()
	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup stops the processing pipeline and closes the database. Order
// matters: the service stops consuming first, then the bus drops its pending
// timers, then the database closes.
func (app *application) cleanup() {
	app.service.Stop()
	app.bus.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
