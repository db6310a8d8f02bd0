// Package app provides the main application lifecycle management for the
// content scheduler service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/content-scheduler/internal/api"
	"github.com/jonesrussell/content-scheduler/internal/config"
	"github.com/jonesrussell/content-scheduler/internal/database"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/runner"
	"github.com/jonesrussell/content-scheduler/internal/telemetry"
	"github.com/jonesrussell/content-scheduler/internal/worker"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	redisPingTimeout = 5 * time.Second
)

// App represents the scheduler application with all its dependencies
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *redis.Client

	programs  *database.ProgramRepository
	runs      *database.RunRepository
	items     *database.ItemRepository
	queue     *database.QueueRepository
	schedules *database.ScheduleRepository

	runner    *runner.Runner
	tracker   *metrics.Tracker
	telemetry *telemetry.Provider

	schedulerWorker *worker.SchedulerWorker
	publisherWorker *worker.PublisherWorker

	httpServer *http.Server
	version    string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string

	// RunWorkers controls whether the background workers start alongside
	// the HTTP API. The api command serves only HTTP; the scheduler
	// command runs both.
	RunWorkers bool
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "content-scheduler"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     strconv.Itoa(cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
		_ = db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to Redis: %w", pingErr)
	}

	a := &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		version:     opts.Version,
	}
	a.wire(opts.RunWorkers)
	return a, nil
}

// wire builds the repository, service, worker and HTTP layers on top of
// the established connections.
func (a *App) wire(runWorkers bool) {
	a.programs = database.NewProgramRepository(a.db)
	a.runs = database.NewRunRepository(a.db)
	a.items = database.NewItemRepository(a.db)
	a.queue = database.NewQueueRepository(a.db)
	a.schedules = database.NewScheduleRepository(a.db)
	refdata := database.NewRefdataRepository(a.db)

	a.tracker = metrics.NewTracker(a.redisClient, a.logger)
	a.telemetry = telemetry.NewProvider()
	a.runner = runner.New(a.programs, a.runs, a.items, refdata, a.tracker, a.telemetry, a.logger)

	if runWorkers {
		a.schedulerWorker = worker.NewSchedulerWorker(
			a.runner, a.items, a.tracker, a.telemetry,
			worker.SchedulerWorkerConfig{
				TickInterval: a.config.Scheduler.TickInterval,
				StaleRunAge:  a.config.Scheduler.StaleRunAge,
			},
			a.logger,
		)
		a.publisherWorker = worker.NewPublisherWorker(
			a.queue, a.schedules, a.redisClient, a.tracker, a.telemetry,
			worker.PublisherWorkerConfig{
				PollInterval:   a.config.Publisher.PollInterval,
				BatchSize:      a.config.Publisher.BatchSize,
				PublishTimeout: a.config.Publisher.PublishTimeout,
			},
			a.logger,
		)
	}

	router := api.NewRouter(api.RouterDeps{
		Programs:    a.programs,
		Runs:        a.runs,
		Items:       a.items,
		Queue:       a.queue,
		Schedules:   a.schedules,
		Runner:      a.runner,
		Tracker:     a.tracker,
		Telemetry:   a.telemetry,
		RedisClient: a.redisClient,
		Config:      a.config,
		Logger:      a.logger,
	})
	a.httpServer = &http.Server{
		Addr:         a.config.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.logger.Info("Starting HTTP server",
			logger.String("address", a.httpServer.Addr),
			logger.Bool("debug", a.config.Debug),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if a.schedulerWorker != nil {
		a.schedulerWorker.Start(ctx)
		a.logger.Info("Scheduler worker started")
	}
	if a.publisherWorker != nil {
		a.publisherWorker.Start(ctx)
		a.logger.Info("Publisher worker started")
	}

	return a.waitForShutdown(ctx, serverErr)
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(ctx context.Context, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)

	case <-ctx.Done():
		a.logger.Info("Context cancelled, shutting down")

	case err := <-serverErr:
		a.logger.Error("Server error", logger.Error(err))
		shutdownErr = err
	}

	a.stopWorkers()
	a.shutdownHTTPServer()

	a.logger.Info("Service stopped")
	return shutdownErr
}

// stopWorkers stops the background workers and waits for in-flight ticks
func (a *App) stopWorkers() {
	if a.schedulerWorker != nil {
		a.schedulerWorker.Stop()
		a.logger.Info("Scheduler worker stopped")
	}
	if a.publisherWorker != nil {
		a.publisherWorker.Stop()
		a.logger.Info("Publisher worker stopped")
	}
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	if a.httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
