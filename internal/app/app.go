// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imajkumar/chakra-user-service/internal/config"
	directorypostgres "github.com/imajkumar/chakra-user-service/internal/directory/postgres"
	"github.com/imajkumar/chakra-user-service/internal/events"
	"github.com/imajkumar/chakra-user-service/internal/mailqueue"
	mailqueuepostgres "github.com/imajkumar/chakra-user-service/internal/mailqueue/postgres"
	"github.com/imajkumar/chakra-user-service/internal/mailqueue/smtp"
	"github.com/imajkumar/chakra-user-service/internal/pkg/ctxlog"
	"github.com/imajkumar/chakra-user-service/internal/pkg/httputil"
	"github.com/imajkumar/chakra-user-service/internal/pkg/metrics"
	"github.com/imajkumar/chakra-user-service/internal/pkg/postgres"
	"github.com/imajkumar/chakra-user-service/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *mailqueue.Scheduler
	publisher     *events.Publisher
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrationsPath != "" {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop queue scheduler first so no dispatch is in flight when the pool closes
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events publisher: %w", err))
		}
	}

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo mailqueue.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.Stats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			mailqueue.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the queue scheduler instance.
// Used in tests to trigger dispatch and cleanup directly.
func (a *App) Scheduler() *mailqueue.Scheduler {
	return a.scheduler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	sender, err := smtp.NewSender(smtp.Config{
		Enabled:     a.config.SMTP.Enabled,
		Host:        a.config.SMTP.Host,
		Port:        a.config.SMTP.Port,
		Username:    a.config.SMTP.Username,
		Password:    a.config.SMTP.Password,
		FromAddress: a.config.SMTP.FromAddress,
		FromName:    a.config.SMTP.FromName,
	})
	if err != nil {
		return nil, fmt.Errorf("create smtp sender: %w", err)
	}

	if !a.config.SMTP.Enabled {
		slog.Warn("smtp sender is disabled: queued emails will be marked sent without delivery")
	}

	publisher, err := events.NewPublisher(events.Config{
		Enabled: a.config.Kafka.Enabled,
		Brokers: a.config.Kafka.Brokers,
		Topic:   a.config.Kafka.Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("create events publisher: %w", err)
	}
	a.publisher = publisher

	renderer, err := mailqueue.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create email renderer: %w", err)
	}
	assemblers := mailqueue.NewAssemblerSet(renderer, a.config.Queue.LoginURL)

	queueRepo := mailqueuepostgres.NewRepository(a.db)
	userDirectory := directorypostgres.NewRepository(a.db)

	dispatcher := mailqueue.NewDispatcher(mailqueue.DispatcherConfig{
		MaxInFlight:    a.config.Queue.MaxInFlight,
		SendsPerSecond: a.config.Queue.SendsPerSecond,
	}, queueRepo, userDirectory, sender, assemblers, publisher)

	sweeper := mailqueue.NewSweeper(queueRepo, a.config.Queue.Retention)

	scheduler := mailqueue.NewScheduler(mailqueue.SchedulerConfig{
		DispatchInterval: a.config.Queue.DispatchInterval,
		RetryInterval:    a.config.Queue.RetryInterval,
		CleanupInterval:  a.config.Queue.CleanupInterval,
		StuckGrace:       a.config.Queue.StuckGrace,
		BatchSize:        a.config.Queue.BatchSize,
	}, queueRepo, dispatcher, sweeper)
	scheduler.Start(ctx)
	a.scheduler = scheduler

	// Start queue metrics collection
	go a.collectQueueMetrics(ctx, queueRepo)

	enqueuer := mailqueue.NewEnqueuer(queueRepo, a.config.Queue.MaxRetries, publisher)
	queueService := mailqueue.NewService(enqueuer, queueRepo, scheduler)
	queueHandler := mailqueue.NewHandler(queueService)

	r.Route("/api/v1", func(r chi.Router) {
		queueHandler.RegisterRoutes(r)
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
