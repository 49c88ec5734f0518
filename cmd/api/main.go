package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/iplanding/internal/background"
	"github.com/BradenHooton/iplanding/internal/config"
	"github.com/BradenHooton/iplanding/internal/database"
	"github.com/BradenHooton/iplanding/internal/handlers"
	"github.com/BradenHooton/iplanding/internal/metrics"
	middlewareCustom "github.com/BradenHooton/iplanding/internal/middleware"
	"github.com/BradenHooton/iplanding/internal/repositories"
	"github.com/BradenHooton/iplanding/internal/routes"
	"github.com/BradenHooton/iplanding/internal/services"
	"github.com/BradenHooton/iplanding/pkg/ipaddr"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Local address ranges; validated by config.Load
	classifier, err := ipaddr.NewClassifier(cfg.Geo.LocalRanges)
	if err != nil {
		logger.Error("invalid local ranges", slog.Any("error", err))
		os.Exit(1)
	}

	// Optional geolocation cache
	var geoCache services.GeoCache
	var rdb *redis.Client
	if cfg.Geo.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = services.NewRedisClient(ctx, cfg.Geo.RedisURL)
		cancel()
		if err != nil {
			// The cache is an optimisation; run without it.
			logger.Warn("geolocation cache disabled", slog.Any("error", err))
		} else {
			geoCache = services.NewRedisGeoCache(rdb, cfg.Geo.CacheTTL, logger, m)
			logger.Info("geolocation cache enabled", slog.Duration("ttl", cfg.Geo.CacheTTL))
		}
	}

	// Initialize repositories
	visitorRepo := repositories.NewVisitorRepository(db)

	// Initialize services
	geoService := services.NewGeolocationService(services.GeolocationConfig{
		BaseURL:           cfg.Geo.APIURL,
		Timeout:           cfg.Geo.LookupTimeout,
		RequestsPerMinute: cfg.Geo.RequestsPerMinute,
	}, classifier, geoCache, logger, m)

	rateLimitService := services.NewRateLimitService(visitorRepo, services.RateLimitConfig{
		MaxSubmissionsPerWindow: cfg.Visitor.MaxSubmissionsPerWindow,
		WindowDuration:          cfg.Visitor.SubmissionWindow,
	}, logger, m)

	recordBuilder := services.NewRecordBuilder(logger)

	visitorService := services.NewVisitorService(
		visitorRepo,
		geoService,
		services.NewBotClassifier(cfg.Visitor.BotSignatures),
		rateLimitService,
		recordBuilder,
		classifier,
		services.VisitorServiceConfig{PageViewCooldown: cfg.Visitor.PageViewCooldown},
		logger,
		m,
	)
	adminService := services.NewAdminService(visitorRepo, geoService, recordBuilder, logger, m)

	// Initialize maintenance manager
	maintenanceManager := background.NewMaintenanceManager(adminService, background.MaintenanceConfig{
		Interval:         cfg.Maintenance.Interval,
		Retention:        time.Duration(cfg.Maintenance.RetentionDays) * 24 * time.Hour,
		RefreshBatchSize: cfg.Maintenance.RefreshBatchSize,
	}, logger)

	// Initialize handlers
	visitorHandler := handlers.NewVisitorHandler(visitorService, logger)
	adminHandler := handlers.NewAdminHandler(adminService, db, cfg.Maintenance.RefreshBatchSize, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, classifier, cfg.Server.Env))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	opts := routes.Options{
		RateLimit:  middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.HTTPRequestsPerMin},
		Classifier: classifier,
	}
	if cfg.Server.MetricsEnabled {
		opts.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	routes.RegisterRoutes(router, visitorHandler, adminHandler, opts)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start maintenance task
	maintenanceCtx, maintenanceCancel := context.WithCancel(context.Background())
	defer maintenanceCancel()

	go maintenanceManager.Start(maintenanceCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	maintenanceCancel()
	maintenanceManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
