package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/platformbridge/backend/internal/application/dispatch"
	appintegration "github.com/platformbridge/backend/internal/application/integration"
	"github.com/platformbridge/backend/internal/infrastructure/cache"
	"github.com/platformbridge/backend/internal/infrastructure/chat"
	"github.com/platformbridge/backend/internal/infrastructure/config"
	"github.com/platformbridge/backend/internal/infrastructure/discovery"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
	"github.com/platformbridge/backend/internal/infrastructure/logger"
	"github.com/platformbridge/backend/internal/infrastructure/persistence"
	"github.com/platformbridge/backend/internal/infrastructure/telemetry"
	"github.com/platformbridge/backend/internal/interfaces/http/handler"
	"github.com/platformbridge/backend/internal/interfaces/http/middleware"
	"github.com/platformbridge/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting platform bridge",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", cfg.App.Version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdownTelemetry(log, meterProvider, tracerProvider)
	meter := meterProvider.Meter("platform-bridge")

	// Viewer store
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.GormLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", db.Driver))
	if storeMetrics, err := telemetry.NewStoreMetrics(meter, telemetry.WithStoreLogger(log)); err != nil {
		log.Warn("Viewer store metrics disabled", zap.Error(err))
	} else if err := db.DB.Use(storeMetrics); err != nil {
		log.Warn("Viewer store metrics disabled", zap.Error(err))
	} else {
		storeMetrics.StartPoolStats(ctx)
		defer storeMetrics.Stop()
	}
	viewers := persistence.NewGormViewerRepository(db.DB)

	// Resilient call client
	clientOpts := []httpclient.Option{httpclient.WithLogger(log)}
	if callMetrics, err := telemetry.NewCallMetrics(meter); err != nil {
		log.Warn("Call metrics disabled", zap.Error(err))
	} else {
		clientOpts = append(clientOpts, httpclient.WithRecorder(callMetrics))
	}
	client := httpclient.New(clientOpts...)

	// Home platform handlers
	chatSender := chat.NewWebhookSender(cfg.Home.ChatWebhookURL, cfg.Home.ChatTimeout, client, log)
	if !chatSender.Configured() {
		log.Warn("Chat webhook not configured, home chat messages will fail")
	}
	homeHandlers := dispatch.NewHomeHandlers(viewers, chatSender, log)

	// Integration registry
	dispatchMetrics, err := telemetry.NewDispatchMetrics(meter)
	if err != nil {
		log.Fatal("Failed to initialize dispatch metrics", zap.Error(err))
	}
	registry := discovery.NewRegistry(
		discovery.NewFileScriptLister(cfg.Discovery.ScriptsFile),
		discovery.NewFileVersionLoader(cfg.Discovery.ScriptsDir, log),
		discovery.WithLogger(log),
		discovery.WithScanHook(dispatchMetrics.RecordDetected),
	)

	// Replay store for side-effecting home operations
	replayStore, err := cache.NewReplayStoreFactory(cfg.Cache, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to initialize replay store", zap.Error(err))
	}
	defer func() {
		if err := replayStore.Close(); err != nil {
			log.Warn("Error closing replay store", zap.Error(err))
		}
	}()

	// Operation dispatcher
	dispatcher := dispatch.New(
		registry,
		client,
		discovery.NewSettingsPortProvider(cfg.Integrations.SettingsFile),
		homeHandlers,
		dispatch.WithHost(cfg.Integrations.Host),
		dispatch.WithDefaultPort(cfg.Integrations.DefaultPort),
		dispatch.WithLogger(log),
		dispatch.WithRecorder(dispatchMetrics),
		dispatch.WithReplayStore(replayStore, cfg.Cache.ReplayTTL),
	)

	startup := appintegration.NewStartupService(registry, log)
	report := startup.Initialize(ctx)
	log.Info("Integration scan complete",
		zap.Int("available", len(report.Platforms)),
		zap.Int("warnings", len(report.CompatibilityWarnings)),
	)

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		}),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(meter, log),
		logger.GinMiddleware(log),
		middleware.CORS(corsCfg),
		middleware.BodyLimit(middleware.DefaultMaxBodyBytes),
	)
	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	systemHandler := handler.NewSystemHandler(cfg.App.Name, cfg.App.Version, viewers)
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	integrationHandler := handler.NewIntegrationHandler(startup, dispatcher)
	integrationRoutes := router.NewDomainGroup("integrations", "/integrations")
	integrationRoutes.GET("", integrationHandler.List)
	integrationRoutes.POST("/scan", integrationHandler.Scan)
	integrationRoutes.GET("/:platform/status", integrationHandler.Status)

	dispatchHandler := handler.NewDispatchHandler(dispatcher)
	dispatchRoutes := router.NewDomainGroup("dispatch", "")
	dispatchRoutes.POST("/dispatch/:platform/:operation", dispatchHandler.Dispatch)
	dispatchRoutes.POST("/broadcast/:operation", dispatchHandler.Broadcast)

	// Siblings call the home platform on the same routes they serve themselves
	loopbackHandler := handler.NewLoopbackHandler(dispatcher, homeHandlers)
	loopbackRoutes := router.NewDomainGroup("loopback", "/integrations")
	loopbackRoutes.POST("/:routingId/operations/:operation", loopbackHandler.Operation)
	loopbackRoutes.GET("/:routingId/status", loopbackHandler.Status)

	r.Register(systemRoutes).
		Register(integrationRoutes).
		Register(dispatchRoutes).
		Mount(loopbackRoutes)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Discovery.Watch {
		watcher, err := discovery.NewWatcher(cfg.Discovery.ScriptsFile, registry, log, discovery.DefaultDebounce)
		if err != nil {
			log.Warn("Script list watcher disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				defer func() { _ = watcher.Close() }()
				return watcher.Run(gctx)
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return
	}
	log.Info("Server exited gracefully")
}

func shutdownTelemetry(log *zap.Logger, mp *telemetry.MeterProvider, tp *telemetry.TracerProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
