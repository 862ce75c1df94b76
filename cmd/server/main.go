package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appdedup "github.com/mergedesk/backend/internal/application/dedup"
	"github.com/mergedesk/backend/internal/application/importer"
	"github.com/mergedesk/backend/internal/infrastructure/auth"
	"github.com/mergedesk/backend/internal/infrastructure/config"
	"github.com/mergedesk/backend/internal/infrastructure/crm"
	"github.com/mergedesk/backend/internal/infrastructure/logger"
	"github.com/mergedesk/backend/internal/infrastructure/persistence"
	"github.com/mergedesk/backend/internal/infrastructure/progress"
	"github.com/mergedesk/backend/internal/infrastructure/runlock"
	"github.com/mergedesk/backend/internal/infrastructure/scheduler"
	"github.com/mergedesk/backend/internal/interfaces/http/handler"
	"github.com/mergedesk/backend/internal/interfaces/http/middleware"
	"github.com/mergedesk/backend/internal/interfaces/http/router"
)

// @title        MergeDesk Backend API
// @version      1.0
// @description  Duplicate detection and resolution service for CRM contact data.
// @BasePath     /api/v1
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting MergeDesk backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	log.Info("Database ready")

	// Initialize repositories
	contactRepo := persistence.NewGormContactRepository(db.DB)
	groupRepo := persistence.NewGormGroupRepository(db.DB)
	intentRepo := persistence.NewGormMergeIntentRepository(db.DB)
	overrideRepo := persistence.NewGormFieldOverrideRepository(db.DB)
	markRepo := persistence.NewGormRemovalMarkRepository(db.DB)
	actionRepo := persistence.NewGormActionRepository(db.DB)

	// Initialize infrastructure services
	crmClient := crm.NewClient(cfg.CRM, log)
	lock := runlock.NewFromConfig(cfg.Redis, log)
	tracker := progress.NewTracker()

	// Initialize application services
	detectionService := appdedup.NewDetectionService(
		contactRepo, groupRepo, intentRepo, overrideRepo, markRepo, actionRepo, cfg.Dedup, log)
	mergeService := appdedup.NewMergeService(
		contactRepo, groupRepo, intentRepo, overrideRepo, markRepo, log)
	removalService := appdedup.NewRemovalService(contactRepo, groupRepo, markRepo, log)
	finishService := appdedup.NewFinishService(
		contactRepo, groupRepo, intentRepo, overrideRepo, markRepo,
		crmClient, lock, tracker, cfg.Dedup, log)
	queryService := appdedup.NewQueryService(contactRepo, groupRepo, markRepo)
	importService := importer.NewImportService(contactRepo, actionRepo, crmClient, log)

	// Start the failed-action retry sweep
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	retrySweep := scheduler.NewRetrySweep(cfg.Sweep, actionRepo, importService, log)
	retrySweep.Start(sweepCtx)

	// Initialize JWT authentication
	jwtService := auth.NewJWTService(cfg.JWT)

	// Initialize HTTP handlers
	dedupHandler := handler.NewDedupHandler(
		detectionService, mergeService, removalService, finishService, queryService)
	importHandler := handler.NewImportHandler(importService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack, outermost first
	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORSWithConfig(corsConfig),
		middleware.JWTAuthMiddleware(jwtService),
	)

	// Health endpoint sits outside the versioned API group and skips auth
	engine.GET("/health", healthHandler(db))

	// Register versioned routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(systemHandler)
	r.Register(dedupHandler)
	r.Register(importHandler)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	cancelSweep()
	retrySweep.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}

// healthHandler reports liveness, returning 503 when the database is
// unreachable.
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
