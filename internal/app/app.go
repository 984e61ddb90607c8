package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/internal/config"
	"github.com/talentpitch/searchrec/internal/database"
	"github.com/talentpitch/searchrec/internal/handlers"
	"github.com/talentpitch/searchrec/internal/messaging"
	"github.com/talentpitch/searchrec/internal/middleware"
	"github.com/talentpitch/searchrec/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	producer *messaging.FeedEventProducer
	handlers *handlers.Handlers
	router   *gin.Engine

	drainCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	app.services = services.New(cfg, app.logger, db)
	app.producer = messaging.NewFeedEventProducer(cfg, app.logger)
	app.handlers = handlers.New(app.services, app.producer, cfg, app.logger)

	app.setupRouter()
	return app, nil
}

// Start loads the initial snapshot and launches the activity drain.
func (a *App) Start(ctx context.Context) error {
	if err := a.services.Reload(ctx); err != nil {
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	a.drainCancel = cancel
	go a.services.Tracker.Run(drainCtx)
	return nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.drainCancel != nil {
		a.drainCancel()
	}

	// Drain whatever activity is still buffered before the stores close.
	if _, err := a.services.Tracker.FlushAll(ctx); err != nil {
		a.logger.WithError(err).Error("Final activity flush failed")
	}

	if err := a.producer.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing feed event producer")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}
	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	router.GET("/", a.handlers.Root)
	router.GET("/health", a.handlers.Health)
	router.GET("/health/detailed", a.handlers.HealthDetail)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	prefix := a.config.Server.APIPath
	if prefix == "" {
		prefix = "/api"
	}

	api := router.Group(prefix)
	{
		api.GET("", a.handlers.Root)
		search := api.Group("/search")
		{
			search.POST("/total", a.handlers.Total)
			search.POST("/discover", a.handlers.Discover)
			search.POST("/flow", a.handlers.Flow)
			search.POST("/reload", a.handlers.Reload)
		}
	}

	a.router = router
}
