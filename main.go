package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meal-order-api/bag"
	"meal-order-api/config"
	"meal-order-api/handlers"
	"meal-order-api/linkpreview"
	"meal-order-api/live"
	"meal-order-api/metrics"
	"meal-order-api/middleware"
	"meal-order-api/notify"
	"meal-order-api/objectstore"
	"meal-order-api/routes"
	"meal-order-api/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		zap.Must(zap.NewProduction()).Sugar().Fatalw("invalid configuration", "error", err)
	}

	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := config.OpenDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatalw("failed to open database", "path", cfg.DatabasePath, "error", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalw("failed to get database handle", "error", err)
	}
	logger.Infow("database ready", "path", cfg.DatabasePath)

	hub := live.NewHub()
	m := metrics.New()

	// notification queue is optional
	var publisher notify.Publisher
	if cfg.AMQP.URL != "" {
		p, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logger.Fatalw("failed to connect to RabbitMQ", "error", err)
		}
		publisher = p
		logger.Infow("publishing notifications", "queue", cfg.AMQP.Queue)
	} else {
		logger.Warn("AMQP_URL not set, notifications stay in-app only")
	}
	notifier := notify.New(db, hub, publisher, cfg.AMQP.Queue, m, logger)

	var bagStore bag.Store
	switch cfg.Bag.Store {
	case "file":
		fs, err := bag.NewFileStore(cfg.Bag.Dir)
		if err != nil {
			logger.Fatalw("failed to open bag directory", "dir", cfg.Bag.Dir, "error", err)
		}
		bagStore = fs
	default:
		bagStore = bag.NewDBStore(db)
	}

	objects, err := objectstore.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.BaseURL)
	if err != nil {
		logger.Fatalw("failed to open upload directory", "dir", cfg.Uploads.Dir, "error", err)
	}

	var previewer service.Previewer
	if cfg.LinkPreview.Enabled {
		previewer = linkpreview.NewFetcher(cfg.LinkPreview.Timeout, cfg.LinkPreview.Budget)
	}

	catalog := service.NewCatalog(db, objects, hub, logger)
	h := &handlers.Handler{
		Accounts:      service.NewAccounts(db, bagStore, cfg.ReauthAfter, logger),
		Catalog:       catalog,
		Bags:          service.NewBags(bagStore, catalog, m, logger),
		Orders:        service.NewOrders(db, notifier, hub, m, logger),
		Notifications: service.NewNotifications(db, notifier, logger),
		Suggestions:   service.NewSuggestions(db, previewer, cfg.Suggestions.MaxLength, m, logger),
		Tokens:        middleware.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		Hub:           hub,
		Metrics:       m,
		Logger:        logger,
		MaxUpload:     cfg.Uploads.MaxBytes,
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.Uploads.MaxBytes
	r.Use(gin.Recovery(), middleware.Logger(logger), middleware.CORS())
	routes.SetupRoutes(r, h, db, objects.Root())

	if err := run(cfg.Addr, r, hub, publisher, sqlDB, logger); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}

// run serves until SIGINT/SIGTERM, then drains requests and releases
// resources.
func run(addr string, handler http.Handler, hub *live.Hub, publisher notify.Publisher, sqlDB *sql.DB, logger *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: time.Second * 10,
		IdleTimeout: time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Infow("signal caught", "signal", s.String())

		// hijacked live connections are not tracked by Shutdown
		hub.Close()
		shutdown <- srv.Shutdown(ctx)
	}()

	logger.Infow("server has started", "addr", addr)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdown; err != nil {
		return err
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Errorw("error closing RabbitMQ", "error", err)
		}
	}
	if err := sqlDB.Close(); err != nil {
		logger.Errorw("error closing database", "error", err)
	}

	logger.Infow("server has stopped", "addr", addr)
	return nil
}
