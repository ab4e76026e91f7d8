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

	appaudit "github.com/syncbridge/backend/internal/application/audit"
	appevent "github.com/syncbridge/backend/internal/application/event"
	"github.com/syncbridge/backend/internal/application/gate"
	"github.com/syncbridge/backend/internal/application/reconcile"
	appsnapshot "github.com/syncbridge/backend/internal/application/snapshot"
	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/domain/event"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/infrastructure/cache"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/ecommerce"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
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
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("starting syncbridge backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database with zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	if err := persistence.AutoMigrate(db.DB); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// Repositories
	alerts := persistence.NewGormAlertRepository(db.DB)
	changeLogs := persistence.NewGormChangeLogRepository(db.DB)
	mappings := persistence.NewGormEntityMappingRepository(db.DB)
	rateStates := persistence.NewGormRateLimitRepository(db.DB)
	snapshots := persistence.NewGormSnapshotRepository(db.DB)
	restorePoints := persistence.NewGormRestorePointRepository(db.DB)
	rollbacks := persistence.NewGormRollbackRepository(db.DB)
	events := persistence.NewGormSyncEventRepository(db.DB)
	records := persistence.NewGormProcessingRecordRepository(db.DB)
	subscriptions := persistence.NewGormSubscriptionRepository(db.DB)
	syncLogs := persistence.NewGormSyncLogRepository(db.DB)

	// Idempotency store: Redis when reachable, in-memory otherwise
	idemStore, err := cache.NewIdempotencyStoreFactory(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}).WithLogger(log).WithInMemoryFallback(true).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		_ = idemStore.Close()
	}()

	// Application services
	gateSvc := gate.NewService(rateStates, cache.NewInMemoryStateCache(), cfg.RateLimits, alerts, log)
	tracker := appaudit.NewTracker(changeLogs, log)
	snapSvc := appsnapshot.NewService(snapshots, restorePoints, alerts, log)

	// Platform connectors
	shopifyConn := buildShopifyConnector(cfg, log)
	netsuiteConn := buildNetSuiteConnector(cfg, log)
	connectors := ecommerce.NewStaticRegistry(shopifyConn, netsuiteConn)

	// Reconciler
	currencies := map[platform.Code]string{
		platform.CodeShopify:  "USD",
		platform.CodeNetSuite: "USD",
	}
	converter := ecommerce.NewFixedRateConverter()
	syncSvc := reconcile.NewSyncService(
		syncLogs,
		reconcile.NewProductSyncer(connectors, mappings, snapSvc, tracker, gateSvc, log),
		reconcile.NewInventorySyncer(connectors, mappings, tracker, gateSvc, log),
		reconcile.NewOrderSyncer(connectors, mappings, converter, tracker, gateSvc, currencies, log),
		log,
	)

	// Rollback
	restorer := reconcile.NewRestorer(connectors, gateSvc, log)
	roller := appsnapshot.NewRoller(snapshots, restorePoints, rollbacks, restorer, tracker, alerts, log)

	// Event bus
	registry := appevent.NewRegistry()
	handlers := appevent.NewHandlerRegistry()
	dispatcher := appevent.NewDispatcher(events, records, registry, alerts, appevent.DispatcherConfig{
		TickInterval:     cfg.Dispatcher.PollInterval,
		CleanupEnabled:   cfg.Dispatcher.CleanupEnabled,
		CleanupRetention: cfg.Dispatcher.CleanupRetention,
		CleanupInterval:  cfg.Dispatcher.CleanupInterval,
	}, log)
	eventSvc := appevent.NewService(dispatcher, events, records, log)
	subSvc := appevent.NewSubscriptionService(registry, handlers, subscriptions, log)

	registerStaticSubscriptions(subSvc, alerts, log)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	if err := subSvc.LoadPersisted(startupCtx); err != nil {
		log.Warn("failed to load persisted subscriptions", zap.Error(err))
	}
	cancelStartup()

	if cfg.Dispatcher.Enabled {
		if err := dispatcher.Start(context.Background()); err != nil {
			log.Fatal("Failed to start event dispatcher", zap.Error(err))
		}
	}

	// HTTP handlers
	system := handler.NewSystemHandler().
		WithCheck("database", func(context.Context) error { return db.Ping() })
	if redisStore, ok := idemStore.(*cache.RedisIdempotencyStore); ok {
		system = system.WithCheck("redis", func(ctx context.Context) error {
			return redisStore.GetClient().Ping(ctx).Err()
		})
	}

	engine, err := router.New(log, routerConfig(cfg), router.Handlers{
		System:     system,
		Events:     handler.NewEventHandler(eventSvc, idemStore),
		Sync:       handler.NewSyncHandler(syncSvc),
		Rollback:   handler.NewRollbackHandler(roller, snapSvc),
		RateLimits: handler.NewRateLimitHandler(cfg.RateLimits, gateSvc),
		Changes:    handler.NewChangeHandler(tracker),
		Alerts:     handler.NewAlertHandler(alerts),
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Dispatcher.Enabled {
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			log.Error("event dispatcher shutdown failed", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
}

// registerStaticSubscriptions wires the built-in handlers under stable
// names so stored subscriptions can re-attach to them. Dynamic
// subscriptions come from the store via LoadPersisted.
func registerStaticSubscriptions(subs *appevent.SubscriptionService, alerts alert.Repository, log *zap.Logger) {
	logSub, err := event.NewSubscription("event-log", appevent.NewLoggingHandler(log))
	if err == nil {
		logSub.Priority = -100
		err = subs.RegisterStatic(logSub)
	}
	if err != nil {
		log.Fatal("Failed to register event log subscription", zap.Error(err))
	}

	failSub, err := event.NewSubscription("failure-alerts",
		appevent.NewFailureAlertHandler(alerts, log),
		event.TypeSyncFailed, event.TypeAPIRateLimited)
	if err == nil {
		err = subs.RegisterStatic(failSub)
	}
	if err != nil {
		log.Fatal("Failed to register failure alert subscription", zap.Error(err))
	}
}

// routerConfig maps the HTTP config section onto the router.
func routerConfig(cfg *config.Config) router.Config {
	mode := gin.DebugMode
	if cfg.App.Env == "production" {
		mode = gin.ReleaseMode
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	return router.Config{
		Mode:           mode,
		CORS:           cors,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}
}

// buildShopifyConnector returns the real Shopify adapter when credentials
// are configured and an in-memory stand-in otherwise, so the service runs
// end to end in development without store credentials.
func buildShopifyConnector(cfg *config.Config, log *zap.Logger) platform.Connector {
	if cfg.Shopify.ShopDomain == "" || cfg.Shopify.AccessToken == "" {
		log.Warn("shopify credentials not configured, using in-memory connector")
		return ecommerce.NewMemoryConnector(platform.CodeShopify)
	}

	shopifyCfg := ecommerce.NewShopifyConfig(cfg.Shopify.ShopDomain, cfg.Shopify.AccessToken)
	if cfg.Shopify.APIVersion != "" {
		shopifyCfg.APIVersion = cfg.Shopify.APIVersion
	}
	adapter, err := ecommerce.NewShopifyAdapter(shopifyCfg)
	if err != nil {
		log.Fatal("Failed to create Shopify adapter", zap.Error(err))
	}
	return adapter
}

// buildNetSuiteConnector mirrors buildShopifyConnector for NetSuite.
func buildNetSuiteConnector(cfg *config.Config, log *zap.Logger) platform.Connector {
	if cfg.NetSuite.AccountID == "" || cfg.NetSuite.AccessToken == "" {
		log.Warn("netsuite credentials not configured, using in-memory connector")
		return ecommerce.NewMemoryConnector(platform.CodeNetSuite)
	}

	adapter, err := ecommerce.NewNetSuiteAdapter(ecommerce.NewNetSuiteConfig(cfg.NetSuite.AccountID, cfg.NetSuite.AccessToken))
	if err != nil {
		log.Fatal("Failed to create NetSuite adapter", zap.Error(err))
	}
	return adapter
}
