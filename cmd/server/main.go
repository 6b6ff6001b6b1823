package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shoe-store/config"
	"shoe-store/internal/api"
	"shoe-store/internal/blobstore"
	"shoe-store/internal/broker"
	"shoe-store/internal/docstore"
	"shoe-store/internal/identity"
	"shoe-store/internal/redisclient"
	"shoe-store/internal/service"
	"shoe-store/internal/util"
	"shoe-store/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(util.LoggerOptions{
		Env:     cfg.Server.Env,
		Service: "shoe-store",
		Level:   cfg.Observ.LogLevel,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shoe store backend")

	tp, err := util.InitTracer(util.TracerOptions{
		Service:     "shoe-store",
		Env:         cfg.Server.Env,
		Endpoint:    cfg.Observ.JaegerEndpoint,
		SampleRatio: cfg.Observ.SampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	readiness := map[string]func(context.Context) error{}

	var store docstore.Store
	switch cfg.Database.Driver {
	case "memory":
		store = docstore.NewMemoryStore()
		logger.Warn("Using in-memory document store; data is lost on restart")
	default:
		pg, err := docstore.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		readiness["postgres"] = pg.Ping
		store = pg
		logger.Info("Database connected")
	}
	defer store.Close()

	// Without Redis the locks fall back to in-process ones and idempotency
	// keys are ignored.
	var (
		locker      service.Locker = service.NewLocalLocker()
		idempotency service.IdempotencyStore
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Business.LockTTL)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process locks", zap.Error(err))
	} else {
		defer redisClient.Close()
		locker = redisClient
		idempotency = redisClient
		readiness["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	ctx := context.Background()
	blobs, err := blobstore.New(ctx, cfg.Storage, cfg.Server.BaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}
	localBlobs, err := blobstore.NewLocalStore(cfg.Storage.UploadDir, cfg.Server.BaseURL+"/uploads")
	if err != nil {
		log.Fatalf("Failed to initialize upload dir: %v", err)
	}

	inventoryService := service.NewInventoryService(store, locker, eventPublisher,
		cfg.Business.LowStockThreshold, cfg.Business.StockAlertDisplayCap)
	notificationService := service.NewNotificationService(store)

	services := api.Services{
		Identity:      identity.NewProvider(store, locker, cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Users:         service.NewUserService(store, locker),
		Catalog:       service.NewCatalogService(store),
		Cart:          service.NewCartService(store, locker),
		Orders:        service.NewOrderService(store, locker, eventPublisher, idempotency, cfg.Business.IdempotencyTTL),
		Addresses:     service.NewAddressService(store, locker),
		Inventory:     inventoryService,
		Admin:         service.NewAdminService(store, locker, blobs),
		Notifications: notificationService,
		Uploads:       service.NewUploadService(store, blobs, cfg.Storage.MaxUploadBytes),
		LocalUploads:  service.NewUploadService(store, localBlobs, cfg.Storage.MaxUploadBytes),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	inventoryConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	inventoryWorker := worker.NewInventoryWorker(inventoryConsumer, inventoryService, notificationService,
		cfg.Business.DecrementStockOnOrder)
	go func() {
		if err := inventoryWorker.Start(workerCtx); err != nil {
			logger.Error("Inventory worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, api.Options{
		ExposeErrors:    cfg.Server.Env != "production",
		UploadDir:       localBlobs.Root(),
		MaxUploadBytes:  cfg.Storage.MaxUploadBytes,
		ReadinessChecks: readiness,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := inventoryWorker.Stop(); err != nil {
		logger.Warn("Error stopping inventory worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
