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

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type runner interface {
	Start(ctx context.Context) error
	Stop() error
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	eventsProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer eventsProducer.Close()
	revalidateProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRevalidate)
	defer revalidateProducer.Close()
	logger.Info("Kafka producers initialized",
		zap.String("events_topic", cfg.Kafka.TopicEvents),
		zap.String("revalidate_topic", cfg.Kafka.TopicRevalidate))

	eventPublisher := broker.NewEventPublisher(eventsProducer, revalidateProducer)

	pricing := service.PricingRules{
		TaxRate:               cfg.Business.TaxRate,
		StandardShippingFee:   cfg.Business.StandardShippingFee,
		ExpressShippingFee:    cfg.Business.ExpressShippingFee,
		FreeShippingThreshold: cfg.Business.FreeShippingThreshold,
	}
	gateway := service.NewMockGateway(
		cfg.Business.PaymentSuccessRate,
		time.Duration(cfg.Business.PaymentLatencyMillis)*time.Millisecond,
		time.Now().UnixNano(),
	)

	inventoryService := service.NewInventoryService(db, redisClient, eventPublisher)
	cartService := service.NewCartService(db, eventPublisher)
	orderService := service.NewOrderService(db, inventoryService, eventPublisher, redisClient, service.OrderOptions{
		Pricing:           pricing,
		OrderNumberPrefix: cfg.Business.OrderNumberPrefix,
		CheckoutLockTTL:   time.Duration(cfg.Business.CheckoutLockSeconds) * time.Second,
	})
	adminService := service.NewAdminService(db, inventoryService, eventPublisher, cfg.Business.LowStockThreshold)
	paymentService := service.NewPaymentService(db, gateway, eventPublisher)
	sagaOrchestrator := service.NewSagaOrchestrator(db, orderService, eventPublisher)

	if _, err := inventoryService.WarmStockCache(ctx); err != nil {
		logger.Warn("Failed to warm stock cache", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := func(suffix string) *broker.Consumer {
		return broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup+"-"+suffix)
	}
	workers := map[string]runner{
		"orders":      worker.NewOrderWorker(consumer("orders"), sagaOrchestrator),
		"payments":    worker.NewPaymentWorker(consumer("payments"), paymentService),
		"stock-cache": worker.NewStockCacheWorker(consumer("stock-cache"), inventoryService),
	}
	for name, w := range workers {
		name, w := name, w
		go func() {
			if err := w.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Worker stopped", zap.String("worker", name), zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Cart:      cartService,
		Orders:    orderService,
		Inventory: inventoryService,
		Admin:     adminService,
	}, auth.NewHeaderProvider(db), map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	for name, w := range workers {
		if err := w.Stop(); err != nil {
			logger.Warn("Failed to stop worker", zap.String("worker", name), zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
