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

	"themeseller/config"
	"themeseller/internal/api"
	"themeseller/internal/broker"
	"themeseller/internal/payment"
	"themeseller/internal/redisclient"
	"themeseller/internal/service"
	"themeseller/internal/store"
	"themeseller/internal/util"
	"themeseller/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting themeseller service")

	tp, err := util.InitTracer("themeseller", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	callbackURL := fmt.Sprintf("%s/api/v1/payments/callback", cfg.Business.AppBaseURL)
	payfonte := payment.NewPayfonteProvider(cfg.Payment.Payfonte, callbackURL)
	providers := map[string]payment.Provider{
		payfonte.Name(): payfonte,
	}
	if cfg.Payment.Stripe.SecretKey != "" {
		stripe := payment.NewStripeProvider(cfg.Payment.Stripe, callbackURL)
		providers[stripe.Name()] = stripe
	}

	orderService := service.NewOrderService(db, providers, eventPublisher, cfg.Business)
	entitlements := service.NewEntitlementUpdater(db, redisClient)
	reconciler := service.NewReconciler(db, providers, entitlements, eventPublisher)
	downloadService := service.NewDownloadService(db, cfg.Business.AssetBaseURL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	payoutConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	payoutWorker := worker.NewPayoutWorker(payoutConsumer, db, payfonte, cfg.Business.Currency)
	go func() {
		if err := payoutWorker.Start(workerCtx); err != nil {
			log.Printf("Payout worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(db, redisClient, orderService, downloadService, reconciler, providers, cfg.Business.AppBaseURL)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	payoutWorker.Stop()

	log.Println("Server exited")
}
