package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-service/internal/api"
	"notification-service/internal/auth"
	"notification-service/internal/channels"
	"notification-service/internal/config"
	"notification-service/internal/db"
	"notification-service/internal/hub"
	"notification-service/internal/logging"
	"notification-service/internal/notification"
	"notification-service/internal/stream"
	"notification-service/pkg/email"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	verifier, err := auth.NewHMACVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to init token verifier: %v", err)
	}

	// Realtime hub
	h := hub.New(logger, cfg.Hub.HeartbeatInterval, cfg.Hub.MaxConnsPerUser)
	h.Start()

	// Delivery channels
	mailer := email.New(cfg.Email.SMTPServer, cfg.Email.SMTPPort,
		cfg.Email.Username, cfg.Email.Password, cfg.Email.FromEmail, cfg.Email.FromName)
	senders := channels.NewRegistry(
		channels.NewEmailSender(mailer),
		channels.NewRealtimeSender(h),
		channels.NewPushSender(),
	)

	publisher := stream.NewPublisher(rdb, cfg.Redis.NotificationEventsStream, logger)

	// Notification orchestrator
	svc := notification.New(dbConn, dbConn, dbConn, publisher, senders, logger, notification.Options{
		QueueSize:         cfg.Notification.QueueSize,
		MaxWorkers:        cfg.Notification.MaxWorkers,
		MaxRetryAttempts:  cfg.Notification.MaxRetryAttempts,
		RetryDelay:        cfg.Notification.RetryDelay,
		TemplateCacheSize: cfg.Notification.TemplateCacheSize,
		TemplateCacheTTL:  cfg.Notification.TemplateCacheTTL,
	})
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Stream consumer
	consumer := stream.NewConsumer(rdb, stream.Config{
		UserEventsStream:       cfg.Redis.UserEventsStream,
		AssessmentEventsStream: cfg.Redis.AssessmentEventsStream,
		ProctoringEventsStream: cfg.Redis.ProctoringEventsStream,
		Group:                  cfg.Redis.ConsumerGroup,
		Consumer:               cfg.Redis.ConsumerName,
		PollInterval:           cfg.Redis.PollInterval,
		PollBlock:              cfg.Redis.PollBlock,
		PollCount:              cfg.Redis.PollCount,
	}, svc, logger)
	if err := consumer.EnsureGroups(ctx); err != nil {
		log.Fatalf("Failed to create consumer groups: %v", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()
	logger.Infof("Stream consumer started (group=%s consumer=%s)",
		cfg.Redis.ConsumerGroup, cfg.Redis.ConsumerName)

	// API server
	handler := api.NewHandler(dbConn, svc, h, logger)
	router := api.NewRouter(handler, verifier, cfg.API.BasePath)
	server := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown: %v", err)
	}

	svc.Stop()
	h.Stop()
	wg.Wait()
	logger.Infof("Shutdown complete")
}
