package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/consumer"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/dispatcher"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/repository"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/routes"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/services"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/transport"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/logger"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/metrics"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogFormat)
	logr.Info("starting push registrar", slog.String("app", cfg.AppName))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := repository.NewRegistrationStore(db, cfg.StatusTable)
	if err != nil {
		logr.Error("failed to prepare registration store", slog.Any("error", err))
		os.Exit(1)
	}
	statusUpdater := services.NewStatusUpdater(store, logr)

	var cache services.RegistrationCache
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		redisRepo := repository.NewRedisRepository(rdb, cfg.RegistrationTTL)
		defer redisRepo.Close()
		cache = redisRepo
	}

	metricsCollector := metrics.New()
	client := transport.NewClient(cfg.PubNub, logr)
	disp := dispatcher.New(client, metricsCollector, logr, retry.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	})

	processor := services.NewRegistrationProcessor(
		cfg.PubNub,
		disp,
		statusUpdater,
		cache,
		metricsCollector,
		logr,
	)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	base := consumer.NewBaseConsumer(
		conn,
		consumer.Topology{
			Exchange:   cfg.Exchange,
			Queue:      cfg.RegistrationQueue,
			DeadLetter: cfg.DeadLetterQueue,
			RoutingKey: cfg.RoutingKey,
		},
		cfg.PrefetchCount,
		cfg.WorkerCount,
		logr,
	)
	registrationConsumer := consumer.NewRegistrationConsumer(base, processor, logr, cfg.MaxDeliveries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := startHTTPServer(cfg.HTTPPort, processor, store, metricsCollector, logr, time.Now())

	if err := registrationConsumer.Start(ctx); err != nil {
		logr.Error("registration consumer exited", slog.Any("error", err))
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("push registrar stopped")
}

func startHTTPServer(port string, processor routes.Processor, statuses routes.StatusReader, metricsCollector *metrics.Metrics, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8083"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(processor, statuses, metricsCollector, logr, started),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
