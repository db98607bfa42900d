package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/api"
	"github.com/hackgods/appointment-booking-saga/internal/config"
	"github.com/hackgods/appointment-booking-saga/internal/consultation"
	"github.com/hackgods/appointment-booking-saga/internal/db"
	"github.com/hackgods/appointment-booking-saga/internal/events"
	"github.com/hackgods/appointment-booking-saga/internal/logger"
	"github.com/hackgods/appointment-booking-saga/internal/rabbitmq"
	redisclient "github.com/hackgods/appointment-booking-saga/internal/redis"
)

const (
	queueName       = "consultation_queue"
	attemptsTTL     = 24 * time.Hour
	attemptsKeyBase = "consultation"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, "consultation-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("consultation-service starting up", zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	if err := db.Migrate(rootCtx, pgPool, consultation.Schema); err != nil {
		log.Fatal("schema migration error", zap.Error(err))
	}
	log.Info("connected to Postgres")

	// Redis bounds redelivery; without it failed deliveries requeue forever
	var attempts redisclient.AttemptTracker
	redisCheck := func(context.Context) error { return errors.New("not configured") }
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, redelivery is unbounded", zap.Error(err))
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		attempts = redisclient.NewRedisAttemptTracker(rdb, attemptsKeyBase, attemptsTTL)
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("connected to Redis")
	}

	repo := consultation.NewPgRepository(pgPool)
	projection := consultation.NewProjection(repo, log)

	conn := rabbitmq.NewConnection(cfg.RabbitMQURL, rabbitmq.DialAMQP, cfg.ReconnectDelay, log)
	consumer := rabbitmq.NewConsumer(conn, rabbitmq.ConsumerConfig{
		Exchange:           events.Exchange,
		QueueName:          queueName,
		RoutingKey:         events.RoutingKey(events.AppointmentCreated),
		Prefetch:           cfg.ConsumerPrefetch,
		MaxAttempts:        cfg.MaxDeliveryAttempts,
		DeadLetterExchange: cfg.DeadLetterExchange,
		DeadLetterQueue:    cfg.DeadLetterQueue,
	}, attempts, log)
	consumer.Handle(events.AppointmentCreated, projection.Handle)
	consumer.Start(rootCtx)
	go conn.Run(rootCtx)

	router := api.NewConsultationRouter(api.RouterConfig{
		Log:     log,
		Env:     cfg.Env,
		Version: version,
		Dependencies: []api.Dependency{
			{Name: "postgres", Check: pgPool.Ping, Critical: true},
			{Name: "rabbitmq", Check: api.StateCheck(func() bool { return conn.State() == rabbitmq.StateReady })},
			{Name: "redis", Check: redisCheck},
		},
	}, consultation.NewService(repo, log))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down consultation-service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	conn.Close()
	consumer.Wait()
}
