package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/config"
	"github.com/hackgods/appointment-booking-saga/internal/db"
	"github.com/hackgods/appointment-booking-saga/internal/events"
	"github.com/hackgods/appointment-booking-saga/internal/logger"
	"github.com/hackgods/appointment-booking-saga/internal/outbox"
	"github.com/hackgods/appointment-booking-saga/internal/rabbitmq"
	redisclient "github.com/hackgods/appointment-booking-saga/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, "outbox-relay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("outbox-relay starting up",
		zap.Duration("interval", cfg.OutboxInterval),
		zap.Int("batch_size", cfg.OutboxBatchSize),
		zap.Int("max_attempts", cfg.OutboxMaxAttempts),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	if err := db.Migrate(rootCtx, pgPool, outbox.Schema); err != nil {
		log.Fatal("schema migration error", zap.Error(err))
	}
	log.Info("connected to Postgres")

	// Without Redis only one relay replica may run
	var locker redisclient.Locker = redisclient.NoopLocker{}
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, relay runs without a lock", zap.Error(err))
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		log.Info("connected to Redis")
	}

	conn := rabbitmq.NewConnection(cfg.RabbitMQURL, rabbitmq.DialAMQP, cfg.ReconnectDelay, log)
	publisher := rabbitmq.NewPublisher(conn, events.Exchange, log)
	go conn.Run(rootCtx)

	relay := outbox.NewRelay(outbox.NewPgStore(pgPool), publisher, locker, outbox.RelayConfig{
		Interval:    cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		Ready:       func() bool { return conn.State() == rabbitmq.StateReady },
	}, log)
	relay.Start(rootCtx)

	<-rootCtx.Done()
	log.Info("shutdown signal received, stopping outbox relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := relay.Shutdown(shutdownCtx); err != nil {
		log.Warn("outbox relay shutdown", zap.Error(err))
	}
	conn.Close()
}
