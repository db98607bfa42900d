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
	"github.com/hackgods/appointment-booking-saga/internal/appointment"
	"github.com/hackgods/appointment-booking-saga/internal/config"
	"github.com/hackgods/appointment-booking-saga/internal/db"
	"github.com/hackgods/appointment-booking-saga/internal/discovery"
	"github.com/hackgods/appointment-booking-saga/internal/events"
	"github.com/hackgods/appointment-booking-saga/internal/logger"
	"github.com/hackgods/appointment-booking-saga/internal/outbox"
	"github.com/hackgods/appointment-booking-saga/internal/rabbitmq"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, "scheduling-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("scheduling-service starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("staffing_url", cfg.StaffingServiceURL),
	)

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

	if err := db.Migrate(rootCtx, pgPool, appointment.Schema); err != nil {
		log.Fatal("schema migration error", zap.Error(err))
	}
	log.Info("connected to Postgres")

	// Broker connection is owned here and shared with the publisher
	conn := rabbitmq.NewConnection(cfg.RabbitMQURL, rabbitmq.DialAMQP, cfg.ReconnectDelay, log)
	publisher := rabbitmq.NewPublisher(conn, events.Exchange, log)
	go conn.Run(rootCtx)

	// Inline dispatch only; the outbox-relay binary owns the polling loop
	dispatcher := outbox.NewRelay(outbox.NewPgStore(pgPool), publisher, nil, outbox.RelayConfig{
		Interval:    cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	}, log)

	finder := discovery.NewClient(cfg.StaffingServiceURL, cfg.DiscoveryTimeout)
	svc := appointment.NewService(appointment.NewPgRepository(pgPool), finder, dispatcher, log)

	router := api.NewSchedulingRouter(api.RouterConfig{
		Log:     log,
		Env:     cfg.Env,
		Version: version,
		Dependencies: []api.Dependency{
			{Name: "postgres", Check: pgPool.Ping, Critical: true},
			{Name: "rabbitmq", Check: api.StateCheck(func() bool { return conn.State() == rabbitmq.StateReady })},
		},
	}, svc)

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
	log.Info("shutting down scheduling-service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	conn.Close()
}
