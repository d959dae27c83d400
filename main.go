package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"identity-reconciliation/internal/config"
	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/events"
	"identity-reconciliation/internal/handlers"
	"identity-reconciliation/internal/logger"
	"identity-reconciliation/internal/metrics"
	"identity-reconciliation/internal/repository"
	"identity-reconciliation/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Debug)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize database
	db, err := database.New(database.Config{
		DSN:          cfg.DatabaseURL,
		DriverName:   cfg.DBDriver,
		MaxOpenConns: cfg.DBMaxOpenConns,
		Logger:       log,
		Hooks: []database.Hook{
			database.NewLogHook(database.LogHookConfig{Logger: log, SlowQueryThreshold: cfg.SlowQueryThreshold, LogArgs: cfg.Debug}),
			database.NewMetricsHook(m),
			database.NewTracingHook(otel.Tracer("identity-reconciliation/database")),
		},
	})
	if err != nil {
		return err
	}
	defer db.Close()

	store := repository.NewSQLTransactor(db)
	if cfg.SeedExample {
		seeded, err := repository.SeedExample(ctx, store, time.Now().UTC())
		if err != nil {
			return err
		}
		if seeded {
			log.Info("seeded example contact", "email", repository.SeedEmail)
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		publisher = rabbit
		log.Info("publishing identity events", "exchange", cfg.AMQPExchange)
	}
	defer publisher.Close()

	svc := service.NewReconciliationService(store,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithPublisher(publisher),
		service.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
		service.WithTimeout(cfg.RequestTimeout),
	)

	// Setup router
	router := handlers.NewRouter(handlers.Routes{
		Identify: handlers.NewIdentifyHandler(svc, log),
		Health:   handlers.NewHealthHandler(db, log),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "addr", srv.Addr, "driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
