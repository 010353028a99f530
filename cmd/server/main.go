package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"enrolld/internal/enroll/consumer"
	"enrolld/internal/enroll/escalation"
	"enrolld/internal/enroll/handler"
	"enrolld/internal/enroll/metrics"
	"enrolld/internal/enroll/notifier"
	"enrolld/internal/enroll/queue"
	"enrolld/internal/enroll/record"
	"enrolld/internal/enroll/scheduler"
	"enrolld/internal/enroll/service"
	"enrolld/internal/enroll/store"
	"enrolld/internal/enroll/worker"
	"enrolld/internal/platform/config"
	"enrolld/internal/platform/httpserver"
	"enrolld/internal/platform/logger"
	"enrolld/internal/platform/postgres"
	redisplatform "enrolld/internal/platform/redis"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal/enroll packages. Every external
// client is constructed here and injected, never reached for ambiently.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}

	var (
		records store.RecordStore
		sink    escalation.Sink
	)
	if db != nil {
		defer db.Close()
		pgStore := store.NewPostgres(db)
		pgSink := escalation.NewPostgres(db)
		if err := pgStore.Schema(ctx); err != nil {
			log.Error("record store schema failed", "error", err)
			os.Exit(1)
		}
		if err := pgSink.Schema(ctx); err != nil {
			log.Error("escalation sink schema failed", "error", err)
			os.Exit(1)
		}
		records = pgStore
		sink = pgSink
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		records = store.NewInMemory()
		sink = escalation.NewInMemory()
	}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	var retryQueue queue.RetryQueue
	if redisClient != nil {
		defer redisClient.Close()
		retryQueue = queue.NewRedis(redisClient.Client,
			queue.WithVisibilityTimeout(cfg.Worker.VisibilityTimeout),
		)
	} else {
		log.Warn("no redis configured, using in-memory retry queue")
		retryQueue = queue.NewInMemory()
	}

	var notify notifier.Notifier
	if cfg.Notifier.WebhookURL != "" {
		notify = notifier.NewWebhook(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
	} else {
		notify = notifier.NewLog(log)
	}

	policy := scheduler.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	sched := scheduler.New(retryQueue, policy, log, m)
	builder := record.NewBuilder()
	svc := service.New(builder, records, sched, m, log, cfg.Retry.AttemptTimeout)

	retryWorker := worker.New(retryQueue, records, sched, sink, notify, m, log, worker.Config{
		PollInterval:   cfg.Worker.PollInterval,
		BatchSize:      cfg.Worker.BatchSize,
		Concurrency:    cfg.Worker.Concurrency,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	})
	go func() {
		if err := retryWorker.Run(ctx); err != nil && err != context.Canceled {
			log.Error("retry worker stopped", "error", err)
		}
	}()

	kafkaConsumer, err := consumer.New(cfg.Kafka, svc, m, log)
	if err != nil {
		log.Error("kafka consumer setup failed", "error", err)
		os.Exit(1)
	}
	if kafkaConsumer != nil {
		defer kafkaConsumer.Close()
		go func() {
			if err := kafkaConsumer.Run(ctx); err != nil && err != context.Canceled {
				log.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	checks := map[string]handler.Health{}
	if db != nil {
		checks["postgres"] = healthFunc(db.PingContext)
	}
	if redisClient != nil {
		checks["redis"] = healthFunc(redisClient.Health)
	}

	router := chi.NewRouter()
	h := handler.New(svc, log, checks)
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting enrolld", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error {
	return f(ctx)
}
