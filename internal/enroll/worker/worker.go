// Package worker drains the retry queue. Each envelope runs its own small
// state machine with terminal states Succeeded and Escalated; envelopes in a
// batch are processed concurrently and in isolation, so one poisoned envelope
// never blocks its siblings.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"enrolld/internal/enroll/escalation"
	"enrolld/internal/enroll/metrics"
	"enrolld/internal/enroll/models"
	"enrolld/internal/enroll/notifier"
	"enrolld/internal/enroll/queue"
	"enrolld/internal/enroll/scheduler"
	"enrolld/internal/enroll/store"
)

// Config tunes the worker loop.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	Concurrency    int
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

// Worker re-attempts deferred record writes.
type Worker struct {
	queue    queue.RetryQueue
	records  store.RecordStore
	sched    *scheduler.Scheduler
	sink     escalation.Sink
	notify   notifier.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
	cfg      Config
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// New constructs a retry worker.
func New(
	q queue.RetryQueue,
	records store.RecordStore,
	sched *scheduler.Scheduler,
	sink escalation.Sink,
	notify notifier.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Worker {
	w := &Worker{
		queue:   q,
		records: records,
		sched:   sched,
		sink:    sink,
		notify:  notify,
		metrics: m,
		logger:  logger,
		clock:   time.Now,
		cfg:     cfg.withDefaults(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("retry batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch claims one batch of due envelopes and processes them
// concurrently. Per-item failures are aggregated and reported after the whole
// batch has run; they never cancel sibling envelopes. Returns the number of
// envelopes processed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	if depth, err := w.queue.Depth(ctx); err == nil {
		w.metrics.QueueDepth.Set(float64(depth))
	}

	deliveries, err := w.queue.Dequeue(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("dequeue retry batch: %w", err)
	}
	if len(deliveries) == 0 {
		return 0, nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	// A bare errgroup serves purely as a bounded parallelism primitive here:
	// item outcomes are collected, not returned, so one failure cannot
	// cancel the group.
	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for _, d := range deliveries {
		g.Go(func() error {
			if err := w.processDelivery(ctx, d); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("envelope %s: %w", d.Envelope.Record.Key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return len(deliveries), errors.Join(errs...)
}

// processDelivery drives one envelope to Succeeded, a rescheduled retry, or
// Escalated.
func (w *Worker) processDelivery(ctx context.Context, d queue.Delivery) error {
	env := d.Envelope

	if err := env.Validate(); err != nil {
		// Undeliverable envelope: consuming it is the only way to keep it
		// from looping. Count it as critical since its record is lost.
		w.metrics.CriticalFailures.Inc()
		w.logger.Error("dropping undeliverable envelope", "error", err)
		return w.queue.Ack(ctx, d)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	outcome, err := w.records.PutIfAbsent(attemptCtx, env.Record)
	cancel()

	if err == nil {
		return w.succeed(ctx, d, env, outcome)
	}

	w.metrics.RetryFailures.Inc()
	env.Attempts++
	env.LastError = err.Error()

	if !w.sched.Policy().Exhausted(env.Attempts) {
		return w.reschedule(ctx, d, env)
	}
	return w.escalate(ctx, d, env)
}

func (w *Worker) succeed(ctx context.Context, d queue.Delivery, env models.Envelope, outcome store.Outcome) error {
	w.metrics.RetrySuccesses.Inc()
	if outcome == store.Inserted {
		w.metrics.RecordsCreated.Inc()
	} else {
		w.metrics.DuplicateWrites.Inc()
	}
	w.logger.Info("deferred record write recovered",
		"record_key", env.Record.Key,
		"subject", env.Record.Subject,
		"attempts", env.Attempts,
		"outcome", outcome.String(),
	)

	if env.Attempts > 1 {
		subject := "Signup record recovered after retries"
		body := fmt.Sprintf(
			"Record %s (subject %s) was written on attempt %d. First failure was at %s.",
			env.Record.Key, env.Record.Subject, env.Attempts,
			env.FirstAttemptAt.Format(time.RFC3339),
		)
		if err := w.notify.Notify(ctx, subject, body); err != nil {
			w.metrics.NotifierFailures.Inc()
			w.logger.Warn("recovery notification failed", "record_key", env.Record.Key, "error", err)
		}
	}

	return w.queue.Ack(ctx, d)
}

func (w *Worker) reschedule(ctx context.Context, d queue.Delivery, env models.Envelope) error {
	if err := w.sched.Schedule(ctx, env); err != nil {
		// Leave the delivery unacknowledged: the visibility timeout will
		// return it to the queue with its previous attempt count. Slower
		// than a scheduled retry, but nothing is lost.
		return fmt.Errorf("reschedule: %w", err)
	}
	w.logger.Info("retry attempt failed, rescheduled",
		"record_key", env.Record.Key,
		"attempts", env.Attempts,
		"last_error", env.LastError,
	)
	return w.queue.Ack(ctx, d)
}

func (w *Worker) escalate(ctx context.Context, d queue.Delivery, env models.Envelope) error {
	env.RequiresManualIntervention = true
	c := models.EscalatedCase{
		Envelope:    env,
		EscalatedAt: w.clock().UTC(),
	}

	if err := w.sink.Park(ctx, c); err != nil {
		// Failure while handling a failure: the envelope may be gone from
		// every queue. The one class this pipeline cannot auto-recover
		// from, so it gets a distinct critical alert.
		w.metrics.CriticalFailures.Inc()
		w.logger.Error("escalation hand-off failed",
			"record_key", env.Record.Key,
			"subject", env.Record.Subject,
			"error", err,
		)
		w.notifyBestEffort(ctx, env,
			"CRITICAL: signup record escalation failed",
			fmt.Sprintf(
				"Record %s (subject %s) exhausted %d attempts and could not be parked for manual intervention: %v. Last write error: %s.",
				env.Record.Key, env.Record.Subject, env.Attempts, err, env.LastError,
			),
		)
		return fmt.Errorf("escalate: %w", err)
	}

	w.metrics.Escalations.Inc()
	w.logger.Error("envelope escalated for manual intervention",
		"record_key", env.Record.Key,
		"subject", env.Record.Subject,
		"attempts", env.Attempts,
		"first_attempt_at", env.FirstAttemptAt,
		"last_error", env.LastError,
	)
	w.notifyBestEffort(ctx, env,
		"Signup record requires manual intervention",
		fmt.Sprintf(
			"Record %s (subject %s) failed %d attempts. First failure was at %s. Last error: %s.",
			env.Record.Key, env.Record.Subject, env.Attempts,
			env.FirstAttemptAt.Format(time.RFC3339), env.LastError,
		),
	)

	return w.queue.Ack(ctx, d)
}

func (w *Worker) notifyBestEffort(ctx context.Context, env models.Envelope, subject, body string) {
	if err := w.notify.Notify(ctx, subject, body); err != nil {
		w.metrics.NotifierFailures.Inc()
		w.logger.Warn("admin notification failed", "record_key", env.Record.Key, "error", err)
	}
}
