// Package scheduler computes backoff delays and enqueues retry envelopes.
// The delay function exists to spread load away from the moment of a
// transient dependency outage rather than hammer it immediately.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"enrolld/internal/enroll/metrics"
	"enrolld/internal/enroll/models"
	"enrolld/internal/enroll/queue"
)

// Policy bounds the retry pipeline: how many attempts an envelope gets and
// how long it waits between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy gives three attempts at 30s/60s/120s before escalation.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Second,
		MaxDelay:    300 * time.Second,
	}
}

// Delay returns the backoff before re-attempting at the given attempt count.
// The delay doubles from BaseDelay per attempt and never exceeds MaxDelay;
// attempts past the retry budget sit at MaxDelay. Non-decreasing in attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > p.MaxAttempts {
		return p.MaxDelay
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// Exhausted reports whether the envelope has used up its attempt budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt > p.MaxAttempts
}

// Scheduler enqueues retry envelopes with the policy's delay. Enqueue
// failures are logged and metriced but never retried recursively; the error
// is returned so callers can decide what the failure means for them.
type Scheduler struct {
	queue   queue.RetryQueue
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Scheduler.
func New(q queue.RetryQueue, policy Policy, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		queue:   q,
		policy:  policy,
		logger:  logger,
		metrics: m,
	}
}

// Policy exposes the retry policy for the worker's budget checks.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Schedule enqueues the envelope with the delay for its attempt count.
func (s *Scheduler) Schedule(ctx context.Context, env models.Envelope) error {
	delay := s.policy.Delay(env.Attempts)
	if err := s.queue.Enqueue(ctx, env, delay); err != nil {
		s.metrics.SchedulingFailures.Inc()
		s.logger.Error("failed to schedule retry",
			"record_key", env.Record.Key,
			"subject", env.Record.Subject,
			"attempts", env.Attempts,
			"error", err,
		)
		return err
	}

	s.metrics.RetriesScheduled.Inc()
	s.logger.Info("retry scheduled",
		"record_key", env.Record.Key,
		"attempts", env.Attempts,
		"delay", delay,
	)
	return nil
}
