// Package service holds the signup-confirmation entry handler. Its contract
// is absolute: once an event passes boundary validation, the caller always
// receives an accept signal, no matter what the store or the queue are doing.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"enrolld/internal/enroll/metrics"
	"enrolld/internal/enroll/models"
	"enrolld/internal/enroll/record"
	"enrolld/internal/enroll/scheduler"
	"enrolld/internal/enroll/store"
	"enrolld/pkg/requestcontext"
)

// StatusAccepted is the only status the entry handler ever returns.
const StatusAccepted = "accepted"

// Result is the accept signal returned to the event source. Deferred reports
// whether the write was handed to the retry pipeline instead of completing
// inline; the caller contract does not depend on it.
type Result struct {
	Status   string `json:"status"`
	Deferred bool   `json:"-"`
}

// Service orchestrates the record builder and conditional writer, handing
// failures to the retry scheduler instead of raising.
type Service struct {
	builder        *record.Builder
	records        store.RecordStore
	sched          *scheduler.Scheduler
	metrics        *metrics.Metrics
	logger         *slog.Logger
	attemptTimeout time.Duration
}

// New constructs the entry handler service.
func New(
	builder *record.Builder,
	records store.RecordStore,
	sched *scheduler.Scheduler,
	m *metrics.Metrics,
	logger *slog.Logger,
	attemptTimeout time.Duration,
) *Service {
	if attemptTimeout <= 0 {
		attemptTimeout = 5 * time.Second
	}
	return &Service{
		builder:        builder,
		records:        records,
		sched:          sched,
		metrics:        m,
		logger:         logger,
		attemptTimeout: attemptTimeout,
	}
}

// HandleConfirmation processes one signup-confirmation event. The returned
// error is non-nil only for events that fail boundary validation; such events
// can never produce a record and retrying them is pointless. Everything past
// validation yields an accept signal.
func (s *Service) HandleConfirmation(ctx context.Context, event models.ConfirmationEvent) (Result, error) {
	if err := event.Validate(); err != nil {
		s.metrics.EventsRejected.Inc()
		s.logger.Warn("confirmation event rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return Result{}, err
	}

	rec := s.builder.Build(event)

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	outcome, err := s.records.PutIfAbsent(attemptCtx, rec)
	cancel()

	if err == nil {
		switch outcome {
		case store.Inserted:
			s.metrics.RecordsCreated.Inc()
		case store.AlreadyExists:
			s.metrics.DuplicateWrites.Inc()
		}
		s.logger.Info("record write completed",
			"record_key", rec.Key,
			"subject", rec.Subject,
			"outcome", outcome.String(),
		)
		return Result{Status: StatusAccepted}, nil
	}

	s.metrics.IncImmediateFailure(classify(err))
	s.logger.Error("record write failed, deferring to retry pipeline",
		"record_key", rec.Key,
		"subject", rec.Subject,
		"error", err,
	)

	env := models.Envelope{
		Record:         rec,
		Attempts:       1,
		FirstAttemptAt: rec.CreatedAt,
		LastError:      err.Error(),
	}

	// Scheduling runs on the parent context: the attempt timeout belongs to
	// the store call, not to the hand-off.
	if schedErr := s.sched.Schedule(ctx, env); schedErr != nil {
		// The one place the envelope can be lost before it reaches any
		// queue. Count it loudly; the caller still gets an accept.
		s.metrics.CriticalFailures.Inc()
		s.logger.Error("retry hand-off failed, envelope not queued",
			"record_key", rec.Key,
			"subject", rec.Subject,
			"error", schedErr,
		)
	}

	return Result{Status: StatusAccepted, Deferred: true}, nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transient"
	}
}
