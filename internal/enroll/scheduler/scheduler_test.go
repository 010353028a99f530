package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrolld/internal/enroll/metrics"
	"enrolld/internal/enroll/models"
	"enrolld/internal/enroll/queue"
)

func TestPolicyDelay(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: 60 * time.Second},
		{attempt: 3, want: 120 * time.Second},
		{attempt: 4, want: 300 * time.Second},
		{attempt: 5, want: 300 * time.Second},
		{attempt: 10, want: 300 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicyDelayIsNonDecreasing(t *testing.T) {
	policy := Policy{MaxAttempts: 10, BaseDelay: 5 * time.Second, MaxDelay: 2 * time.Minute}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 15; attempt++ {
		d := policy.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, policy.MaxDelay, "attempt %d", attempt)
		prev = d
	}
}

func TestPolicyDelayClampsInvalidAttempt(t *testing.T) {
	policy := DefaultPolicy()
	assert.Equal(t, 30*time.Second, policy.Delay(0))
	assert.Equal(t, 30*time.Second, policy.Delay(-3))
}

func TestPolicyExhausted(t *testing.T) {
	policy := DefaultPolicy()
	assert.False(t, policy.Exhausted(1))
	assert.False(t, policy.Exhausted(3))
	assert.True(t, policy.Exhausted(4))
}

type enqueueRecorder struct {
	enqueued []time.Duration
	err      error
}

func (q *enqueueRecorder) Enqueue(ctx context.Context, env models.Envelope, delay time.Duration) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, delay)
	return nil
}

func (q *enqueueRecorder) Dequeue(ctx context.Context, max int) ([]queue.Delivery, error) {
	return nil, nil
}

func (q *enqueueRecorder) Ack(ctx context.Context, d queue.Delivery) error { return nil }

func (q *enqueueRecorder) Depth(ctx context.Context) (int64, error) { return 0, nil }

func testEnvelope(attempts int) models.Envelope {
	return models.Envelope{
		Record: models.Record{
			Key:     "usr_test",
			Subject: "sub-1",
			Email:   "a@x.com",
		},
		Attempts:       attempts,
		FirstAttemptAt: time.Now(),
	}
}

func TestScheduleEnqueuesWithBackoffDelay(t *testing.T) {
	rec := &enqueueRecorder{}
	m := metrics.NewWith(prometheus.NewRegistry())
	sched := New(rec, DefaultPolicy(), slog.New(slog.DiscardHandler), m)

	require.NoError(t, sched.Schedule(context.Background(), testEnvelope(1)))
	require.NoError(t, sched.Schedule(context.Background(), testEnvelope(2)))

	require.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second}, rec.enqueued)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetriesScheduled))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SchedulingFailures))
}

func TestScheduleReportsEnqueueFailureWithoutRetrying(t *testing.T) {
	rec := &enqueueRecorder{err: errors.New("queue unavailable")}
	m := metrics.NewWith(prometheus.NewRegistry())
	sched := New(rec, DefaultPolicy(), slog.New(slog.DiscardHandler), m)

	err := sched.Schedule(context.Background(), testEnvelope(1))
	require.Error(t, err)
	assert.Empty(t, rec.enqueued)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulingFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RetriesScheduled))
}
