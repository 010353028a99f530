// Package queue is the retry substrate: a delayed queue with per-delivery
// visibility timeouts. Delivery is at-least-once; consumers must tolerate
// redelivery, which the conditional record write makes safe.
package queue

import (
	"context"
	"time"

	"enrolld/internal/enroll/models"
)

// Delivery is a claimed envelope plus the receipt needed to acknowledge it.
// An unacknowledged delivery becomes visible again once its visibility
// timeout expires.
type Delivery struct {
	Envelope models.Envelope
	Receipt  string
}

// RetryQueue carries envelopes between failure and re-attempt.
type RetryQueue interface {
	// Enqueue schedules the envelope to become visible after delay.
	Enqueue(ctx context.Context, env models.Envelope, delay time.Duration) error

	// Dequeue claims up to max due envelopes. Claimed envelopes are
	// invisible to other consumers until acknowledged or timed out.
	Dequeue(ctx context.Context, max int) ([]Delivery, error)

	// Ack consumes a delivery so it is never redelivered.
	Ack(ctx context.Context, d Delivery) error

	// Depth reports the number of envelopes waiting (not in flight).
	Depth(ctx context.Context) (int64, error)
}
