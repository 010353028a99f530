// Package escalation is the durable holding area for envelopes that
// exhausted their retry budget. Cases are append-only; resolution happens
// out of band by an operator.
package escalation

import (
	"context"

	"enrolld/internal/enroll/models"
)

// Sink parks terminal envelopes for manual handling.
type Sink interface {
	Park(ctx context.Context, c models.EscalatedCase) error
	List(ctx context.Context) ([]models.EscalatedCase, error)
}
