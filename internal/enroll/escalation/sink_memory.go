package escalation

import (
	"context"
	"sync"

	"enrolld/internal/enroll/models"
)

// InMemory collects escalated cases for tests and local development.
type InMemory struct {
	mu    sync.RWMutex
	cases []models.EscalatedCase
}

// NewInMemory constructs an empty in-memory sink.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Park appends the case.
func (s *InMemory) Park(ctx context.Context, c models.EscalatedCase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, c)
	return nil
}

// List returns all parked cases in arrival order.
func (s *InMemory) List(ctx context.Context) ([]models.EscalatedCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EscalatedCase, len(s.cases))
	copy(out, s.cases)
	return out, nil
}
