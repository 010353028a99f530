package store

import (
	"context"
	"fmt"
	"sync"

	"enrolld/internal/enroll/models"
	"enrolld/pkg/platform/sentinel"
)

// InMemory is a map-backed RecordStore for tests and local development. It
// mirrors the postgres semantics: insert-if-absent on key and subject.
type InMemory struct {
	mu        sync.RWMutex
	byKey     map[string]models.Record
	bySubject map[string]models.Record
}

// NewInMemory constructs an empty in-memory record store.
func NewInMemory() *InMemory {
	return &InMemory{
		byKey:     make(map[string]models.Record),
		bySubject: make(map[string]models.Record),
	}
}

// PutIfAbsent inserts the record unless the key or subject is taken.
func (s *InMemory) PutIfAbsent(ctx context.Context, rec models.Record) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Inserted, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[rec.Key]; ok {
		return AlreadyExists, nil
	}
	if _, ok := s.bySubject[rec.Subject]; ok {
		return AlreadyExists, nil
	}

	s.byKey[rec.Key] = rec
	s.bySubject[rec.Subject] = rec
	return Inserted, nil
}

// FindBySubject returns the record for an identity-provider subject.
func (s *InMemory) FindBySubject(ctx context.Context, subject string) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.bySubject[subject]
	if !ok {
		return models.Record{}, fmt.Errorf("record for subject %q: %w", subject, sentinel.ErrNotFound)
	}
	return rec, nil
}

// Len reports the number of stored records. Test helper.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}
