// Package store holds the conditional record writer. The conditional insert
// is the idempotency anchor of the whole pipeline: a duplicate attempt against
// an already-written record is an outcome, not an error.
package store

import (
	"context"

	"enrolld/internal/enroll/models"
)

// Outcome classifies a conditional write.
type Outcome int

const (
	// Inserted means the record did not exist and was written.
	Inserted Outcome = iota
	// AlreadyExists means an entry already occupied the key or subject.
	// Treated identically to Inserted by every caller.
	AlreadyExists
)

// String returns the outcome name for logs and error messages.
func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// RecordStore is the persistent keyspace. PutIfAbsent inserts only when no
// record occupies the key or the subject; any returned error is transient and
// eligible for retry.
type RecordStore interface {
	PutIfAbsent(ctx context.Context, rec models.Record) (Outcome, error)
	FindBySubject(ctx context.Context, subject string) (models.Record, error)
}
