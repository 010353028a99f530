// Package record builds the canonical profile record from a confirmation
// event. Building is pure given the injected clock and ID source: one call,
// one record, timestamps captured exactly once.
package record

import (
	"time"

	"github.com/google/uuid"

	"enrolld/internal/enroll/models"
	"enrolld/pkg/email"
)

// KeyPrefix namespaces record keys in the store.
const KeyPrefix = "usr_"

// Clock supplies the current time; injected for testability.
type Clock func() time.Time

// IDSource supplies the random identifier behind a record key.
type IDSource func() uuid.UUID

// Builder constructs Records from confirmation events.
type Builder struct {
	clock Clock
	newID IDSource
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithIDSource sets the identifier source for testability.
func WithIDSource(src IDSource) Option {
	return func(b *Builder) {
		if src != nil {
			b.newID = src
		}
	}
}

// NewBuilder constructs a Builder with real time and random UUIDs.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		clock: time.Now,
		newID: uuid.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build derives a Record from a validated confirmation event. The key is a
// prefixed random identifier, never derived from user input, so concurrent
// duplicate invocations cannot collide. Missing optional attributes fall back
// to deterministic defaults.
func (b *Builder) Build(event models.ConfirmationEvent) models.Record {
	now := b.clock().UTC()

	name := event.Name
	if name == "" {
		name = event.Email
	}
	given, family := email.DeriveNameFromEmail(event.Email)

	return models.Record{
		Key:        KeyPrefix + b.newID().String(),
		Subject:    event.Subject,
		Email:      event.Email,
		Name:       name,
		GivenName:  given,
		FamilyName: family,
		Phone:      event.Phone,
		Settings:   models.DefaultSettings(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
