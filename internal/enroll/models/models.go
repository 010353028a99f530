package models

import (
	"fmt"
	"strings"
	"time"

	"enrolld/pkg/platform/sentinel"
)

// ConfirmationEvent is the trigger emitted by the identity provider when a
// signup is confirmed. Delivery is at-least-once; the pipeline must tolerate
// redelivery of the same event.
type ConfirmationEvent struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Validate enforces required fields at the boundary. An event without an
// email or subject can never produce a record, so it is rejected before the
// pipeline rather than retried forever.
func (e ConfirmationEvent) Validate() error {
	if strings.TrimSpace(e.Email) == "" {
		return fmt.Errorf("%w: email is required", sentinel.ErrInvalidInput)
	}
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("%w: subject is required", sentinel.ErrInvalidInput)
	}
	return nil
}

// Settings are the default application settings stamped onto every new record.
type Settings struct {
	Locale            string `json:"locale"`
	MarketingOptIn    bool   `json:"marketing_opt_in"`
	WeeklyDigest      bool   `json:"weekly_digest"`
	NotifyByEmail     bool   `json:"notify_by_email"`
	ProfileSearchable bool   `json:"profile_searchable"`
}

// DefaultSettings returns the settings every record starts with.
func DefaultSettings() Settings {
	return Settings{
		Locale:            "en",
		MarketingOptIn:    false,
		WeeklyDigest:      true,
		NotifyByEmail:     true,
		ProfileSearchable: true,
	}
}

// Record is the durable profile entity created exactly once per identity.
// Timestamps are captured once at build time and carried verbatim across
// retries so CreatedAt reflects the true origin time, not the time of the
// attempt that happened to succeed.
type Record struct {
	Key        string    `json:"key"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
	Phone      string    `json:"phone,omitempty"`
	Settings   Settings  `json:"settings"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Envelope is the unit of work carried by the retry queue. The Record is
// built once and carried verbatim; only Attempts and LastError change between
// attempts. Entry handler and retry worker are its only writers.
type Envelope struct {
	Record         Record    `json:"record"`
	Attempts       int       `json:"attempts"`
	FirstAttemptAt time.Time `json:"first_attempt_at"`
	LastError      string    `json:"last_error,omitempty"`

	// RequiresManualIntervention is set exactly once, when the envelope
	// exhausts its attempt budget and is routed to escalation.
	RequiresManualIntervention bool `json:"requires_manual_intervention,omitempty"`
}

// Validate guards the queue boundary: a dequeued envelope that cannot
// identify its record is undeliverable and must not be retried.
func (e Envelope) Validate() error {
	if e.Record.Key == "" {
		return fmt.Errorf("%w: envelope record key is required", sentinel.ErrInvalidInput)
	}
	if e.Record.Subject == "" {
		return fmt.Errorf("%w: envelope record subject is required", sentinel.ErrInvalidInput)
	}
	if e.Attempts < 1 {
		return fmt.Errorf("%w: envelope attempts must be >= 1", sentinel.ErrInvalidInput)
	}
	return nil
}

// EscalatedCase is a terminal envelope parked for manual handling. Read-only
// once created; resolution happens out of band.
type EscalatedCase struct {
	Envelope    Envelope  `json:"envelope"`
	EscalatedAt time.Time `json:"escalated_at"`
}
