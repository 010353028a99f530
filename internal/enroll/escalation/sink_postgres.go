package escalation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"enrolld/internal/enroll/models"
)

// Postgres persists escalated cases in the escalated_cases table. The full
// envelope rides along as JSONB so an operator sees exactly what the worker
// saw; a few columns are denormalized for querying.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed escalation sink.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema creates the escalated_cases table if missing. Called once at startup.
func (s *Postgres) Schema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS escalated_cases (
			record_key       TEXT PRIMARY KEY,
			subject          TEXT NOT NULL,
			attempts         INT NOT NULL,
			first_attempt_at TIMESTAMPTZ NOT NULL,
			last_error       TEXT NOT NULL,
			envelope         JSONB NOT NULL,
			escalated_at     TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create escalated_cases table: %w", err)
	}
	return nil
}

// Park appends the case. Conflict on record_key is ignored: redelivery of an
// already-escalated envelope must not fail the hand-off.
func (s *Postgres) Park(ctx context.Context, c models.EscalatedCase) error {
	envelope, err := json.Marshal(c.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	const query = `
		INSERT INTO escalated_cases
			(record_key, subject, attempts, first_attempt_at, last_error, envelope, escalated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (record_key) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		c.Envelope.Record.Key, c.Envelope.Record.Subject, c.Envelope.Attempts,
		c.Envelope.FirstAttemptAt, c.Envelope.LastError, envelope, c.EscalatedAt,
	)
	if err != nil {
		return fmt.Errorf("park escalated case: %w", err)
	}
	return nil
}

// List returns all parked cases, oldest first.
func (s *Postgres) List(ctx context.Context) ([]models.EscalatedCase, error) {
	const query = `
		SELECT envelope, escalated_at
		FROM escalated_cases
		ORDER BY escalated_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list escalated cases: %w", err)
	}
	defer rows.Close()

	var cases []models.EscalatedCase
	for rows.Next() {
		var (
			raw []byte
			c   models.EscalatedCase
		)
		if err := rows.Scan(&raw, &c.EscalatedAt); err != nil {
			return nil, fmt.Errorf("scan escalated case: %w", err)
		}
		if err := json.Unmarshal(raw, &c.Envelope); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalated cases: %w", err)
	}
	return cases, nil
}
