package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"enrolld/internal/enroll/models"
	"enrolld/pkg/platform/sentinel"
)

// uniqueViolation is the Postgres error code raised when an insert loses to
// an existing row. Everything else coming back from the driver is transient
// from this pipeline's point of view.
const uniqueViolation = "23505"

// Postgres persists records in the profile_records table. The insert carries
// ON CONFLICT DO NOTHING on the primary key; subject uniqueness is enforced
// by its own index so event-source redelivery with a fresh key still resolves
// to AlreadyExists instead of a second record.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed record store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema creates the profile_records table if missing. Called once at startup.
func (s *Postgres) Schema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS profile_records (
			record_key  TEXT PRIMARY KEY,
			subject     TEXT NOT NULL UNIQUE,
			email       TEXT NOT NULL,
			name        TEXT NOT NULL,
			given_name  TEXT NOT NULL,
			family_name TEXT NOT NULL,
			phone       TEXT,
			settings    JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create profile_records table: %w", err)
	}
	return nil
}

// PutIfAbsent inserts the record unless the key or subject is taken.
func (s *Postgres) PutIfAbsent(ctx context.Context, rec models.Record) (Outcome, error) {
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return Inserted, fmt.Errorf("marshal settings: %w", err)
	}

	const query = `
		INSERT INTO profile_records
			(record_key, subject, email, name, given_name, family_name, phone, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
		ON CONFLICT (record_key) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.Key, rec.Subject, rec.Email, rec.Name, rec.GivenName, rec.FamilyName,
		rec.Phone, settings, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// Subject index conflict: same identity, different key.
			return AlreadyExists, nil
		}
		return Inserted, fmt.Errorf("insert profile record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return Inserted, fmt.Errorf("insert profile record rows: %w", err)
	}
	if rows == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// FindBySubject returns the record for an identity-provider subject.
func (s *Postgres) FindBySubject(ctx context.Context, subject string) (models.Record, error) {
	const query = `
		SELECT record_key, subject, email, name, given_name, family_name,
		       COALESCE(phone, ''), settings, created_at, updated_at
		FROM profile_records
		WHERE subject = $1
	`
	var (
		rec      models.Record
		settings []byte
	)
	err := s.db.QueryRowContext(ctx, query, subject).Scan(
		&rec.Key, &rec.Subject, &rec.Email, &rec.Name, &rec.GivenName,
		&rec.FamilyName, &rec.Phone, &settings, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Record{}, fmt.Errorf("record for subject %q: %w", subject, sentinel.ErrNotFound)
		}
		return models.Record{}, fmt.Errorf("find profile record: %w", err)
	}
	if err := json.Unmarshal(settings, &rec.Settings); err != nil {
		return models.Record{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return rec, nil
}
