// Package notifier delivers best-effort operator alerts. Every call site
// treats a returned error as something to log and count, never to propagate
// into record-creation logic.
package notifier

import (
	"context"
	"log/slog"
)

// Notifier publishes a human-readable subject/body pair. Fire-and-forget: no
// delivery guarantee is assumed by the pipeline.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Log writes notifications to the structured log. Serves development and any
// deployment without an alert webhook configured.
type Log struct {
	logger *slog.Logger
}

// NewLog constructs a logger-backed notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs the alert.
func (n *Log) Notify(ctx context.Context, subject, body string) error {
	n.logger.Warn("admin notification", "subject", subject, "body", body)
	return nil
}
