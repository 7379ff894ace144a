package escalate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const reportsSchema = `
CREATE TABLE IF NOT EXISTS escalation_reports (
	report_id      UUID PRIMARY KEY,
	session_id     TEXT NOT NULL,
	scam_detected  BOOLEAN NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	total_messages INTEGER NOT NULL,
	intelligence   JSONB NOT NULL,
	agent_notes    TEXT NOT NULL DEFAULT '',
	history        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS escalation_reports_session_idx ON escalation_reports (session_id);
`

// PostgresSink archives reports durably. Pairs well behind a MultiSink with
// a WebhookSink: the webhook alerts, Postgres keeps the record.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to the database and ensures the schema exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, reportsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure reports schema: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Notify inserts the report. Duplicate report IDs are ignored so an
// at-least-once caller stays safe.
func (p *PostgresSink) Notify(ctx context.Context, report *Report) error {
	intelligence, err := json.Marshal(report.ExtractedIntelligence)
	if err != nil {
		return fmt.Errorf("encode intelligence: %w", err)
	}
	history, err := json.Marshal(report.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO escalation_reports
			(report_id, session_id, scam_detected, confidence, total_messages, intelligence, agent_notes, history, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (report_id) DO NOTHING`,
		report.ReportID, report.SessionID, report.ScamDetected, report.Confidence,
		report.TotalMessagesExchanged, intelligence, report.AgentNotes, history, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", report.ReportID, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresSink) Close() {
	p.pool.Close()
}
