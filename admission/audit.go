package admission

import (
	"context"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/ratelimit"
)

// DecisionAudit is one persisted admission decision: who was checked,
// under which algorithm/backend, and what came out. Unlike the limiter
// state itself, which is not persisted across restarts, this is an
// append-only record of decisions, not of bucket/window state — losing it
// changes nothing about future admission behavior.
type DecisionAudit struct {
	ID           int64     `json:"id"`
	Key          string    `json:"key"`
	Algorithm    string    `json:"algorithm"`
	Backend      string    `json:"backend"`
	Allowed      bool      `json:"allowed"`
	Mode         string    `json:"mode,omitempty"`
	RetryAfterMs int64     `json:"retry_after_ms"`
	At           time.Time `json:"at"`
}

// AuditLogger persists decision records to an append-only Postgres table,
// indexed by time, populated from Encore's managed sqldb.
type AuditLogger struct {
	db *sqldb.Database
}

// NewAuditLogger opens the audit log, creating its table on first use.
func NewAuditLogger(db *sqldb.Database) (*AuditLogger, error) {
	al := &AuditLogger{db: db}
	if err := al.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize decision audit schema: %w", err)
	}
	return al, nil
}

func (al *AuditLogger) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS decision_audit (
			id BIGSERIAL PRIMARY KEY,
			key TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			backend TEXT NOT NULL,
			allowed BOOLEAN NOT NULL,
			mode TEXT,
			retry_after_ms BIGINT NOT NULL DEFAULT 0,
			at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_decision_audit_at ON decision_audit(at DESC);
		CREATE INDEX IF NOT EXISTS idx_decision_audit_key ON decision_audit(key);
	`
	_, err := al.db.Exec(ctx, query)
	return err
}

// RecordDenial persists one decision row. Its caller, recordIfNotable,
// passes only shared-backend decisions: every denial and every failure-mode
// fallback (allowed or not). In-process decisions are not recorded.
func (al *AuditLogger) RecordDenial(ctx context.Context, key string, res ratelimit.Result) error {
	mode, _ := res.Metadata["mode"].(string)
	algorithm, _ := res.Metadata["algorithm"].(ratelimit.Algorithm)
	backend, _ := res.Metadata["backend"].(ratelimit.Backend)

	query := `
		INSERT INTO decision_audit (key, algorithm, backend, allowed, mode, retry_after_ms, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := al.db.Exec(ctx, query, key, string(algorithm), string(backend), res.Allowed, mode, res.RetryAfterMs, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert decision audit: %w", err)
	}
	return nil
}

// Recent returns the most recent audit rows, newest first.
func (al *AuditLogger) Recent(ctx context.Context, limit int) ([]DecisionAudit, error) {
	query := `
		SELECT id, key, algorithm, backend, allowed, COALESCE(mode, ''), retry_after_ms, at
		FROM decision_audit
		ORDER BY at DESC
		LIMIT $1
	`
	rows, err := al.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision audit: %w", err)
	}
	defer rows.Close()

	out := make([]DecisionAudit, 0, limit)
	for rows.Next() {
		var a DecisionAudit
		if err := rows.Scan(&a.ID, &a.Key, &a.Algorithm, &a.Backend, &a.Allowed, &a.Mode, &a.RetryAfterMs, &a.At); err != nil {
			return nil, fmt.Errorf("failed to scan decision audit row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision audit rows: %w", err)
	}
	return out, nil
}
