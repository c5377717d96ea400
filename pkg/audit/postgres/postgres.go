// Package postgres provides a PostgreSQL audit.Recorder built on pgx/v5.
// Execution results are stored as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/audit"
)

// Recorder is a PostgreSQL-backed audit.Recorder.
type Recorder struct {
	pool *pgxpool.Pool
}

var _ audit.Recorder = (*Recorder)(nil)

// New connects to PostgreSQL and, if cfg.MigrateOnStart is set, applies
// schema migrations.
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	r := &Recorder{pool: pool}
	if cfg.MigrateOnStart {
		if err := r.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return r, nil
}

// Record inserts rec. The tenant stored is rec.Tenant, falling back to the
// tenant in ctx.
func (r *Recorder) Record(ctx context.Context, rec audit.Record) error {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	tenant := rec.Tenant
	if tenant == "" {
		tenant = audit.GetTenant(ctx)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO executions (
			id, request_id, call_id, tenant_id, code,
			result, outcome, error_kind, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.ID, nullString(rec.RequestID), rec.CallID, tenant, rec.Code,
		resultJSON, string(rec.Outcome), nullString(rec.ErrorKind),
		rec.Duration.Milliseconds(), createdAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return audit.ErrConflict
		}
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first, scoped to the tenant in ctx.
func (r *Recorder) List(ctx context.Context, limit int) ([]audit.Record, error) {
	limit = audit.ClampLimit(limit)

	query := `
		SELECT id, request_id, call_id, tenant_id, code,
		       result, outcome, error_kind, duration_ms, created_at
		FROM executions
	`
	args := []any{}
	if tenant := audit.GetTenant(ctx); tenant != "" {
		query += " WHERE tenant_id = $1"
		args = append(args, tenant)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec        audit.Record
			requestID  *string
			errorKind  *string
			outcome    string
			resultJSON []byte
			durationMS int64
		)
		if err := rows.Scan(
			&rec.ID, &requestID, &rec.CallID, &rec.Tenant, &rec.Code,
			&resultJSON, &outcome, &errorKind, &durationMS, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		var result api.ExecutionResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("unmarshaling result of %s: %w", rec.ID, err)
		}
		rec.Result = result
		rec.Outcome = audit.Outcome(outcome)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if requestID != nil {
			rec.RequestID = *requestID
		}
		if errorKind != nil {
			rec.ErrorKind = *errorKind
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return out, nil
}

// HealthCheck pings the database.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *Recorder) Close() error {
	r.pool.Close()
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey reports a unique violation (SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
