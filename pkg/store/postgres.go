package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the durable Store, backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and applies pending migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := migrate(ctx, databaseURL); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func migrate(ctx context.Context, databaseURL string) error {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("store: parse database url: %w", err)
	}
	db := stdlib.OpenDB(*cfg)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) CreateCall(ctx context.Context, call *Call) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}
	if call.TenantID == "" {
		call.TenantID = "default"
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO calls (id, call_sid, tenant_id, caller_phone, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		call.ID, call.CallSID, call.TenantID, call.CallerPhone, call.StartedAt)
	if err != nil {
		return fmt.Errorf("store: create call: %w", err)
	}
	return nil
}

func (p *Postgres) EndCall(ctx context.Context, callID, outcome, summary string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE calls
		 SET ended_at = now(),
		     duration_s = EXTRACT(EPOCH FROM now() - started_at),
		     outcome = $2,
		     summary = $3
		 WHERE id = $1`,
		callID, outcome, summary)
	if err != nil {
		return fmt.Errorf("store: end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendTurn(ctx context.Context, turn *Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	var args []byte
	if turn.ActionArgs != nil {
		b, err := json.Marshal(turn.ActionArgs)
		if err != nil {
			return fmt.Errorf("store: marshal action args: %w", err)
		}
		args = b
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO turns (call_id, turn_no, role, text, action, action_args, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		turn.CallID, turn.TurnNo, turn.Role, turn.Text, turn.Action, args, turn.LatencyMS, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append turn: %w", err)
	}
	return nil
}

func (p *Postgres) RecentTurns(ctx context.Context, callID string, limit int) ([]Turn, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT call_id, turn_no, role, text, COALESCE(action, ''), action_args, COALESCE(latency_ms, 0), created_at
		 FROM (
		     SELECT * FROM turns WHERE call_id = $1 ORDER BY turn_no DESC LIMIT $2
		 ) recent
		 ORDER BY turn_no ASC`,
		callID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (p *Postgres) TurnsByCall(ctx context.Context, callID string) ([]Turn, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT call_id, turn_no, role, text, COALESCE(action, ''), action_args, COALESCE(latency_ms, 0), created_at
		 FROM turns WHERE call_id = $1 ORDER BY turn_no ASC`,
		callID)
	if err != nil {
		return nil, fmt.Errorf("store: turns by call: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	var out []Turn
	for rows.Next() {
		var t Turn
		var args []byte
		if err := rows.Scan(&t.CallID, &t.TurnNo, &t.Role, &t.Text, &t.Action, &args, &t.LatencyMS, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &t.ActionArgs); err != nil {
				return nil, fmt.Errorf("store: unmarshal action args: %w", err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate turns: %w", err)
	}
	return out, nil
}

func (p *Postgres) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}
	var data []byte
	if entry.Data != nil {
		b, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("store: marshal event data: %w", err)
		}
		data = b
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO audit_logs (call_id, event_type, event_data, severity, created_at)
		 VALUES (NULLIF($1, ''), $2, $3, $4, $5)`,
		entry.CallID, entry.EventType, data, entry.Severity, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

func (p *Postgres) AuditByCall(ctx context.Context, callID string) ([]AuditEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT COALESCE(call_id, ''), event_type, event_data, severity, created_at
		 FROM audit_logs WHERE call_id = $1 ORDER BY id ASC`,
		callID)
	if err != nil {
		return nil, fmt.Errorf("store: audit by call: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var data []byte
		if err := rows.Scan(&e.CallID, &e.EventType, &data, &e.Severity, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("store: unmarshal event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit: %w", err)
	}
	return out, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
