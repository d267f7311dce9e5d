package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const createTable = `CREATE TABLE IF NOT EXISTS audit_scan_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores envelopes in the audit_scan_cache table.
type Postgres struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaOnce.Do(func() {
		_, p.schemaErr = p.db.ExecContext(ctx, createTable)
	})
	return p.schemaErr
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if p == nil || p.db == nil {
		return nil, false, errNilStore
	}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, false, fmt.Errorf("ensure schema: %w", err)
	}
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM audit_scan_cache WHERE cache_key = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if p == nil || p.db == nil {
		return errNilStore
	}
	if err := p.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO audit_scan_cache (cache_key, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		key, string(value))
	return err
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
