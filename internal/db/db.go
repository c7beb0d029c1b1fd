package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Init connects to Postgres and makes sure the schema exists.
func Init(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	slog.Info("connected to postgres")

	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the tables if they are missing. Safe to run on every
// start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"orders", ensureOrdersTable},
		{"order_statuses", ensureOrderStatusesTable},
		{"opportunity_search_records", ensureSearchRecordsTable},
		{"opportunity_collections", ensureCollectionsTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}

// ensureOrdersTable keeps the order document and a copy of its newest status.
// seq gives the stable listing order.
func ensureOrdersTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS orders (
            seq        BIGSERIAL UNIQUE,
            id         TEXT PRIMARY KEY,
            product_id TEXT NOT NULL,
            document   JSONB NOT NULL,
            status     JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	return err
}

// ensureOrderStatusesTable is the append-only history. Rows are never
// updated or deleted.
func ensureOrderStatusesTable(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS order_statuses (
            id          BIGSERIAL PRIMARY KEY,
            order_id    TEXT NOT NULL REFERENCES orders(id),
            status_code TEXT NOT NULL,
            document    JSONB NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL
        )`); err != nil {
		return err
	}
	_, err := pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS order_statuses_order_id_idx ON order_statuses (order_id, id DESC)`)
	return err
}

func ensureSearchRecordsTable(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS opportunity_search_records (
            seq           BIGSERIAL UNIQUE,
            id            TEXT PRIMARY KEY,
            product_id    TEXT NOT NULL,
            collection_id TEXT,
            document      JSONB NOT NULL,
            updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return err
	}
	// Older deployments created the table before collections were linked.
	_, err := pool.Exec(ctx, `ALTER TABLE opportunity_search_records ADD COLUMN IF NOT EXISTS collection_id TEXT`)
	return err
}

func ensureCollectionsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS opportunity_collections (
            id               TEXT PRIMARY KEY,
            product_id       TEXT NOT NULL,
            search_record_id TEXT,
            request          JSONB,
            document         JSONB NOT NULL,
            created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	return err
}
