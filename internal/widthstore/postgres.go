package widthstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the table used by Postgres. It is applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS grid_column_widths (
    table_key  TEXT        NOT NULL,
    column_key TEXT        NOT NULL,
    width      INTEGER     NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (table_key, column_key)
)`

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres stores one row per (key, column).
type Postgres struct {
	db DB
}

// NewPostgres wraps a connection pool.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the widths table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate grid_column_widths: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, key string) (map[string]int, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	rows, err := p.db.Query(ctx,
		`SELECT column_key, width FROM grid_column_widths WHERE table_key = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("load widths %s: %w", key, err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			col   string
			width int
		)
		if err := rows.Scan(&col, &width); err != nil {
			return nil, fmt.Errorf("scan width: %w", err)
		}
		out[col] = width
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load widths %s: %w", key, err)
	}
	return out, nil
}

func (p *Postgres) Save(ctx context.Context, key string, widths map[string]int) error {
	if key == "" {
		return ErrInvalidKey
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM grid_column_widths WHERE table_key = $1`, key); err != nil {
		return fmt.Errorf("clear widths %s: %w", key, err)
	}

	batch := &pgx.Batch{}
	for col, w := range widths {
		batch.Queue(`
			INSERT INTO grid_column_widths (table_key, column_key, width)
			VALUES ($1, $2, $3)
			ON CONFLICT (table_key, column_key)
			DO UPDATE SET width = EXCLUDED.width, updated_at = now()`,
			key, col, w)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save widths %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if _, err := p.db.Exec(ctx, `DELETE FROM grid_column_widths WHERE table_key = $1`, key); err != nil {
		return fmt.Errorf("delete widths %s: %w", key, err)
	}
	return nil
}
