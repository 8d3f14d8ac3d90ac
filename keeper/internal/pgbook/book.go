// Package pgbook stores tabs in Postgres, for deployments where several
// hosts read the same profile table.
package pgbook

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// Schema is applied by Open. Positions are dense per tab.
const Schema = `
CREATE TABLE IF NOT EXISTS profkeeper_tabs (
    name       text PRIMARY KEY,
    header     text[] NOT NULL DEFAULT '{}',
    created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS profkeeper_rows (
    tab   text    NOT NULL,
    pos   integer NOT NULL,
    cells text[]  NOT NULL DEFAULT '{}',
    PRIMARY KEY (tab, pos)
);
`

// Book is a set of tabs in one Postgres database.
type Book struct {
	Pool *pgxpool.Pool
}

// Open connects to dsn and applies Schema.
func Open(ctx context.Context, dsn string) (*Book, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgbook: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgbook: apply schema: %w", err)
	}
	return &Book{Pool: pool}, nil
}

// Close releases the pool.
func (b *Book) Close() { b.Pool.Close() }

func (b *Book) Tab(ctx context.Context, name string, header []string) (tabular.Store, error) {
	if header == nil {
		header = []string{}
	}
	_, err := b.Pool.Exec(ctx,
		`INSERT INTO profkeeper_tabs (name, header) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, header)
	if err != nil {
		return nil, fmt.Errorf("pgbook: register tab %s: %w", name, err)
	}
	return &Tab{pool: b.Pool, name: name}, nil
}

// Tab is one tab of a Book.
type Tab struct {
	pool *pgxpool.Pool
	name string
}

func (t *Tab) ReadAll(ctx context.Context) ([][]string, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT cells FROM profkeeper_rows WHERE tab = $1 ORDER BY pos`, t.name)
	if err != nil {
		return nil, fmt.Errorf("pgbook: read: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[[]string])
	if err != nil {
		return nil, fmt.Errorf("pgbook: read: %w", err)
	}
	return out, nil
}

func (t *Tab) Append(ctx context.Context, row []string) (int, error) {
	var pos int
	err := pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		n, err := t.lockCount(ctx, tx)
		if err != nil {
			return err
		}
		pos = n
		return t.put(ctx, tx, pos, row)
	})
	if err != nil {
		return 0, fmt.Errorf("pgbook: append: %w", err)
	}
	return pos, nil
}

func (t *Tab) InsertAt(ctx context.Context, pos int, row []string) error {
	err := pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		n, err := t.lockCount(ctx, tx)
		if err != nil {
			return err
		}
		if err := tabular.CheckInsert(pos, n); err != nil {
			return err
		}
		if err := t.shift(ctx, tx, pos, 1); err != nil {
			return err
		}
		return t.put(ctx, tx, pos, row)
	})
	if err != nil {
		return fmt.Errorf("pgbook: insert: %w", err)
	}
	return nil
}

func (t *Tab) UpdateRange(ctx context.Context, pos int, rows [][]string) error {
	err := pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		n, err := t.lockCount(ctx, tx)
		if err != nil {
			return err
		}
		if err := tabular.CheckSpan(pos, len(rows), n); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, r := range rows {
			batch.Queue(`UPDATE profkeeper_rows SET cells = $1 WHERE tab = $2 AND pos = $3`,
				cellsOf(r), t.name, pos+i)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("pgbook: update: %w", err)
	}
	return nil
}

func (t *Tab) DeleteAt(ctx context.Context, pos int) error {
	err := pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		n, err := t.lockCount(ctx, tx)
		if err != nil {
			return err
		}
		if err := tabular.CheckSpan(pos, 1, n); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM profkeeper_rows WHERE tab = $1 AND pos = $2`, t.name, pos); err != nil {
			return err
		}
		return t.shift(ctx, tx, pos+1, -1)
	})
	if err != nil {
		return fmt.Errorf("pgbook: delete: %w", err)
	}
	return nil
}

func (t *Tab) ReplaceAll(ctx context.Context, rows [][]string) error {
	err := pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		if _, err := t.lockCount(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM profkeeper_rows WHERE tab = $1`, t.name); err != nil {
			return err
		}
		data := make([][]any, len(rows))
		for i, r := range rows {
			data[i] = []any{t.name, i, cellsOf(r)}
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"profkeeper_rows"},
			[]string{"tab", "pos", "cells"}, pgx.CopyFromRows(data))
		return err
	})
	if err != nil {
		return fmt.Errorf("pgbook: replace: %w", err)
	}
	return nil
}

// lockCount serialises writers on the tab row and returns the body size.
func (t *Tab) lockCount(ctx context.Context, tx pgx.Tx) (int, error) {
	if _, err := tx.Exec(ctx,
		`SELECT 1 FROM profkeeper_tabs WHERE name = $1 FOR UPDATE`, t.name); err != nil {
		return 0, err
	}
	var n int
	err := tx.QueryRow(ctx,
		`SELECT count(*) FROM profkeeper_rows WHERE tab = $1`, t.name).Scan(&n)
	return n, err
}

func (t *Tab) put(ctx context.Context, tx pgx.Tx, pos int, row []string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO profkeeper_rows (tab, pos, cells) VALUES ($1, $2, $3)`,
		t.name, pos, cellsOf(row))
	return err
}

// shift moves rows at or after from by delta through negative positions.
func (t *Tab) shift(ctx context.Context, tx pgx.Tx, from, delta int) error {
	if _, err := tx.Exec(ctx,
		`UPDATE profkeeper_rows SET pos = -(pos + $1) - 1 WHERE tab = $2 AND pos >= $3`,
		delta, t.name, from); err != nil {
		return err
	}
	_, err := tx.Exec(ctx,
		`UPDATE profkeeper_rows SET pos = -(pos + 1) WHERE tab = $1 AND pos < 0`, t.name)
	return err
}

func cellsOf(row []string) []string {
	if row == nil {
		return []string{}
	}
	return row
}
