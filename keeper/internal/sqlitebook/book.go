// Package sqlitebook stores tabs in a local SQLite file. It is the
// default backend for single-host deployments and the one tests use.
package sqlitebook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/profkeeper/dbopen"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"

	_ "modernc.org/sqlite"
)

// Book is a set of tabs in one SQLite database.
type Book struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Book, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, fmt.Errorf("sqlitebook: open: %w", err)
	}
	return &Book{DB: db}, nil
}

// New wraps an already open database. The caller must have applied Schema.
func New(db *sql.DB) *Book { return &Book{DB: db} }

// Close closes the database.
func (b *Book) Close() error { return b.DB.Close() }

// Tab returns the named tab, registering it with header on first use.
func (b *Book) Tab(ctx context.Context, name string, header []string) (tabular.Store, error) {
	h, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("sqlitebook: encode header: %w", err)
	}
	_, err = b.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO tabs (name, header, created_at) VALUES (?, ?, ?)`,
		name, string(h), time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlitebook: register tab %s: %w", name, err)
	}
	return &Tab{db: b.DB, name: name}, nil
}

// Tab is one tab of a Book.
type Tab struct {
	db   *sql.DB
	name string
}

// Header returns the header registered for the tab.
func (t *Tab) Header(ctx context.Context) ([]string, error) {
	var raw string
	err := t.db.QueryRowContext(ctx, `SELECT header FROM tabs WHERE name = ?`, t.name).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("sqlitebook: header: %w", err)
	}
	var h []string
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("sqlitebook: decode header: %w", err)
	}
	return h, nil
}

func (t *Tab) ReadAll(ctx context.Context) ([][]string, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT cells FROM tab_rows WHERE tab = ? ORDER BY pos`, t.name)
	if err != nil {
		return nil, fmt.Errorf("sqlitebook: read: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlitebook: scan: %w", err)
		}
		cells, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, cells)
	}
	return out, rows.Err()
}

func (t *Tab) Append(ctx context.Context, row []string) (int, error) {
	var pos int
	err := dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		n, err := t.count(ctx, tx)
		if err != nil {
			return err
		}
		pos = n
		return t.put(ctx, tx, pos, row)
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitebook: append: %w", err)
	}
	return pos, nil
}

func (t *Tab) InsertAt(ctx context.Context, pos int, row []string) error {
	err := dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		n, err := t.count(ctx, tx)
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
		return fmt.Errorf("sqlitebook: insert: %w", err)
	}
	return nil
}

func (t *Tab) UpdateRange(ctx context.Context, pos int, rows [][]string) error {
	err := dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		n, err := t.count(ctx, tx)
		if err != nil {
			return err
		}
		if err := tabular.CheckSpan(pos, len(rows), n); err != nil {
			return err
		}
		for i, r := range rows {
			cells, err := json.Marshal(r)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE tab_rows SET cells = ? WHERE tab = ? AND pos = ?`,
				string(cells), t.name, pos+i)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlitebook: update: %w", err)
	}
	return nil
}

func (t *Tab) DeleteAt(ctx context.Context, pos int) error {
	err := dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		n, err := t.count(ctx, tx)
		if err != nil {
			return err
		}
		if err := tabular.CheckSpan(pos, 1, n); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tab_rows WHERE tab = ? AND pos = ?`, t.name, pos); err != nil {
			return err
		}
		return t.shift(ctx, tx, pos+1, -1)
	})
	if err != nil {
		return fmt.Errorf("sqlitebook: delete: %w", err)
	}
	return nil
}

func (t *Tab) ReplaceAll(ctx context.Context, rows [][]string) error {
	err := dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tab_rows WHERE tab = ?`, t.name); err != nil {
			return err
		}
		for i, r := range rows {
			if err := t.put(ctx, tx, i, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlitebook: replace: %w", err)
	}
	return nil
}

func (t *Tab) count(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tab_rows WHERE tab = ?`, t.name).Scan(&n)
	return n, err
}

func (t *Tab) put(ctx context.Context, tx *sql.Tx, pos int, row []string) error {
	cells, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tab_rows (tab, pos, cells) VALUES (?, ?, ?)`,
		t.name, pos, string(cells))
	return err
}

// shift moves every row at or after from by delta. Rows pass through
// negative positions first so no intermediate state violates the key.
func (t *Tab) shift(ctx context.Context, tx *sql.Tx, from, delta int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE tab_rows SET pos = -(pos + ?) - 1 WHERE tab = ? AND pos >= ?`,
		delta, t.name, from); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE tab_rows SET pos = -(pos + 1) WHERE tab = ? AND pos < 0`, t.name)
	return err
}

func decode(raw string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("sqlitebook: decode row: %w", err)
	}
	return cells, nil
}
