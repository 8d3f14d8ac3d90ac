// Package tabular abstracts the row store the keeper reconciles against:
// an ordered sequence of rows under a header, addressed by 0-based body
// position. Backends are Google Sheets, SQLite, Postgres and an in-memory
// book for dry runs.
package tabular

import (
	"context"
	"errors"
)

var (
	// ErrThrottled is returned by backends when the remote store refuses a
	// request because of rate limiting. Throttled retries on it.
	ErrThrottled = errors.New("tabular: throttled")
	// ErrOutOfRange is returned when a position falls outside the body.
	ErrOutOfRange = errors.New("tabular: position out of range")
)

// Store is one tab. Positions exclude the header row.
type Store interface {
	// ReadAll returns every body row in order.
	ReadAll(ctx context.Context) ([][]string, error)
	// Append adds row at the end and returns its position.
	Append(ctx context.Context, row []string) (int, error)
	// InsertAt inserts row before pos, shifting later rows down.
	InsertAt(ctx context.Context, pos int, row []string) error
	// UpdateRange overwrites len(rows) consecutive rows starting at pos.
	UpdateRange(ctx context.Context, pos int, rows [][]string) error
	// DeleteAt removes the row at pos, shifting later rows up.
	DeleteAt(ctx context.Context, pos int) error
	// ReplaceAll swaps the whole body for rows, keeping the header.
	ReplaceAll(ctx context.Context, rows [][]string) error
}

// Book opens named tabs, creating them with header when missing.
type Book interface {
	Tab(ctx context.Context, name string, header []string) (Store, error)
}

// CheckInsert validates an insert position against a body of n rows.
func CheckInsert(pos, n int) error {
	if pos < 0 || pos > n {
		return ErrOutOfRange
	}
	return nil
}

// CheckSpan validates the span [pos, pos+count) against a body of n rows.
func CheckSpan(pos, count, n int) error {
	if pos < 0 || count < 0 || pos+count > n {
		return ErrOutOfRange
	}
	return nil
}

// CopyRow returns a copy of row that shares no backing array.
func CopyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}
