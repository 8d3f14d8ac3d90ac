// Package upsert decides, per canonical record, whether the store needs a
// new row, an in-place overwrite, or nothing beyond a refresh, and keeps
// the record index in step with what the store confirmed.
package upsert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/profkeeper/keeper/internal/index"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// Status classifies one upsert.
type Status string

const (
	StatusNew       Status = "new"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
)

// Mode selects how rows are positioned as they are written.
type Mode int

const (
	// ModeBulk writes in place and leaves ordering to the end-of-run reorder.
	ModeBulk Mode = iota
	// ModeRelocate moves every written row to the top immediately.
	ModeRelocate
)

// ParseMode maps "bulk" / "relocate" to a Mode; anything else is bulk.
func ParseMode(s string) Mode {
	if s == "relocate" {
		return ModeRelocate
	}
	return ModeBulk
}

// Result describes a completed upsert.
type Result struct {
	Status  Status
	Key     string
	Pos     int
	Changed []string
}

// Engine owns the index for the duration of a run. It is not safe for
// concurrent use.
type Engine struct {
	store  tabular.Store
	schema *record.Schema
	idx    *index.Index
	mode   Mode
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMode sets the positioning mode.
func WithMode(m Mode) Option { return func(e *Engine) { e.mode = m } }

// New creates an Engine writing to store through idx.
func New(store tabular.Store, schema *record.Schema, idx *index.Index, opts ...Option) *Engine {
	e := &Engine{store: store, schema: schema, idx: idx}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Index returns the index the engine maintains.
func (e *Engine) Index() *index.Index { return e.idx }

// Reset swaps in a freshly built index, after a reorder for instance.
func (e *Engine) Reset(idx *index.Index) { e.idx = idx }

// Mode reports the positioning mode.
func (e *Engine) Mode() Mode { return e.mode }

// Upsert writes rec. The index changes only after the store confirmed
// the mutation, so a failed write leaves it untouched.
func (e *Engine) Upsert(ctx context.Context, rec record.Record) (Result, error) {
	row := e.schema.Row(rec)
	snap := e.schema.FromRow(row)
	key := e.schema.KeyOf(snap)

	if key == "" {
		e.logger.Warn("upsert: identity missing, inserting without dedup",
			"name", snap[e.schema.Name])
		pos, err := e.insert(ctx, row)
		if err != nil {
			return Result{}, fmt.Errorf("upsert: insert keyless: %w", err)
		}
		return Result{Status: StatusNew, Pos: pos}, nil
	}

	entry, found := e.idx.Lookup(key)
	if !found {
		pos, err := e.insert(ctx, row)
		if err != nil {
			return Result{}, fmt.Errorf("upsert: insert %s: %w", key, err)
		}
		e.idx.Put(key, pos, snap)
		return Result{Status: StatusNew, Key: key, Pos: pos}, nil
	}

	changed := e.schema.Diff(entry.Snapshot, snap)
	status := StatusUnchanged
	if len(changed) > 0 {
		status = StatusUpdated
	}

	pos, err := e.overwrite(ctx, key, entry.Pos, row)
	if err != nil {
		return Result{}, fmt.Errorf("upsert: overwrite %s: %w", key, err)
	}
	e.idx.Put(key, pos, snap)
	return Result{Status: status, Key: key, Pos: pos, Changed: changed}, nil
}

func (e *Engine) insert(ctx context.Context, row []string) (int, error) {
	if e.mode == ModeRelocate {
		if err := e.store.InsertAt(ctx, 0, row); err != nil {
			return 0, err
		}
		e.idx.ShiftInsert(0)
		return 0, nil
	}
	pos, err := e.store.Append(ctx, row)
	if err != nil {
		return 0, err
	}
	e.idx.Appended(pos)
	return pos, nil
}

// overwrite rewrites the row at pos. In relocate mode a row not already on
// top is inserted at 0 and its old copy deleted. When that delete fails the
// fresh copy is taken back out so the store never holds the identity twice.
func (e *Engine) overwrite(ctx context.Context, key string, pos int, row []string) (int, error) {
	if e.mode == ModeBulk || pos == 0 {
		if err := e.store.UpdateRange(ctx, pos, [][]string{row}); err != nil {
			return 0, err
		}
		return pos, nil
	}

	if err := e.store.InsertAt(ctx, 0, row); err != nil {
		return 0, err
	}
	e.idx.ShiftInsert(0)
	old := pos + 1
	if err := e.store.DeleteAt(ctx, old); err != nil {
		if uerr := e.store.DeleteAt(ctx, 0); uerr != nil {
			e.logger.Error("upsert: relocate left a duplicate on top",
				"key", key, "pos", old, "error", err, "undo_error", uerr)
			return 0, errors.Join(err, uerr)
		}
		e.idx.ShiftDelete(0)
		return 0, err
	}
	e.idx.ShiftDelete(old)
	return 0, nil
}

// Forget deletes the row stored for key.
func (e *Engine) Forget(ctx context.Context, key string) (bool, error) {
	entry, ok := e.idx.Lookup(key)
	if !ok {
		return false, nil
	}
	if err := e.store.DeleteAt(ctx, entry.Pos); err != nil {
		return false, fmt.Errorf("upsert: forget %s: %w", key, err)
	}
	e.idx.ShiftDelete(entry.Pos)
	return true, nil
}
