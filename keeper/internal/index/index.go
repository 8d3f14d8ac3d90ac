// Package index maps profile identities to their current row position
// and last stored values. It is rebuilt from the store at the start of
// every run and kept in step with each write the run makes.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// Entry is where a profile lives and what it last looked like.
type Entry struct {
	Pos      int
	Snapshot record.Record
}

// Index is not safe for concurrent use; a run owns it exclusively.
type Index struct {
	schema *record.Schema
	byKey  map[string]Entry
	length int
}

// New returns an empty index for an empty store.
func New(schema *record.Schema) *Index {
	return &Index{schema: schema, byKey: make(map[string]Entry)}
}

// Build reads every row of s. When an identity appears more than once the
// first row wins and the others are logged.
func Build(ctx context.Context, s tabular.Store, schema *record.Schema, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: build: %w", err)
	}

	idx := New(schema)
	idx.length = len(rows)
	for pos, row := range rows {
		rec := schema.FromRow(row)
		key := schema.KeyOf(rec)
		if key == "" {
			continue
		}
		if first, dup := idx.byKey[key]; dup {
			logger.Warn("index: duplicate identity, keeping first row",
				"key", key, "kept", first.Pos, "ignored", pos)
			continue
		}
		idx.byKey[key] = Entry{Pos: pos, Snapshot: rec}
	}
	return idx, nil
}

// Lookup returns the entry for key.
func (x *Index) Lookup(key string) (Entry, bool) {
	e, ok := x.byKey[key]
	return e, ok
}

// Put records key at pos with snapshot rec.
func (x *Index) Put(key string, pos int, rec record.Record) {
	x.byKey[key] = Entry{Pos: pos, Snapshot: rec}
	x.grow(pos)
}

// Appended accounts for a row with no identity written at pos.
func (x *Index) Appended(pos int) { x.grow(pos) }

func (x *Index) grow(pos int) {
	if pos >= x.length {
		x.length = pos + 1
	}
}

// ShiftInsert accounts for a row inserted before pos.
func (x *Index) ShiftInsert(pos int) {
	for k, e := range x.byKey {
		if e.Pos >= pos {
			e.Pos++
			x.byKey[k] = e
		}
	}
	x.length++
}

// ShiftDelete accounts for the row at pos being removed.
func (x *Index) ShiftDelete(pos int) {
	for k, e := range x.byKey {
		switch {
		case e.Pos == pos:
			delete(x.byKey, k)
		case e.Pos > pos:
			e.Pos--
			x.byKey[k] = e
		}
	}
	if x.length > 0 {
		x.length--
	}
}

// Len is the number of body rows in the store, keyed or not.
func (x *Index) Len() int { return x.length }

// Size is the number of distinct identities.
func (x *Index) Size() int { return len(x.byKey) }

// Counts tallies identities by the value of the state column.
func (x *Index) Counts() map[string]int {
	out := make(map[string]int)
	for _, e := range x.byKey {
		out[e.Snapshot[x.schema.State]]++
	}
	return out
}
