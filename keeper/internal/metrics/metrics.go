// Package metrics appends one summary row per run to the runs tab.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// NotComputed marks a count that was not measured, as opposed to zero.
const NotComputed = "not computed"

// Header is the runs tab layout.
var Header = []string{
	"RUN_ID", "TRIGGER", "STARTED", "FINISHED",
	"ATTEMPTED", "NEW", "UPDATED", "UNCHANGED", "FAILED",
	"ACTIVE", "UNVERIFIED", "BANNED", "DEAD", "TOTAL_ROWS",
}

// Count is an integer that may be unknown. The zero value is unknown.
type Count struct {
	N     int
	Known bool
}

// Known wraps a measured value.
func Known(n int) Count { return Count{N: n, Known: true} }

func (c Count) String() string {
	if !c.Known {
		return NotComputed
	}
	return strconv.Itoa(c.N)
}

// MarshalJSON renders unknown counts as the NotComputed string.
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Known {
		return json.Marshal(NotComputed)
	}
	return json.Marshal(c.N)
}

func parseCount(s string) Count {
	n, err := strconv.Atoi(s)
	if err != nil {
		return Count{}
	}
	return Known(n)
}

// Run is one row of the runs tab.
type Run struct {
	ID       string    `json:"run_id"`
	Trigger  string    `json:"trigger"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Attempted int `json:"attempted"`
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`

	Active     Count `json:"active"`
	Unverified Count `json:"unverified"`
	Banned     Count `json:"banned"`
	Dead       Count `json:"dead"`
	TotalRows  Count `json:"total_rows"`
}

func (r Run) row() []string {
	return []string{
		r.ID, r.Trigger,
		r.Started.UTC().Format(time.RFC3339), r.Finished.UTC().Format(time.RFC3339),
		strconv.Itoa(r.Attempted), strconv.Itoa(r.New), strconv.Itoa(r.Updated),
		strconv.Itoa(r.Unchanged), strconv.Itoa(r.Failed),
		r.Active.String(), r.Unverified.String(), r.Banned.String(), r.Dead.String(),
		r.TotalRows.String(),
	}
}

func runOf(row []string) Run {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	num := func(i int) int { n, _ := strconv.Atoi(cell(i)); return n }
	started, _ := time.Parse(time.RFC3339, cell(2))
	finished, _ := time.Parse(time.RFC3339, cell(3))
	return Run{
		ID: cell(0), Trigger: cell(1), Started: started, Finished: finished,
		Attempted: num(4), New: num(5), Updated: num(6), Unchanged: num(7), Failed: num(8),
		Active: parseCount(cell(9)), Unverified: parseCount(cell(10)),
		Banned: parseCount(cell(11)), Dead: parseCount(cell(12)),
		TotalRows: parseCount(cell(13)),
	}
}

// Sink writes to the runs tab. It only ever appends.
type Sink struct {
	store tabular.Store
}

// NewSink returns a Sink over store.
func NewSink(store tabular.Store) *Sink { return &Sink{store: store} }

// Record appends r.
func (s *Sink) Record(ctx context.Context, r Run) error {
	if _, err := s.store.Append(ctx, r.row()); err != nil {
		return fmt.Errorf("metrics: record %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to n runs, newest first. n <= 0 returns all.
func (s *Sink) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("metrics: read: %w", err)
	}
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}
	out := make([]Run, 0, n)
	for i := len(rows) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, runOf(rows[i]))
	}
	return out, nil
}
