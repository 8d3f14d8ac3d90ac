// Package queue reads pending scrape targets from the queue tab and
// writes each attempt's outcome back to it.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/profkeeper/keeper/internal/datefmt"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// Header is the queue tab layout.
var Header = []string{"TARGET", "ID", "STATUS", "REMARK", "UPDATED"}

const (
	colTarget = iota
	colID
	colStatus
	colRemark
	colUpdated
)

// Status is the value of the STATUS cell.
type Status string

const (
	Pending     Status = "pending"
	Done        Status = "done"
	Unreachable Status = "unreachable"
	Failed      Status = "failed"
)

const maxRemark = 200

// Entry is one queue row.
type Entry struct {
	Pos    int
	Target string
	ID     string
	Status Status
	Remark string
}

// Queue wraps the queue tab.
type Queue struct {
	store tabular.Store
	now   func() time.Time
}

// New returns a Queue over store.
func New(store tabular.Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Pending returns the rows still to attempt, in tab order. A row is
// pending when its status is blank or "pending" and it names a target.
func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := q.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: read: %w", err)
	}
	var out []Entry
	for pos, row := range rows {
		e := entryOf(pos, row)
		if e.Target == "" {
			continue
		}
		if e.Status == "" || e.Status == Pending {
			out = append(out, e)
		}
	}
	return out, nil
}

// Mark writes status and remark onto e's row. id, when non-empty,
// records the identity the target resolved to.
func (q *Queue) Mark(ctx context.Context, e Entry, status Status, id, remark string) error {
	if id == "" {
		id = e.ID
	}
	remark = truncate(remark, maxRemark)
	row := []string{e.Target, id, string(status), remark, datefmt.Format(q.now())}
	if err := q.store.UpdateRange(ctx, e.Pos, [][]string{row}); err != nil {
		return fmt.Errorf("queue: mark %s: %w", e.Target, err)
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Enqueue appends a pending target.
func (q *Queue) Enqueue(ctx context.Context, target string) (int, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, fmt.Errorf("queue: enqueue: empty target")
	}
	pos, err := q.store.Append(ctx, []string{target, "", string(Pending), "", datefmt.Format(q.now())})
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue: %w", err)
	}
	return pos, nil
}

func entryOf(pos int, row []string) Entry {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		v := record.Clean(row[i])
		if v == record.Blank {
			return ""
		}
		return v
	}
	return Entry{
		Pos:    pos,
		Target: cell(colTarget),
		ID:     cell(colID),
		Status: Status(strings.ToLower(cell(colStatus))),
		Remark: cell(colRemark),
	}
}
