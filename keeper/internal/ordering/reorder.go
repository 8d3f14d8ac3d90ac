// Package ordering keeps the freshest profiles on top of the store. The
// invariant holds after Reorder, not between individual writes.
package ordering

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hazyhaar/profkeeper/keeper/internal/datefmt"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

type keyed struct {
	row   []string
	at    time.Time
	valid bool
	orig  int
}

// Reorder sorts the body of s by the observed column, newest first. Ties
// and rows whose timestamp does not parse keep their relative order; the
// latter go last. The body is rewritten only when the order changed.
// moved counts rows whose position changed.
func Reorder(ctx context.Context, s tabular.Store, schema *record.Schema) (moved int, err error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("ordering: read: %w", err)
	}

	col := schema.Position(schema.Observed)
	items := make([]keyed, len(rows))
	for i, r := range rows {
		k := keyed{row: r, orig: i}
		if col < len(r) {
			k.at, k.valid = datefmt.ParseCanonical(r[col])
		}
		items[i] = k
	}

	slices.SortStableFunc(items, func(a, b keyed) int {
		switch {
		case a.valid && !b.valid:
			return -1
		case !a.valid && b.valid:
			return 1
		case !a.valid:
			return 0
		}
		return b.at.Compare(a.at)
	})

	out := make([][]string, len(items))
	for i, it := range items {
		out[i] = it.row
		if it.orig != i {
			moved++
		}
	}
	if moved == 0 {
		return 0, nil
	}
	if err := s.ReplaceAll(ctx, out); err != nil {
		return 0, fmt.Errorf("ordering: rewrite: %w", err)
	}
	return moved, nil
}
