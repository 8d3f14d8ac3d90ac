package upsert

import (
	"time"

	"github.com/hazyhaar/profkeeper/keeper/internal/datefmt"
	"github.com/hazyhaar/profkeeper/keeper/internal/lifecycle"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/signal"
)

// Canonicalizer turns a signal bundle into a canonical record: it derives
// the lifecycle state, normalizes dates, and fills the advisory label.
type Canonicalizer struct {
	Schema *record.Schema
	Dates  *datefmt.Normalizer
	// Label looks up the advisory label for a display name. Optional.
	Label func(name string) string
}

// Canonical builds the record for b observed at now. Values are cleaned
// later by the schema when the row is written.
func (c *Canonicalizer) Canonical(b signal.Bundle, now time.Time) record.Record {
	s := c.Schema
	rec := make(record.Record, len(s.Columns))
	for _, col := range s.Columns {
		if v, ok := b.Fields[col]; ok {
			rec[col] = v
		}
	}

	rec[s.State] = string(lifecycle.Classify(b))

	if s.Has(record.ColBio) && record.IsBlank(rec[record.ColBio]) && b.Bio != "" {
		rec[record.ColBio] = b.Bio
	}
	if s.Has(record.ColSource) && record.IsBlank(rec[record.ColSource]) && b.SourceTag != "" {
		rec[record.ColSource] = b.SourceTag
	}

	// Optional date columns keep their blank; only the observation
	// timestamp defaults to now.
	for _, col := range s.Dates {
		if col == s.Observed || !s.Has(col) || record.IsBlank(rec[col]) {
			continue
		}
		rec[col] = c.Dates.Normalize(rec[col], now)
	}
	rec[s.Observed] = c.Dates.Normalize(rec[s.Observed], now)

	if s.Label != "" && c.Label != nil {
		if l := c.Label(record.Clean(rec[s.Name])); l != "" {
			rec[s.Label] = l
		}
	}
	return rec
}
