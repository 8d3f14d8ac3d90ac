// Package labels loads the advisory labels keyed by display name. The
// labels are metadata only and never identify a profile.
package labels

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// Header is the labels tab layout.
var Header = []string{"NAME", "LABEL"}

// Set maps a normalized display name to its label.
type Set map[string]string

// Load reads the labels tab. Later rows override earlier ones.
func Load(ctx context.Context, s tabular.Store) (Set, error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("labels: read: %w", err)
	}
	set := make(Set, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		name, label := record.Clean(row[0]), record.Clean(row[1])
		if name == record.Blank || label == record.Blank {
			continue
		}
		set[strings.ToLower(name)] = label
	}
	return set, nil
}

// For returns the label of name, "" when none.
func (s Set) For(name string) string {
	return s[strings.ToLower(record.Clean(name))]
}
