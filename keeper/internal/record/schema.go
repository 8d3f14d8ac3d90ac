// Package record defines the canonical, fixed-column profile row and the
// change detector comparing two of them.
package record

import (
	"errors"
	"fmt"
	"slices"
)

// Default column names.
const (
	ColID          = "ID"
	ColName        = "NAME"
	ColStatus      = "STATUS"
	ColTags        = "TAGS"
	ColCity        = "CITY"
	ColCountry     = "COUNTRY"
	ColGender      = "GENDER"
	ColAge         = "AGE"
	ColMarried     = "MARRIED"
	ColJoined      = "JOINED"
	ColFollowers   = "FOLLOWERS"
	ColFollowing   = "FOLLOWING"
	ColPosts       = "POSTS"
	ColInterests   = "INTERESTS"
	ColBio         = "BIO"
	ColLastPost    = "LAST_POST"
	ColProfileLink = "PROFILE_LINK"
	ColSource      = "SOURCE"
	ColDateTime    = "DATETIME"
)

// DefaultColumns is the column order of the profiles tab.
var DefaultColumns = []string{
	ColID, ColName, ColStatus, ColTags, ColCity, ColCountry, ColGender, ColAge,
	ColMarried, ColJoined, ColFollowers, ColFollowing, ColPosts, ColInterests,
	ColBio, ColLastPost, ColProfileLink, ColSource, ColDateTime,
}

// ErrInvalidSchema is returned by NewSchema.
var ErrInvalidSchema = errors.New("record: invalid schema")

// Record maps column name to canonical value.
type Record map[string]string

// Schema fixes the column order and the role of the special columns.
// Build it with NewSchema or Default.
type Schema struct {
	Columns []string

	Key      string // identity key
	Name     string // display name
	State    string // lifecycle state
	Observed string // last-observed-at
	Label    string // advisory label keyed by display name; optional

	// Volatile columns are ignored by Diff.
	Volatile []string
	// Counts are normalized with CleanCount.
	Counts []string
	// Dates are run through the date normalizer (Observed always is).
	Dates []string

	pos      map[string]int
	volatile map[string]bool
	counts   map[string]bool
}

// Default returns the schema of DefaultColumns.
func Default() *Schema {
	s, err := NewSchema(Schema{
		Columns:  DefaultColumns,
		Key:      ColID,
		Name:     ColName,
		State:    ColStatus,
		Observed: ColDateTime,
		Label:    ColTags,
		Volatile: []string{ColDateTime, ColJoined, ColLastPost},
		Counts:   []string{ColFollowers, ColFollowing, ColPosts},
		Dates:    []string{ColJoined, ColLastPost},
	})
	if err != nil {
		panic(err)
	}
	return s
}

// NewSchema validates def and returns a ready Schema.
func NewSchema(def Schema) (*Schema, error) {
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}
	s := def
	s.Columns = slices.Clone(def.Columns)
	s.pos = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		if c == "" {
			return nil, fmt.Errorf("%w: empty column name at %d", ErrInvalidSchema, i)
		}
		if _, dup := s.pos[c]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, c)
		}
		s.pos[c] = i
	}

	required := map[string]string{"key": s.Key, "name": s.Name, "state": s.State, "observed": s.Observed}
	for role, col := range required {
		if _, ok := s.pos[col]; !ok {
			return nil, fmt.Errorf("%w: %s column %q not in columns", ErrInvalidSchema, role, col)
		}
	}
	if s.Label != "" {
		if _, ok := s.pos[s.Label]; !ok {
			return nil, fmt.Errorf("%w: label column %q not in columns", ErrInvalidSchema, s.Label)
		}
	}

	s.volatile = make(map[string]bool, len(s.Volatile))
	for _, c := range s.Volatile {
		s.volatile[c] = true
	}
	s.counts = make(map[string]bool, len(s.Counts))
	for _, c := range s.Counts {
		s.counts[c] = true
	}
	return &s, nil
}

// Has reports whether col is part of the schema.
func (s *Schema) Has(col string) bool {
	_, ok := s.pos[col]
	return ok
}

// Position returns the zero-based index of col, -1 if unknown.
func (s *Schema) Position(col string) int {
	if i, ok := s.pos[col]; ok {
		return i
	}
	return -1
}

// IsVolatile reports whether col is excluded from change detection.
func (s *Schema) IsVolatile(col string) bool { return s.volatile[col] }

// Row renders r in column order with every value cleaned.
func (s *Schema) Row(r Record) []string {
	row := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		row[i] = s.clean(c, r[c])
	}
	return row
}

// FromRow parses a stored row. Missing trailing cells become Blank; cells
// beyond the schema are ignored.
func (s *Schema) FromRow(row []string) Record {
	r := make(Record, len(s.Columns))
	for i, c := range s.Columns {
		v := ""
		if i < len(row) {
			v = row[i]
		}
		r[c] = s.clean(c, v)
	}
	return r
}

// KeyOf returns the identity key of r, "" when absent.
func (s *Schema) KeyOf(r Record) string {
	k := Clean(r[s.Key])
	if k == Blank {
		return ""
	}
	return k
}

// Diff returns the non-volatile columns whose cleaned values differ, in
// column order. An empty result means the write is "unchanged".
func (s *Schema) Diff(stored, fresh Record) []string {
	var changed []string
	for _, c := range s.Columns {
		if s.volatile[c] {
			continue
		}
		if s.clean(c, stored[c]) != s.clean(c, fresh[c]) {
			changed = append(changed, c)
		}
	}
	return changed
}

func (s *Schema) clean(col, v string) string {
	if s.counts[col] {
		return CleanCount(v)
	}
	return Clean(v)
}
