// Package datefmt turns the date text found on profile pages (relative
// "5 minutes ago", absolute dates, bare times, placeholders) into one
// canonical form.
package datefmt

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical output layout. The meridiem is always upper case.
const Layout = "02-Jan-2006 03:04 PM"

// Unknown is written instead of "now" under PolicySentinel.
const Unknown = "Unknown Date"

// Policy decides what an unparseable input becomes.
type Policy int

const (
	// PolicyNow substitutes the reference instant. This can make an old,
	// unparseable record look fresh to the ordering step.
	PolicyNow Policy = iota
	// PolicySentinel writes Unknown; the reorder sorts such rows last.
	PolicySentinel
)

// ParsePolicy maps a config string ("now", "sentinel") to a Policy.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), "sentinel") {
		return PolicySentinel
	}
	return PolicyNow
}

type kind int

const (
	kindFull kind = iota
	kindDate
	kindTime
)

type pattern struct {
	layout string
	kind   kind
}

// patterns are tried in order; the first successful parse wins. Slash and
// dash numeric dates are day-first.
var patterns = []pattern{
	{Layout, kindFull},
	{"2-Jan-2006 3:04 PM", kindFull},
	{"02-Jan-06 03:04 PM", kindFull},
	{time.RFC3339, kindFull},
	{"2006-01-02T15:04:05", kindFull},
	{"2006-01-02 15:04:05", kindFull},
	{"2006-01-02 15:04", kindFull},
	{"Monday, January 2, 2006 3:04 PM", kindFull},
	{"January 2, 2006 3:04 PM", kindFull},
	{"Jan 2, 2006 3:04 PM", kindFull},
	{"2 January 2006 3:04 PM", kindFull},
	{"2 Jan 2006 3:04 PM", kindFull},
	{"2 Jan 2006 15:04", kindFull},
	{"02/01/2006 3:04 PM", kindFull},
	{"02/01/2006 15:04", kindFull},

	{"02-Jan-2006", kindDate},
	{"2-Jan-2006", kindDate},
	{"2006-01-02", kindDate},
	{"Monday, January 2, 2006", kindDate},
	{"January 2, 2006", kindDate},
	{"Jan 2, 2006", kindDate},
	{"2 January 2006", kindDate},
	{"2 Jan 2006", kindDate},
	{"02/01/2006", kindDate},
	{"02-01-2006", kindDate},
	{"02.01.2006", kindDate},
	{"02/01/06", kindDate},
	{"January 2006", kindDate},
	{"Jan 2006", kindDate},

	{"3:04 PM", kindTime},
	{"3:04PM", kindTime},
	{"15:04:05", kindTime},
	{"15:04", kindTime},
}

var placeholders = map[string]bool{
	"":          true,
	"-":         true,
	"--":        true,
	"—":         true,
	"n/a":       true,
	"na":        true,
	"none":      true,
	"null":      true,
	"not given": true,
}

var (
	relativeRe = regexp.MustCompile(`^(\d+|a|an|one)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|wks?|months?|mos?|years?|yrs?)\s+ago$`)
	ordinalRe  = regexp.MustCompile(`(\d+)(ST|ND|RD|TH)\b`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

var unitSeconds = map[byte]int64{
	's': 1,
	'h': 3600,
}

// Format renders t in the canonical layout.
func Format(t time.Time) string { return t.Format(Layout) }

// ParseCanonical parses a value previously produced by Format.
func ParseCanonical(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Parse interprets raw relative to now. ok is false only when no form
// matched; placeholders resolve to now.
func Parse(raw string, now time.Time) (t time.Time, ok bool) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	lower := strings.ToLower(s)

	if placeholders[lower] {
		return now, true
	}
	switch lower {
	case "now", "just now", "today", "moments ago", "a moment ago":
		return now, true
	case "yesterday":
		return now.Add(-24 * time.Hour), true
	}

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n := int64(1)
		if m[1][0] >= '0' && m[1][0] <= '9' {
			v, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			n = v
		}
		return ago(now, n, m[2])
	}

	upper := strings.ToUpper(s)
	upper = ordinalRe.ReplaceAllString(upper, "$1")
	upper = strings.Replace(upper, " AT ", " ", 1)

	for _, p := range patterns {
		parsed, err := time.ParseInLocation(p.layout, upper, now.Location())
		if err != nil {
			continue
		}
		parsed = parsed.In(now.Location())
		switch p.kind {
		case kindDate:
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(),
				now.Hour(), now.Minute(), now.Second(), 0, now.Location())
		case kindTime:
			parsed = time.Date(now.Year(), now.Month(), now.Day(),
				parsed.Hour(), parsed.Minute(), parsed.Second(), 0, now.Location())
		}
		if parsed.Year() > now.Year()+1 {
			parsed = parsed.AddDate(-100, 0, 0)
		}
		return parsed, true
	}
	return time.Time{}, false
}

// maxAgoDays bounds relative dates to about ten thousand years back.
const maxAgoDays = 10000 * 366

// ago subtracts n units from now. A month counts as 30 days and a year as
// 365. Units of a day or longer step by calendar days; shorter units must
// fit a time.Duration. Counts past either bound are not dates.
func ago(now time.Time, n int64, unit string) (time.Time, bool) {
	if days := unitDays(unit); days > 0 {
		if n > maxAgoDays/days {
			return time.Time{}, false
		}
		return now.AddDate(0, 0, -int(n*days)), true
	}
	sec := unitOf(unit)
	if n > int64(math.MaxInt64/time.Second)/sec {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n*sec) * time.Second), true
}

func unitDays(unit string) int64 {
	switch {
	case strings.HasPrefix(unit, "mo"):
		return 30
	case strings.HasPrefix(unit, "mi"):
		return 0
	}
	switch unit[0] {
	case 'd':
		return 1
	case 'w':
		return 7
	case 'y':
		return 365
	}
	return 0
}

// unitOf maps a sub-day unit word to seconds.
func unitOf(unit string) int64 {
	if strings.HasPrefix(unit, "mi") {
		return 60
	}
	return unitSeconds[unit[0]]
}

// Normalizer applies Parse and logs the fallback for unparseable input.
type Normalizer struct {
	logger *slog.Logger
	policy Policy
}

// New creates a Normalizer. A nil logger uses slog.Default().
func New(logger *slog.Logger, policy Policy) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger, policy: policy}
}

// Normalize returns the canonical form of raw. It never returns "".
func (n *Normalizer) Normalize(raw string, now time.Time) string {
	t, ok := Parse(raw, now)
	if ok {
		return Format(t)
	}
	if n.policy == PolicySentinel {
		n.logger.Warn("datefmt: unparseable date, writing unknown", "raw", raw)
		return Unknown
	}
	n.logger.Warn("datefmt: unparseable date, substituting now", "raw", raw)
	return Format(now)
}
