package record

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Blank is stored instead of an empty cell so "no data" stays distinct
// from "not yet computed".
const Blank = "Not Given"

var horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)

var placeholders = map[string]bool{
	"":          true,
	"-":         true,
	"--":        true,
	"n/a":       true,
	"na":        true,
	"none":      true,
	"null":      true,
	"nil":       true,
	"not given": true,
}

// Clean normalizes a cell: zero-width characters are dropped, line endings
// become "\n", runs of horizontal whitespace collapse to one space, empty
// lines are removed, and empty or placeholder values become Blank.
func Clean(v string) string {
	v = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, v)
	v = strings.ReplaceAll(v, "\r\n", "\n")
	v = strings.ReplaceAll(v, "\r", "\n")

	lines := strings.Split(v, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(horizontalSpace.ReplaceAllString(l, " "))
		if l != "" {
			out = append(out, l)
		}
	}
	v = strings.Join(out, "\n")

	if placeholders[strings.ToLower(v)] {
		return Blank
	}
	return v
}

// IsBlank reports whether v cleans to Blank.
func IsBlank(v string) bool { return Clean(v) == Blank }

// JoinMulti joins a multi-valued attribute with "\n", dropping blanks.
func JoinMulti(values []string) string {
	var kept []string
	for _, v := range values {
		if c := Clean(v); c != Blank {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return Blank
	}
	return strings.Join(kept, "\n")
}

// CleanCount normalizes counts such as "1,234", "1.2k" or "3M" to a plain
// integer string. Values that do not look like a count are returned cleaned
// but otherwise untouched.
func CleanCount(v string) string {
	c := Clean(v)
	if c == Blank {
		return c
	}
	s := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(c, ",", ""), " ", ""))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1e3, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult, s = 1e6, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "b"):
		mult, s = 1e9, strings.TrimSuffix(s, "b")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return c
	}
	return strconv.FormatInt(int64(math.Round(f*mult)), 10)
}
