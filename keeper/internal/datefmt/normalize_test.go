package datefmt

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var ref = time.Date(2026, time.October, 15, 14, 30, 0, 0, time.UTC)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNormalize_Relative(t *testing.T) {
	n := New(quiet(), PolicyNow)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"5 minutes ago", ref.Add(-5 * time.Minute)},
		{"1 second ago", ref.Add(-time.Second)},
		{"3 hours ago", ref.Add(-3 * time.Hour)},
		{"an hour ago", ref.Add(-time.Hour)},
		{"2 days ago", ref.Add(-48 * time.Hour)},
		{"1 week ago", ref.Add(-7 * 24 * time.Hour)},
		{"a month ago", ref.Add(-30 * 24 * time.Hour)},
		{"2 years ago", ref.Add(-2 * 365 * 24 * time.Hour)},
		{"  10   Mins ago ", ref.Add(-10 * time.Minute)},
		{"yesterday", ref.Add(-24 * time.Hour)},
		{"just now", ref},
	}
	for _, c := range cases {
		if got := n.Normalize(c.in, ref); got != Format(c.want) {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, Format(c.want))
		}
	}
}

func TestNormalize_RelativeBounds(t *testing.T) {
	// WHAT: large counts step back by days; counts too big to be a date
	// take the unparseable path instead of wrapping around.
	// WHY: an overflowed duration used to land in the future and sort the
	// record as the freshest one.
	var buf bytes.Buffer
	n := New(slog.New(slog.NewTextHandler(&buf, nil)), PolicySentinel)

	got, ok := Parse("300 years ago", ref)
	if !ok || got.Year() != 1726 {
		t.Fatalf("300 years ago = %v, %v; want a date in 1726", got, ok)
	}
	if got, ok := Parse("400 hours ago", ref); !ok || !got.Equal(ref.Add(-400*time.Hour)) {
		t.Fatalf("400 hours ago = %v, %v", got, ok)
	}

	for _, in := range []string{
		"999999 years ago",
		"99999999999999999999 days ago",
		"9999999999999 seconds ago",
	} {
		if _, ok := Parse(in, ref); ok {
			t.Errorf("Parse(%q) accepted", in)
		}
		if got := n.Normalize(in, ref); got != Unknown {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, Unknown)
		}
	}
	if !strings.Contains(buf.String(), "unparseable date") {
		t.Fatalf("expected a warning, log = %q", buf.String())
	}
}

func TestNormalize_Placeholders(t *testing.T) {
	n := New(quiet(), PolicySentinel)
	for _, in := range []string{"", "  ", "-", "n/a", "N/A", "None"} {
		if got := n.Normalize(in, ref); got != Format(ref) {
			t.Errorf("Normalize(%q) = %q, want now", in, got)
		}
	}
}

func TestNormalize_Absolute(t *testing.T) {
	n := New(quiet(), PolicyNow)
	cases := []struct {
		in, want string
	}{
		{"2026-10-01 08:15:00", "01-Oct-2026 08:15 AM"},
		{"2026-10-01", "01-Oct-2026 02:30 PM"},
		{"March 3, 2025", "03-Mar-2025 02:30 PM"},
		{"March 3rd, 2025", "03-Mar-2025 02:30 PM"},
		{"Jan 5, 2024 at 7:45 pm", "05-Jan-2024 07:45 PM"},
		{"05/01/2024", "05-Jan-2024 02:30 PM"},
		{"3:15 pm", "15-Oct-2026 03:15 PM"},
		{"21:05", "15-Oct-2026 09:05 PM"},
		{"2025-12-31T23:00:00Z", "31-Dec-2025 11:00 PM"},
		{"01-oct-2026 08:15 am", "01-Oct-2026 08:15 AM"},
	}
	for _, c := range cases {
		if got := n.Normalize(c.in, ref); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_CenturyCorrection(t *testing.T) {
	// "60" parses as 2060, more than a year past the reference.
	got := New(quiet(), PolicyNow).Normalize("05/01/60", ref)
	if got != "05-Jan-1960 02:30 PM" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalize_CanonicalIsFixedPoint(t *testing.T) {
	n := New(quiet(), PolicyNow)
	once := n.Normalize("5 minutes ago", ref)
	if twice := n.Normalize(once, ref.Add(72*time.Hour)); twice != once {
		t.Fatalf("re-normalizing %q gave %q", once, twice)
	}
}

func TestNormalize_GarbageFallsBackToNow(t *testing.T) {
	var buf bytes.Buffer
	n := New(slog.New(slog.NewTextHandler(&buf, nil)), PolicyNow)

	if got := n.Normalize("zzz", ref); got != Format(ref) {
		t.Fatalf("Normalize(zzz) = %q, want now", got)
	}
	if !strings.Contains(buf.String(), "unparseable date") {
		t.Fatalf("expected a warning, log = %q", buf.String())
	}
}

func TestNormalize_SentinelPolicy(t *testing.T) {
	n := New(quiet(), PolicySentinel)
	if got := n.Normalize("zzz", ref); got != Unknown {
		t.Fatalf("got %q, want %q", got, Unknown)
	}
}

func TestNormalize_NeverEmpty(t *testing.T) {
	inputs := []string{"", "\x00", "ago", "99999999999 years ago", "32/13/2020", "::", "PM", "😀", strings.Repeat("x", 4096)}
	for _, policy := range []Policy{PolicyNow, PolicySentinel} {
		n := New(quiet(), policy)
		for _, in := range inputs {
			if got := n.Normalize(in, ref); got == "" {
				t.Errorf("Normalize(%q) returned empty string", in)
			}
		}
	}
}

func TestParseCanonical(t *testing.T) {
	tm, ok := ParseCanonical("15-Oct-2026 02:30 PM")
	if !ok || tm.Hour() != 14 || tm.Day() != 15 {
		t.Fatalf("ParseCanonical = %v, %v", tm, ok)
	}
	if _, ok := ParseCanonical(Unknown); ok {
		t.Fatal("Unknown should not parse")
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("Sentinel") != PolicySentinel || ParsePolicy("now") != PolicyNow || ParsePolicy("") != PolicyNow {
		t.Fatal("ParsePolicy mapping")
	}
}
