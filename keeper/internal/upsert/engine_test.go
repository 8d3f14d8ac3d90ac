package upsert

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/profkeeper/keeper/internal/datefmt"
	"github.com/hazyhaar/profkeeper/keeper/internal/index"
	"github.com/hazyhaar/profkeeper/keeper/internal/lifecycle"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/signal"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

var t0 = time.Date(2026, time.October, 15, 14, 30, 0, 0, time.UTC)

type fixture struct {
	tab    *tabular.MemoryTab
	schema *record.Schema
	eng    *Engine
	log    *bytes.Buffer
}

func newFixture(t *testing.T, mode Mode) *fixture {
	t.Helper()
	schema := record.Default()
	tab := tabular.NewMemoryBook().Open("profiles", schema.Columns)
	idx, err := index.Build(context.Background(), tab, schema, nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return &fixture{
		tab:    tab,
		schema: schema,
		eng:    New(tab, schema, idx, WithLogger(logger), WithMode(mode)),
		log:    &buf,
	}
}

func (f *fixture) upsert(t *testing.T, rec record.Record) Result {
	t.Helper()
	res, err := f.eng.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return res
}

func (f *fixture) rowsFor(key string) int {
	n := 0
	for _, row := range f.tab.Rows() {
		if f.schema.KeyOf(f.schema.FromRow(row)) == key {
			n++
		}
	}
	return n
}

func sara(name, city, observed string) record.Record {
	return record.Record{
		record.ColID:       "12345",
		record.ColName:     name,
		record.ColCity:     city,
		record.ColStatus:   "Active",
		record.ColDateTime: observed,
	}
}

func TestUpsert_Scenarios(t *testing.T) {
	f := newFixture(t, ModeBulk)

	// New identity.
	res := f.upsert(t, sara("sara21", "Lahore", "15-Oct-2026 02:30 PM"))
	if res.Status != StatusNew || res.Key != "12345" {
		t.Fatalf("first upsert = %+v", res)
	}
	if len(f.tab.Rows()) != 1 {
		t.Fatalf("rows = %d, want 1", len(f.tab.Rows()))
	}
	if _, ok := f.eng.Index().Lookup("12345"); !ok {
		t.Fatal("index missing 12345")
	}

	// Name and city change.
	res = f.upsert(t, sara("sara_2021", "Karachi", "15-Oct-2026 02:35 PM"))
	if res.Status != StatusUpdated {
		t.Fatalf("second upsert status = %s", res.Status)
	}
	if !reflect.DeepEqual(res.Changed, []string{record.ColName, record.ColCity}) {
		t.Fatalf("changed = %v", res.Changed)
	}
	if f.rowsFor("12345") != 1 {
		t.Fatalf("rows for 12345 = %d", f.rowsFor("12345"))
	}

	// Identical content, only the volatile timestamp moves.
	res = f.upsert(t, sara("sara_2021", "Karachi", "15-Oct-2026 02:40 PM"))
	if res.Status != StatusUnchanged || len(res.Changed) != 0 {
		t.Fatalf("third upsert = %+v", res)
	}
	// The overwrite still happened: the observed timestamp is refreshed.
	row := f.schema.FromRow(f.tab.Rows()[0])
	if row[record.ColDateTime] != "15-Oct-2026 02:40 PM" {
		t.Fatalf("DATETIME = %q", row[record.ColDateTime])
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	f := newFixture(t, ModeBulk)
	rec := sara("x", "y", "15-Oct-2026 02:30 PM")
	f.upsert(t, rec)
	for i := 0; i < 2; i++ {
		res := f.upsert(t, rec)
		if res.Status != StatusUnchanged || len(res.Changed) != 0 {
			t.Fatalf("repeat %d = %+v", i, res)
		}
	}
}

func TestUpsert_Uniqueness(t *testing.T) {
	// WHAT: any interleaving of upserts keeps one row per identity.
	f := newFixture(t, ModeBulk)
	keys := []string{"a", "b", "a", "c", "b", "a", "", "c", ""}
	for i, k := range keys {
		f.upsert(t, record.Record{record.ColID: k, record.ColName: strings.Repeat("n", i+1)})
	}
	for _, k := range []string{"a", "b", "c"} {
		if n := f.rowsFor(k); n != 1 {
			t.Fatalf("rows for %s = %d", k, n)
		}
	}
	// 3 identities plus 2 keyless inserts.
	if n := len(f.tab.Rows()); n != 5 {
		t.Fatalf("rows = %d, want 5", n)
	}
	if f.eng.Index().Len() != 5 {
		t.Fatalf("index Len = %d", f.eng.Index().Len())
	}
}

func TestUpsert_MissingIdentityWarns(t *testing.T) {
	f := newFixture(t, ModeBulk)
	res := f.upsert(t, record.Record{record.ColName: "anon"})
	if res.Status != StatusNew || res.Key != "" {
		t.Fatalf("res = %+v", res)
	}
	if !strings.Contains(f.log.String(), "identity missing") {
		t.Fatalf("no warning: %s", f.log.String())
	}
}

func TestUpsert_FailedWriteLeavesIndex(t *testing.T) {
	// WHAT: a rejected mutation does not touch the index.
	// WHY: the index must mirror the store; a phantom entry would turn the
	// next upsert of that identity into an update of someone else's row.
	f := newFixture(t, ModeBulk)
	f.upsert(t, sara("sara21", "Lahore", "15-Oct-2026 02:30 PM"))

	boom := errors.New("quota exhausted")
	f.tab.Fault = func(string) error { return boom }

	_, err := f.eng.Upsert(context.Background(), record.Record{record.ColID: "999"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := f.eng.Index().Lookup("999"); ok {
		t.Fatal("index gained 999 after failed insert")
	}

	_, err = f.eng.Upsert(context.Background(), sara("renamed", "Lahore", "15-Oct-2026 02:31 PM"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	e, _ := f.eng.Index().Lookup("12345")
	if e.Snapshot[record.ColName] != "sara21" {
		t.Fatalf("snapshot changed after failed update: %v", e.Snapshot[record.ColName])
	}
	if f.eng.Index().Len() != 1 {
		t.Fatalf("Len = %d", f.eng.Index().Len())
	}
}

func TestUpsert_RelocateMovesToTop(t *testing.T) {
	f := newFixture(t, ModeRelocate)
	for _, k := range []string{"a", "b", "c"} {
		f.upsert(t, record.Record{record.ColID: k})
	}
	// Newest insert is on top: c, b, a.
	res := f.upsert(t, record.Record{record.ColID: "a", record.ColName: "moved"})
	if res.Pos != 0 || res.Status != StatusUpdated {
		t.Fatalf("res = %+v", res)
	}
	var order []string
	for _, row := range f.tab.Rows() {
		order = append(order, row[0])
	}
	if !reflect.DeepEqual(order, []string{"a", "c", "b"}) {
		t.Fatalf("order = %v", order)
	}
	for i, k := range order {
		if e, _ := f.eng.Index().Lookup(k); e.Pos != i {
			t.Fatalf("index has %s at %d, store at %d", k, e.Pos, i)
		}
	}
}

func TestUpsert_RelocateFailedDeleteUndoes(t *testing.T) {
	// WHAT: when the old copy cannot be deleted, the fresh copy on top is
	// removed again and the upsert reports the error.
	// WHY: reporting success with two rows for one identity breaks the
	// one-row-per-profile guarantee until the next index rebuild.
	f := newFixture(t, ModeRelocate)
	for _, k := range []string{"a", "b"} {
		f.upsert(t, record.Record{record.ColID: k})
	}
	boom := errors.New("delete refused")
	deletes := 0
	f.tab.Fault = func(op string) error {
		if op != "delete" {
			return nil
		}
		deletes++
		if deletes == 1 {
			return boom
		}
		return nil
	}

	_, err := f.eng.Upsert(context.Background(), record.Record{record.ColID: "a", record.ColName: "moved"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if n := f.rowsFor("a"); n != 1 {
		t.Fatalf("rows for a = %d, want 1", n)
	}
	var order []string
	for i, row := range f.tab.Rows() {
		order = append(order, row[0])
		if e, _ := f.eng.Index().Lookup(row[0]); e.Pos != i {
			t.Fatalf("index has %s at %d, store at %d", row[0], e.Pos, i)
		}
	}
	if !reflect.DeepEqual(order, []string{"b", "a"}) {
		t.Fatalf("order = %v", order)
	}
}

func TestUpsert_RelocateFailedUndoLogs(t *testing.T) {
	f := newFixture(t, ModeRelocate)
	for _, k := range []string{"a", "b"} {
		f.upsert(t, record.Record{record.ColID: k})
	}
	boom := errors.New("delete refused")
	f.tab.Fault = func(op string) error {
		if op == "delete" {
			return boom
		}
		return nil
	}

	if _, err := f.eng.Upsert(context.Background(), record.Record{record.ColID: "a", record.ColName: "moved"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(f.log.String(), "relocate left a duplicate") {
		t.Fatalf("no error logged: %s", f.log.String())
	}
	for i := range f.tab.Rows() {
		if i == 0 {
			continue
		}
		row := f.tab.Rows()[i]
		if e, _ := f.eng.Index().Lookup(row[0]); e.Pos != i {
			t.Fatalf("index has %s at %d, store at %d", row[0], e.Pos, i)
		}
	}
}

func TestForget(t *testing.T) {
	f := newFixture(t, ModeBulk)
	for _, k := range []string{"a", "b", "c"} {
		f.upsert(t, record.Record{record.ColID: k})
	}
	ok, err := f.eng.Forget(context.Background(), "b")
	if err != nil || !ok {
		t.Fatalf("Forget = %v, %v", ok, err)
	}
	if e, _ := f.eng.Index().Lookup("c"); e.Pos != 1 {
		t.Fatalf("c at %d", e.Pos)
	}
	if ok, _ := f.eng.Forget(context.Background(), "zzz"); ok {
		t.Fatal("forgot unknown key")
	}
}

func TestCanonical(t *testing.T) {
	schema := record.Default()
	c := &Canonicalizer{
		Schema: schema,
		Dates:  datefmt.New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), datefmt.PolicyNow),
		Label:  func(name string) string { return map[string]string{"sara21": "vip"}[name] },
	}

	rec := c.Canonical(signal.Bundle{
		Fields: map[string]string{
			record.ColID:       "12345",
			record.ColName:     " sara21 ",
			record.ColLastPost: "5 minutes ago",
			"UNKNOWN_FIELD":    "dropped",
		},
		FailureReason: "Page timeout",
		Bio:           "hello",
		SourceTag:     "queue",
	}, t0)

	if rec[record.ColStatus] != string(lifecycle.Dead) {
		t.Fatalf("STATUS = %q", rec[record.ColStatus])
	}
	if rec[record.ColDateTime] != datefmt.Format(t0) {
		t.Fatalf("DATETIME = %q", rec[record.ColDateTime])
	}
	if rec[record.ColLastPost] != datefmt.Format(t0.Add(-5*time.Minute)) {
		t.Fatalf("LAST_POST = %q", rec[record.ColLastPost])
	}
	if _, ok := rec[record.ColJoined]; ok {
		t.Fatalf("JOINED should stay absent, got %q", rec[record.ColJoined])
	}
	if rec[record.ColTags] != "vip" || rec[record.ColBio] != "hello" || rec[record.ColSource] != "queue" {
		t.Fatalf("rec = %v", rec)
	}
	if _, ok := rec["UNKNOWN_FIELD"]; ok {
		t.Fatal("field outside the schema kept")
	}
}

func TestNonDropping(t *testing.T) {
	// WHAT: banned, unverified and dead bundles all end up stored.
	f := newFixture(t, ModeBulk)
	c := &Canonicalizer{Schema: f.schema, Dates: datefmt.New(nil, datefmt.PolicyNow)}
	bundles := []signal.Bundle{
		{Fields: map[string]string{record.ColID: "1"}, FailureReason: "Page timeout"},
		{Fields: map[string]string{record.ColID: "2"}, Label: "Banned"},
		{Fields: map[string]string{record.ColID: "3"}, Label: "unverified"},
	}
	want := []lifecycle.State{lifecycle.Dead, lifecycle.Banned, lifecycle.Unverified}
	for i, b := range bundles {
		f.upsert(t, c.Canonical(b, t0))
		e, ok := f.eng.Index().Lookup(b.Fields[record.ColID])
		if !ok || e.Snapshot[record.ColStatus] != string(want[i]) {
			t.Fatalf("bundle %d: entry %+v ok=%v", i, e, ok)
		}
	}
}
