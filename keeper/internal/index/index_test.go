package index

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

func seed(t *testing.T, rows ...record.Record) (*tabular.MemoryTab, *record.Schema) {
	t.Helper()
	schema := record.Default()
	tab := tabular.NewMemoryBook().Open("profiles", schema.Columns)
	for _, r := range rows {
		if _, err := tab.Append(context.Background(), schema.Row(r)); err != nil {
			t.Fatal(err)
		}
	}
	return tab, schema
}

func TestBuild(t *testing.T) {
	tab, schema := seed(t,
		record.Record{record.ColID: "a", record.ColStatus: "Active"},
		record.Record{record.ColName: "no id"},
		record.Record{record.ColID: "b", record.ColStatus: "Dead"},
	)
	idx, err := Build(context.Background(), tab, schema, nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 3 || idx.Size() != 2 {
		t.Fatalf("Len=%d Size=%d", idx.Len(), idx.Size())
	}
	e, ok := idx.Lookup("b")
	if !ok || e.Pos != 2 || e.Snapshot[record.ColStatus] != "Dead" {
		t.Fatalf("Lookup(b) = %+v, %v", e, ok)
	}
	c := idx.Counts()
	if c["Active"] != 1 || c["Dead"] != 1 {
		t.Fatalf("Counts = %v", c)
	}
}

func TestBuild_DuplicateKeepsFirst(t *testing.T) {
	// WHAT: a duplicated identity resolves to its first row and is logged.
	// WHY: later duplicates are operator mistakes; updates must target one row.
	tab, schema := seed(t,
		record.Record{record.ColID: "a", record.ColName: "first"},
		record.Record{record.ColID: "a", record.ColName: "second"},
	)
	var buf bytes.Buffer
	idx, err := Build(context.Background(), tab, schema, slog.New(slog.NewTextHandler(&buf, nil)))
	if err != nil {
		t.Fatal(err)
	}
	e, _ := idx.Lookup("a")
	if e.Pos != 0 || e.Snapshot[record.ColName] != "first" {
		t.Fatalf("entry = %+v", e)
	}
	if !strings.Contains(buf.String(), "duplicate identity") {
		t.Fatalf("no warning logged: %s", buf.String())
	}
}

func TestShifts(t *testing.T) {
	idx := New(record.Default())
	idx.Put("a", 0, record.Record{})
	idx.Put("b", 1, record.Record{})
	idx.Put("c", 2, record.Record{})

	idx.ShiftInsert(1)
	if e, _ := idx.Lookup("a"); e.Pos != 0 {
		t.Fatalf("a moved to %d", e.Pos)
	}
	if e, _ := idx.Lookup("c"); e.Pos != 3 {
		t.Fatalf("c at %d, want 3", e.Pos)
	}
	if idx.Len() != 4 {
		t.Fatalf("Len = %d", idx.Len())
	}

	idx.ShiftDelete(2) // b
	if _, ok := idx.Lookup("b"); ok {
		t.Fatal("b still indexed after delete")
	}
	if e, _ := idx.Lookup("c"); e.Pos != 2 {
		t.Fatalf("c at %d, want 2", e.Pos)
	}
	if idx.Len() != 3 {
		t.Fatalf("Len = %d", idx.Len())
	}
}

func TestBuild_ReadError(t *testing.T) {
	tab, schema := seed(t)
	tab.Fault = func(string) error { return tabular.ErrThrottled }
	if _, err := Build(context.Background(), tab, schema, nil); err == nil {
		t.Fatal("expected error")
	}
}
