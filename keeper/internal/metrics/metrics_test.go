package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

func TestRecord_UnknownCounts(t *testing.T) {
	// WHAT: an unmeasured count is written as "not computed", never blank or 0.
	ctx := context.Background()
	tab := tabular.NewMemoryBook().Open("Runs", Header)
	sink := NewSink(tab)

	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	err := sink.Record(ctx, Run{
		ID: "r1", Trigger: "scheduled", Started: start, Finished: start.Add(time.Minute),
		Attempted: 3, New: 1, Updated: 1, Unchanged: 0, Failed: 1,
		Active: Known(0), Dead: Known(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	row := tab.Rows()[0]
	if len(row) != len(Header) {
		t.Fatalf("row width %d", len(row))
	}
	if row[9] != "0" || row[10] != NotComputed || row[12] != "2" || row[13] != NotComputed {
		t.Fatalf("row = %v", row)
	}
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(tabular.NewMemoryBook().Open("Runs", Header))
	for _, id := range []string{"r1", "r2", "r3"} {
		sink.Record(ctx, Run{ID: id, Active: Known(5)})
	}
	runs, err := sink.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "r3" || runs[1].ID != "r2" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Active != Known(5) || runs[0].Banned.Known {
		t.Fatalf("counts = %+v", runs[0])
	}
}

func TestCount_JSON(t *testing.T) {
	b, _ := json.Marshal(struct {
		A, B Count
	}{Known(3), Count{}})
	if string(b) != `{"A":3,"B":"not computed"}` {
		t.Fatalf("json = %s", b)
	}
}
