package pgbook

import (
	"context"
	"os"
	"testing"

	"github.com/hazyhaar/profkeeper/idgen"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular/tabulartest"
)

// Set PROFKEEPER_TEST_PG_DSN to run against a live server.
func openTest(t *testing.T) *Book {
	t.Helper()
	dsn := os.Getenv("PROFKEEPER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PROFKEEPER_TEST_PG_DSN not set")
	}
	b, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestTab_Conformance(t *testing.T) {
	b := openTest(t)
	tabulartest.Run(t, func(t *testing.T) tabular.Store {
		name := "test_" + idgen.UUIDv7()()
		t.Cleanup(func() {
			b.Pool.Exec(context.Background(), `DELETE FROM profkeeper_rows WHERE tab = $1`, name)
			b.Pool.Exec(context.Background(), `DELETE FROM profkeeper_tabs WHERE name = $1`, name)
		})
		s, err := b.Tab(context.Background(), name, []string{"ID"})
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}
