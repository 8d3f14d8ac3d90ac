// Package tabulartest holds the behaviour every tabular.Store backend must
// share. Backend tests call Run with a constructor for an empty tab.
package tabulartest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// Run exercises s, which must start empty.
func Run(t *testing.T, open func(t *testing.T) tabular.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("append_and_read", func(t *testing.T) {
		s := open(t)
		for i, want := range []int{0, 1, 2} {
			pos, err := s.Append(ctx, []string{string(rune('a' + i)), "x"})
			if err != nil {
				t.Fatalf("append: %v", err)
			}
			if pos != want {
				t.Fatalf("append pos = %d, want %d", pos, want)
			}
		}
		expect(t, s, [][]string{{"a", "x"}, {"b", "x"}, {"c", "x"}})
	})

	t.Run("insert_shifts_down", func(t *testing.T) {
		s := open(t)
		mustAppend(t, s, "a", "b")
		if err := s.InsertAt(ctx, 0, []string{"z"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := s.InsertAt(ctx, 3, []string{"end"}); err != nil {
			t.Fatalf("insert at end: %v", err)
		}
		expect(t, s, [][]string{{"z"}, {"a"}, {"b"}, {"end"}})
	})

	t.Run("update_range", func(t *testing.T) {
		s := open(t)
		mustAppend(t, s, "a", "b", "c")
		if err := s.UpdateRange(ctx, 1, [][]string{{"B", "1"}, {"C", "2"}}); err != nil {
			t.Fatalf("update: %v", err)
		}
		expect(t, s, [][]string{{"a"}, {"B", "1"}, {"C", "2"}})
	})

	t.Run("delete_shifts_up", func(t *testing.T) {
		s := open(t)
		mustAppend(t, s, "a", "b", "c")
		if err := s.DeleteAt(ctx, 1); err != nil {
			t.Fatalf("delete: %v", err)
		}
		expect(t, s, [][]string{{"a"}, {"c"}})
		pos, err := s.Append(ctx, []string{"d"})
		if err != nil || pos != 2 {
			t.Fatalf("append after delete = %d, %v", pos, err)
		}
	})

	t.Run("replace_all", func(t *testing.T) {
		s := open(t)
		mustAppend(t, s, "a", "b", "c")
		if err := s.ReplaceAll(ctx, [][]string{{"y"}, {"x"}}); err != nil {
			t.Fatalf("replace: %v", err)
		}
		expect(t, s, [][]string{{"y"}, {"x"}})
		if err := s.ReplaceAll(ctx, nil); err != nil {
			t.Fatalf("replace empty: %v", err)
		}
		expect(t, s, nil)
	})

	t.Run("out_of_range", func(t *testing.T) {
		s := open(t)
		mustAppend(t, s, "a")
		if err := s.UpdateRange(ctx, 1, [][]string{{"x"}}); !errors.Is(err, tabular.ErrOutOfRange) {
			t.Fatalf("update past end: %v", err)
		}
		if err := s.DeleteAt(ctx, 5); !errors.Is(err, tabular.ErrOutOfRange) {
			t.Fatalf("delete past end: %v", err)
		}
		if err := s.InsertAt(ctx, -1, []string{"x"}); !errors.Is(err, tabular.ErrOutOfRange) {
			t.Fatalf("insert negative: %v", err)
		}
	})
}

func mustAppend(t *testing.T, s tabular.Store, vals ...string) {
	t.Helper()
	for _, v := range vals {
		if _, err := s.Append(context.Background(), []string{v}); err != nil {
			t.Fatalf("append %q: %v", v, err)
		}
	}
}

func expect(t *testing.T, s tabular.Store, want [][]string) {
	t.Helper()
	got, err := s.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}
