package labels

import (
	"context"
	"testing"

	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	tab := tabular.NewMemoryBook().Open("Tags", Header)
	for _, row := range [][]string{
		{"Sara21", "vip"},
		{"ali", ""},
		{"short"},
		{"sara21 ", "watch"},
	} {
		tab.Append(ctx, row)
	}
	set, err := Load(ctx, tab)
	if err != nil {
		t.Fatal(err)
	}
	if got := set.For("SARA21"); got != "watch" {
		t.Fatalf("For(SARA21) = %q", got)
	}
	if got := set.For("ali"); got != "" {
		t.Fatalf("blank label kept: %q", got)
	}
	var empty Set
	if empty.For("x") != "" {
		t.Fatal("nil set lookup")
	}
}
