package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/archivist/internal/chunker"
	"github.com/ent0n29/archivist/internal/index"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCalculatorTool()); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	tool, err := r.Get("calculator")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if tool.Permission != "compute" {
		t.Fatalf("permission = %q", tool.Permission)
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistryValidateArgs(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCalculatorTool()); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	if err := r.ValidateArgs("calculator", Args{"expression": "1+1"}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}

	err := r.ValidateArgs("calculator", Args{"formula": "1+1"})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("err = %v, want ErrInvalidArguments", err)
	}

	err = r.ValidateArgs("calculator", Args{"expression": 42})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("err = %v, want ErrInvalidArguments for wrong type", err)
	}
}

func TestRegistryDescribeListsTools(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCalculatorTool()); err != nil {
		t.Fatalf("Register error = %v", err)
	}
	if err := r.Register(NewSearchTool(index.NewMemoryStore())); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	desc := r.Describe()
	if !strings.Contains(desc, "calculator:") || !strings.Contains(desc, "search_docs:") {
		t.Fatalf("Describe missing tools:\n%s", desc)
	}
	if got := r.Names(); len(got) != 2 || got[0] != "calculator" || got[1] != "search_docs" {
		t.Fatalf("Names() = %v", got)
	}
}

func TestCalculatorEvaluation(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"2+2", "4"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"10 / 4", "2.5"},
		{"10 % 3", "1"},
		{"2 ^ 10", "1024"},
		{"-3 + 5", "2"},
		{"2 ^ 3 ^ 2", "512"},
	}
	tool := NewCalculatorTool()
	for _, tc := range cases {
		got, err := tool.Run(context.Background(), Args{"expression": tc.expr})
		if err != nil {
			t.Fatalf("calculator(%q) error = %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("calculator(%q) = %q, want %q", tc.expr, got, tc.want)
		}
	}
}

func TestCalculatorRejectsBadInput(t *testing.T) {
	tool := NewCalculatorTool()
	for _, expr := range []string{"", "1/0", "2+", "hello", "(1+2"} {
		_, err := tool.Run(context.Background(), Args{"expression": expr})
		if !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("calculator(%q) err = %v, want ErrInvalidArguments", expr, err)
		}
	}
}

func TestSearchToolFormatsPassages(t *testing.T) {
	store := index.NewMemoryStore()
	err := store.AddChunks(context.Background(), "guide.md", []chunker.Chunk{{
		Content:  "Set DATABASE_URL before starting.",
		Metadata: chunker.Metadata{SourceFile: "guide.md", Breadcrumb: "Guide > Configure"},
	}})
	if err != nil {
		t.Fatalf("AddChunks error = %v", err)
	}

	tool := NewSearchTool(store)
	out, err := tool.Run(context.Background(), Args{"query": "configure database"})
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if !strings.Contains(out, "guide.md > Guide > Configure") {
		t.Fatalf("output missing source breadcrumb:\n%s", out)
	}
}

func TestSearchToolNoResults(t *testing.T) {
	tool := NewSearchTool(index.NewMemoryStore())
	out, err := tool.Run(context.Background(), Args{"query": "anything"})
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if !strings.Contains(out, "No matching passages") {
		t.Fatalf("unexpected output: %q", out)
	}
}
