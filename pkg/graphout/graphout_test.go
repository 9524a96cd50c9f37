package graphout

import (
	"strings"
	"testing"

	"github.com/depforge/depforge/pkg/resolve"
	"github.com/depforge/depforge/pkg/source"
)

func testResult() *resolve.Result {
	return &resolve.Result{
		Order: []string{"base", "app"},
		Resolved: map[string]*source.Metadata{
			"base": {Name: "base", Version: "1.0.0"},
			"app":  {Name: "app", Version: "2.0.0", Dependencies: []string{"base>=1.0.0"}},
		},
		SourceOf: map[string]string{"base": "main", "app": "main"},
		Conflicts: []resolve.Conflict{
			{Kind: resolve.ConflictUnsatisfiable, Package: "ghost", Detail: "not found"},
		},
	}
}

func TestToDOTIncludesNodesAndEdges(t *testing.T) {
	dot := ToDOT(testResult(), Options{})
	if !strings.HasPrefix(dot, "digraph") {
		t.Fatalf("output is not DOT: %q", dot)
	}
	for _, want := range []string{`"base"`, `"app"`, `"base" -> "app";`} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %s:\n%s", want, dot)
		}
	}
}

func TestToDOTMarksConflicts(t *testing.T) {
	dot := ToDOT(testResult(), Options{Detailed: true})
	if !strings.Contains(dot, `"ghost"`) {
		t.Fatalf("conflicted package missing:\n%s", dot)
	}
	if !strings.Contains(dot, "dashed") || !strings.Contains(dot, "color=red") {
		t.Errorf("conflict styling missing:\n%s", dot)
	}
	if !strings.Contains(dot, "2.0.0") {
		t.Errorf("detailed label missing version:\n%s", dot)
	}
}

func TestToDOTDeterministic(t *testing.T) {
	first := ToDOT(testResult(), Options{Detailed: true})
	for i := 0; i < 3; i++ {
		if again := ToDOT(testResult(), Options{Detailed: true}); again != first {
			t.Fatal("DOT output changed between runs")
		}
	}
}
