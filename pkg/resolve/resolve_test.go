package resolve

import (
	"context"
	"reflect"
	"testing"

	"github.com/depforge/depforge/pkg/source"
	"github.com/depforge/depforge/pkg/spec"
)

func meta(name, version string, deps ...string) source.Metadata {
	return source.Metadata{Name: name, Version: version, Dependencies: deps}
}

func newResolver(srcs ...source.Source) *Resolver {
	return New(NewCatalog(srcs, nil, nil))
}

func mustResolve(t *testing.T, r *Resolver, raw ...string) *Result {
	t.Helper()
	specs := make([]spec.Spec, len(raw))
	for i, s := range raw {
		specs[i] = spec.MustParse(s)
	}
	res, err := r.Resolve(context.Background(), specs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res
}

func TestResolveGreatestVersionWins(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("alpha", "1.0.0", "beta>=1.0.0"), nil)
	src.Add(meta("beta", "1.0.0"), nil)
	src.Add(meta("beta", "1.2.0"), nil)
	src.Add(meta("beta", "0.9.0"), nil)

	res := mustResolve(t, newResolver(src), "alpha")
	if len(res.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", res.Conflicts)
	}
	if want := []string{"beta", "alpha"}; !reflect.DeepEqual(res.Order, want) {
		t.Fatalf("order = %v, want %v", res.Order, want)
	}
	if v := res.Resolved["beta"].Version; v != "1.2.0" {
		t.Errorf("beta resolved to %s, want 1.2.0", v)
	}
	if s := res.SourceOf["beta"]; s != "main" {
		t.Errorf("beta source = %s, want main", s)
	}
}

func TestResolveDiamond(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("top", "1.0.0", "left", "right"), nil)
	src.Add(meta("left", "1.0.0", "base>=1.0.0"), nil)
	src.Add(meta("right", "1.0.0", "base>=1.0.0"), nil)
	src.Add(meta("base", "1.0.0"), nil)
	src.Add(meta("base", "1.5.0"), nil)

	res := mustResolve(t, newResolver(src), "top")
	if len(res.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", res.Conflicts)
	}
	if len(res.Order) != 4 {
		t.Fatalf("order = %v, want 4 entries", res.Order)
	}

	pos := make(map[string]int, len(res.Order))
	for i, name := range res.Order {
		pos[name] = i
	}
	for _, pair := range [][2]string{{"base", "left"}, {"base", "right"}, {"left", "top"}, {"right", "top"}} {
		if pos[pair[0]] > pos[pair[1]] {
			t.Errorf("%s must precede %s in %v", pair[0], pair[1], res.Order)
		}
	}
	if res.Resolved["base"].Version != "1.5.0" {
		t.Errorf("base resolved to %s, want 1.5.0", res.Resolved["base"].Version)
	}
}

func TestResolveCycle(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("a", "1.0.0", "b"), nil)
	src.Add(meta("b", "1.0.0", "c"), nil)
	src.Add(meta("c", "1.0.0", "a"), nil)

	res := mustResolve(t, newResolver(src), "a")
	if len(res.Conflicts) == 0 {
		t.Fatal("expected circular-dependency conflict")
	}
	if res.Conflicts[0].Kind != ConflictCircular {
		t.Errorf("conflict kind = %v, want %v", res.Conflicts[0].Kind, ConflictCircular)
	}
	// Everything in the cycle is tainted; nothing is planned.
	if len(res.Order) != 0 {
		t.Errorf("order = %v, want empty", res.Order)
	}
}

func TestResolveVersionConflictTaintsDependents(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("xray", "1.0.0", "zulu==1.0.0"), nil)
	src.Add(meta("yankee", "1.0.0", "zulu==2.0.0"), nil)
	src.Add(meta("zulu", "1.0.0"), nil)
	src.Add(meta("zulu", "2.0.0"), nil)

	res := mustResolve(t, newResolver(src), "xray", "yankee")
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %v, want exactly one", res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.Kind != ConflictVersion || c.Package != "zulu" {
		t.Errorf("conflict = %v, want version-conflict on zulu", c)
	}
	// The conflict on zulu must exclude both dependents from the plan.
	if len(res.Order) != 0 {
		t.Errorf("order = %v, want empty", res.Order)
	}
}

func TestResolveConflictLeavesUnrelatedBranch(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("broken", "1.0.0", "missing>=9.0.0"), nil)
	src.Add(meta("fine", "1.0.0"), nil)

	res := mustResolve(t, newResolver(src), "broken", "fine")
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %v, want exactly one", res.Conflicts)
	}
	if res.Conflicts[0].Kind != ConflictUnsatisfiable {
		t.Errorf("conflict kind = %v, want %v", res.Conflicts[0].Kind, ConflictUnsatisfiable)
	}
	if want := []string{"fine"}; !reflect.DeepEqual(res.Order, want) {
		t.Errorf("order = %v, want %v", res.Order, want)
	}
}

func TestResolveUnsatisfiableConstraint(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("pinned", "1.0.0"), nil)

	res := mustResolve(t, newResolver(src), "pinned>=2.0.0")
	if len(res.Conflicts) != 1 || res.Conflicts[0].Kind != ConflictUnsatisfiable {
		t.Fatalf("conflicts = %v, want one unsatisfiable", res.Conflicts)
	}
	if len(res.Order) != 0 {
		t.Errorf("order = %v, want empty", res.Order)
	}
}

func TestResolveSourcePriority(t *testing.T) {
	primary := source.NewMemorySource("primary", 1, true)
	mirror := source.NewMemorySource("mirror", 2, true)

	// The mirror carries a greater version, but the primary has a match,
	// so the primary wins.
	primary.Add(meta("tool", "1.0.0"), nil)
	mirror.Add(meta("tool", "3.0.0"), nil)

	// Only the mirror can satisfy this constraint.
	primary.Add(meta("lib", "1.0.0"), nil)
	mirror.Add(meta("lib", "2.0.0"), nil)

	res := mustResolve(t, newResolver(mirror, primary), "tool", "lib>=2.0.0")
	if len(res.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", res.Conflicts)
	}
	if v := res.Resolved["tool"].Version; v != "1.0.0" {
		t.Errorf("tool resolved to %s, want 1.0.0 from primary", v)
	}
	if s := res.SourceOf["tool"]; s != "primary" {
		t.Errorf("tool source = %s, want primary", s)
	}
	if s := res.SourceOf["lib"]; s != "mirror" {
		t.Errorf("lib source = %s, want mirror", s)
	}
}

func TestResolveSharedDependencyPlannedOnce(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("one", "1.0.0", "shared"), nil)
	src.Add(meta("two", "1.0.0", "shared"), nil)
	src.Add(meta("shared", "1.0.0"), nil)

	res := mustResolve(t, newResolver(src), "one", "two")
	seen := 0
	for _, name := range res.Order {
		if name == "shared" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("shared appears %d times in %v, want once", seen, res.Order)
	}
}

func TestResolveDeterministic(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("app", "1.0.0", "zlib", "ncurses", "openssl"), nil)
	src.Add(meta("zlib", "1.0.0"), nil)
	src.Add(meta("ncurses", "1.0.0"), nil)
	src.Add(meta("openssl", "1.0.0", "zlib"), nil)

	r := newResolver(src)
	first := mustResolve(t, r, "app")
	for i := 0; i < 5; i++ {
		again := mustResolve(t, r, "app")
		if !reflect.DeepEqual(again.Order, first.Order) {
			t.Fatalf("order changed between runs: %v vs %v", again.Order, first.Order)
		}
	}
}

func TestResolveLexicographicFlagged(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("legacy", "build-17"), nil)
	src.Add(meta("legacy", "build-23"), nil)

	res := mustResolve(t, newResolver(src), "legacy>=build-20")
	if len(res.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", res.Conflicts)
	}
	if res.Resolved["legacy"].Version != "build-23" {
		t.Errorf("legacy resolved to %s, want build-23", res.Resolved["legacy"].Version)
	}
	if want := []string{"legacy"}; !reflect.DeepEqual(res.LexicographicMatches, want) {
		t.Errorf("lexicographic matches = %v, want %v", res.LexicographicMatches, want)
	}
}

func TestResolveInvalidDependencySpec(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	src.Add(meta("bad", "1.0.0", ">=1.0.0"), nil)

	res := mustResolve(t, newResolver(src), "bad")
	if len(res.Conflicts) != 1 || res.Conflicts[0].Kind != ConflictParse {
		t.Fatalf("conflicts = %v, want one parse conflict", res.Conflicts)
	}
	if len(res.Order) != 0 {
		t.Errorf("order = %v, want empty", res.Order)
	}
}
