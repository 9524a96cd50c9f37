// Package resolve builds the transitive dependency graph for a set of
// requested packages, detects cycles and version conflicts, and produces
// a topologically ordered install plan.
//
// Resolution is a single-threaded depth-first walk: the graph has
// ordering dependencies that are unsafe under naive parallelism.
// Conflicts never abort unrelated branches — the resolver returns partial
// results and the caller decides whether to proceed or abort.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/depforge/depforge/pkg/source"
	"github.com/depforge/depforge/pkg/spec"
)

// ConflictKind classifies a resolution conflict.
type ConflictKind int

// The closed set of conflict kinds.
const (
	// ConflictParse: a dependency spec string could not be parsed.
	ConflictParse ConflictKind = iota
	// ConflictVersion: two branches require incompatible versions.
	ConflictVersion
	// ConflictCircular: the package participates in a dependency cycle.
	ConflictCircular
	// ConflictUnsatisfiable: no available version satisfies the constraint.
	ConflictUnsatisfiable
	// ConflictFetch: source lookup failed while resolving the package.
	ConflictFetch
)

// String returns the conflict kind's stable identifier.
func (k ConflictKind) String() string {
	switch k {
	case ConflictParse:
		return "parse"
	case ConflictVersion:
		return "version-conflict"
	case ConflictCircular:
		return "circular-dependency"
	case ConflictUnsatisfiable:
		return "unsatisfiable"
	case ConflictFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// Conflict records one resolution failure. Conflicts taint the failing
// package and everything that depends on it, but leave unrelated
// branches untouched.
type Conflict struct {
	Kind    ConflictKind // What went wrong
	Package string       // The package the conflict is attributed to
	Detail  string       // Human-readable explanation
}

// String formats the conflict for display and API responses.
func (c Conflict) String() string {
	return fmt.Sprintf("%s: %s: %s", c.Kind, c.Package, c.Detail)
}

// Result is the outcome of a resolution request.
type Result struct {
	// Order lists package names in install order: every name's
	// dependencies precede it, and no name repeats.
	Order []string

	// Resolved maps each cleanly resolved name to its chosen metadata.
	// Conflict-tainted packages are excluded.
	Resolved map[string]*source.Metadata

	// SourceOf maps each resolved name to the source that provided it.
	SourceOf map[string]string

	// Conflicts collects every resolution failure. A non-empty list does
	// not mean Order is empty: unrelated branches still resolve.
	Conflicts []Conflict

	// LexicographicMatches lists packages whose constraint check fell
	// back to lexicographic comparison, flagged for explainability.
	LexicographicMatches []string
}

// Resolver resolves package specs into ordered install plans.
type Resolver struct {
	catalog *Catalog
}

// New creates a Resolver over the given catalog.
func New(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// frame is one entry of the explicit walk stack. The exit phase pops the
// package from the visiting set once its subtree is done, mirroring the
// unwind of a recursive walk without unbounded call-stack growth.
type frame struct {
	s    spec.Spec
	exit bool
}

// Resolve walks the dependency graph rooted at the given specs.
// It returns an error only for context cancellation; every per-package
// failure is recorded as a Conflict instead.
func (r *Resolver) Resolve(ctx context.Context, roots []spec.Spec) (*Result, error) {
	w := &walker{
		catalog:  r.catalog,
		resolved: make(map[string]*source.Metadata),
		sourceOf: make(map[string]string),
		visiting: make(map[string]bool),
		edges:    make(map[string][]string),
		lexical:  make(map[string]bool),
	}

	// Roots are walked in input order; within one subtree dependencies
	// are walked in declaration order. Determinism beyond that comes
	// from sorted iteration in the topological sort.
	for _, root := range roots {
		if err := w.walk(ctx, root); err != nil {
			return nil, err
		}
	}

	order, residual := w.topoSort()
	for _, name := range residual {
		w.conflict(Conflict{
			Kind:    ConflictCircular,
			Package: name,
			Detail:  "residual cycle after resolution",
		})
	}

	res := &Result{
		Order:     order,
		Resolved:  make(map[string]*source.Metadata, len(order)),
		SourceOf:  make(map[string]string, len(order)),
		Conflicts: w.conflicts,
	}
	for _, name := range order {
		res.Resolved[name] = w.resolved[name]
		res.SourceOf[name] = w.sourceOf[name]
	}
	for name := range w.lexical {
		res.LexicographicMatches = append(res.LexicographicMatches, name)
	}
	sort.Strings(res.LexicographicMatches)
	return res, nil
}

type walker struct {
	catalog *Catalog

	resolved map[string]*source.Metadata
	sourceOf map[string]string
	visiting map[string]bool
	edges    map[string][]string // dependency -> dependents
	tainted  map[string]bool
	lexical  map[string]bool

	conflicts []Conflict
}

func (w *walker) conflict(c Conflict) {
	w.conflicts = append(w.conflicts, c)
	if w.tainted == nil {
		w.tainted = make(map[string]bool)
	}
	w.tainted[c.Package] = true
}

// walk resolves one root spec and its transitive dependencies with an
// explicit stack.
func (w *walker) walk(ctx context.Context, root spec.Spec) error {
	stack := []frame{{s: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.exit {
			delete(w.visiting, f.s.Name)
			continue
		}

		name := f.s.Name

		if w.visiting[name] {
			w.conflict(Conflict{
				Kind:    ConflictCircular,
				Package: name,
				Detail:  fmt.Sprintf("dependency cycle involving %s (path: %s)", name, strings.Join(w.path(), " -> ")),
			})
			continue
		}

		if chosen, ok := w.resolved[name]; ok {
			// Already chosen on another branch: the new constraint must
			// still be satisfied by that choice.
			m := f.s.Matches(chosen.Version)
			if m.Lexicographic {
				w.lexical[name] = true
			}
			if !m.Satisfied {
				w.conflict(Conflict{
					Kind:    ConflictVersion,
					Package: name,
					Detail:  fmt.Sprintf("already resolved to %s which does not satisfy %s", chosen.Version, f.s),
				})
			}
			continue
		}

		meta, srcName, ok := w.choose(ctx, f.s)
		if !ok {
			continue // conflict already recorded
		}

		w.resolved[name] = meta
		w.sourceOf[name] = srcName
		w.visiting[name] = true
		stack = append(stack, frame{s: f.s, exit: true})

		// Push dependencies in reverse so they are walked in
		// declaration order.
		for i := len(meta.Dependencies) - 1; i >= 0; i-- {
			raw := meta.Dependencies[i]
			dep, err := spec.Parse(raw)
			if err != nil {
				w.conflict(Conflict{
					Kind:    ConflictParse,
					Package: name,
					Detail:  fmt.Sprintf("invalid dependency spec %q", raw),
				})
				continue
			}
			w.edges[dep.Name] = append(w.edges[dep.Name], name)
			stack = append(stack, frame{s: dep})
		}
	}
	return nil
}

// path returns the names currently on the walk path, for cycle messages.
func (w *walker) path() []string {
	names := make([]string, 0, len(w.visiting))
	for name := range w.visiting {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// choose picks the version for a spec: the highest-priority source with a
// satisfying version wins, and within that source the greatest satisfying
// version wins.
func (w *walker) choose(ctx context.Context, s spec.Spec) (*source.Metadata, string, bool) {
	sawPackage := false
	var lookupErr error

	for _, src := range w.catalog.Sources() {
		versions, err := w.catalog.versions(ctx, src, s.Name)
		if err == source.ErrNotFound {
			continue
		}
		if err != nil {
			lookupErr = err
			continue
		}
		sawPackage = true

		best, ok := spec.MaxSatisfying(versions, s)
		if !ok {
			continue
		}
		if s.Matches(best).Lexicographic {
			w.lexical[s.Name] = true
		}

		meta, err := w.catalog.metadata(ctx, src, s.Name, best)
		if err != nil {
			w.conflict(Conflict{
				Kind:    ConflictFetch,
				Package: s.Name,
				Detail:  fmt.Sprintf("fetch metadata %s@%s from %s: %v", s.Name, best, src.Name(), err),
			})
			return nil, "", false
		}
		return meta, src.Name(), true
	}

	switch {
	case lookupErr != nil && !sawPackage:
		w.conflict(Conflict{
			Kind:    ConflictFetch,
			Package: s.Name,
			Detail:  fmt.Sprintf("source lookup failed: %v", lookupErr),
		})
	case sawPackage:
		w.conflict(Conflict{
			Kind:    ConflictUnsatisfiable,
			Package: s.Name,
			Detail:  fmt.Sprintf("no available version satisfies %s", s),
		})
	default:
		w.conflict(Conflict{
			Kind:    ConflictUnsatisfiable,
			Package: s.Name,
			Detail:  "package not found in any source",
		})
	}
	return nil, "", false
}

// topoSort orders the cleanly resolved packages so that every package
// follows all of its dependencies (Kahn's algorithm with a sorted ready
// set for determinism). Conflict taint propagates along dependency ->
// dependent edges first, so nothing that depends on a conflicted package
// is planned. The second return value lists residual cycle members — a
// defensive re-check; cycles should already have been caught during the
// walk.
func (w *walker) topoSort() (order []string, residual []string) {
	// Propagate taint to transitive dependents.
	queue := make([]string, 0, len(w.tainted))
	for name := range w.tainted {
		queue = append(queue, name)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dependent := range w.edges[name] {
			if !w.tainted[dependent] {
				if w.tainted == nil {
					w.tainted = make(map[string]bool)
				}
				w.tainted[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}

	// In-degree = number of (kept) dependencies of each kept package.
	indegree := make(map[string]int)
	for name := range w.resolved {
		if w.tainted[name] {
			continue
		}
		indegree[name] = 0
	}
	for dep, dependents := range w.edges {
		if _, kept := indegree[dep]; !kept {
			continue
		}
		for _, dependent := range dependents {
			if _, kept := indegree[dependent]; kept {
				indegree[dependent]++
			}
		}
	}

	ready := make([]string, 0, len(indegree))
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unlocked []string
		for _, dependent := range w.edges[name] {
			if _, kept := indegree[dependent]; !kept {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}

	for name := range indegree {
		if !contains(order, name) {
			residual = append(residual, name)
		}
	}
	sort.Strings(residual)
	return order, residual
}

// mergeSorted merges two sorted string slices.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
