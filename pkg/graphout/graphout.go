// Package graphout exports resolution results as Graphviz diagrams.
//
// The DOT form is stable text suitable for diffing and piping into other
// tools; SVG rendering goes through the embedded Graphviz engine and
// needs no external binaries.
package graphout

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-graphviz"

	"github.com/depforge/depforge/pkg/resolve"
	"github.com/depforge/depforge/pkg/spec"
)

// Options configures DOT generation.
type Options struct {
	// Detailed includes version and source in node labels.
	Detailed bool
}

// ToDOT converts a resolution result to Graphviz DOT. Resolved packages
// are drawn as solid boxes with edges from dependency to dependent;
// conflicted packages appear as dashed red nodes so a rendering makes
// the failure visible rather than dropping it.
func ToDOT(res *resolve.Result, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, name := range res.Order {
		meta := res.Resolved[name]
		label := name
		if opts.Detailed && meta != nil {
			label = fmt.Sprintf("%s\n%s (%s)", name, meta.Version, res.SourceOf[name])
		}
		fmt.Fprintf(&buf, "  %q [label=%q];\n", name, label)
	}

	conflicted := make(map[string]bool)
	for _, c := range res.Conflicts {
		if conflicted[c.Package] {
			continue
		}
		conflicted[c.Package] = true
		label := c.Package
		if opts.Detailed {
			label = fmt.Sprintf("%s\n%s", c.Package, c.Kind)
		}
		fmt.Fprintf(&buf, "  %q [label=%q, style=\"rounded,filled,dashed\", color=red, fontcolor=red];\n", c.Package, label)
	}

	buf.WriteString("\n")
	for _, edge := range edges(res) {
		fmt.Fprintf(&buf, "  %q -> %q;\n", edge[0], edge[1])
	}

	buf.WriteString("}\n")
	return buf.String()
}

// edges lists dependency -> dependent pairs among the drawn nodes,
// sorted for stable output.
func edges(res *resolve.Result) [][2]string {
	drawn := make(map[string]bool, len(res.Order))
	for _, name := range res.Order {
		drawn[name] = true
	}
	for _, c := range res.Conflicts {
		drawn[c.Package] = true
	}

	var out [][2]string
	seen := make(map[string]bool)
	for _, name := range res.Order {
		meta := res.Resolved[name]
		if meta == nil {
			continue
		}
		for _, raw := range meta.Dependencies {
			dep, err := spec.Parse(raw)
			if err != nil || !drawn[dep.Name] {
				continue
			}
			key := dep.Name + "->" + name
			if !seen[key] {
				seen[key] = true
				out = append(out, [2]string{dep.Name, name})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// RenderSVG renders a DOT graph to SVG.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
