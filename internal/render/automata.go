package render

import (
	"fmt"
	"sort"
	"strings"

	"typetrace/internal/automata"
)

// Filter selects which machines are worth drawing. Machines that never
// misbehaved and never grew past MinSize are noise.
type Filter struct {
	ObjectsOnly   bool
	FunctionsOnly bool
	Sig           string
	MinSize       int
}

// Keep reports whether m passes the filter. Function machines must have been
// optimized or blamed for a deopt; object machines must be blamed, or have
// allocated more than once and grown to MinSize.
func (f Filter) Keep(m *automata.StateMachine) bool {
	if f.Sig != "" && !strings.Contains(m.String(), f.Sig) {
		return false
	}
	if f.ObjectsOnly && m.Kind == automata.MFunction {
		return false
	}
	if f.FunctionsOnly && m.Kind != automata.MFunction {
		return false
	}
	if m.Kind == automata.MFunction {
		return m.BeenOptimized || m.CauseDeopt
	}
	if m.CauseDeopt {
		return true
	}
	return m.CountInstances() > 1 && m.Size() >= f.MinSize
}

// AutomataDOT renders the kept machines as one DOT digraph, one cluster per
// machine. Shortest-path-tree edges are solid, cross edges dotted, summary
// edges dashed and labelled with the boilerplate they fold away.
func AutomataDOT(machines []*automata.StateMachine, f Filter, title string) string {
	var b strings.Builder
	b.WriteString("digraph automata {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  compound=true;\n")
	b.WriteString("  node [shape=egg, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9];\n")
	b.WriteString("  edge [fontsize=8, arrowsize=0.5, arrowhead=vee];\n")
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font point-size=\"10\">%s</font>>;\n", dotEscape(title))
	}
	b.WriteByte('\n')

	for _, m := range machines {
		if !f.Keep(m) {
			continue
		}
		machineDOT(&b, m)
	}

	b.WriteString("}\n")
	return b.String()
}

func machineDOT(b *strings.Builder, m *automata.StateMachine) {
	fmt.Fprintf(b, "  subgraph cluster_m%d {\n", m.ID)
	fmt.Fprintf(b, "    label=<<font point-size=\"9\">%s</font>>;\n", dotEscape(m.String()))
	fmt.Fprintf(b, "    style=dotted; penwidth=0.3;\n")

	for _, s := range m.All {
		id := stateID(m, s)
		if s == m.Start {
			fmt.Fprintf(b, "    %s [label=%q, shape=doublecircle];\n", id, truncLabel(s.String(), 40))
			continue
		}
		fmt.Fprintf(b, "    %s [label=%q];\n", id, truncLabel(s.String(), 40))
	}

	for _, s := range m.All {
		for _, t := range sortedEdges(s.Out) {
			style := "dotted"
			if t.Target.ParentLink == t {
				style = "solid"
			}
			fmt.Fprintf(b, "    %s -> %s [label=%q, style=%s];\n",
				stateID(m, s), stateID(m, t.Target), truncLabel(t.MergeReasons(), 60), style)
		}
		for _, t := range sortedEdges(s.Summary) {
			label := t.Boilerplate.String() + "; " + t.MergeReasons()
			fmt.Fprintf(b, "    %s -> %s [label=%q, style=dashed];\n",
				stateID(m, s), stateID(m, t.Target), truncLabel(label, 60))
		}
	}
	fmt.Fprintf(b, "  }\n")
}

func stateID(m *automata.StateMachine, s *automata.State) string {
	return fmt.Sprintf("s%d_%d", m.ID, s.ID)
}

// sortedEdges orders an edge map by target state id for stable output.
func sortedEdges(edges map[*automata.State]*automata.Transition) []*automata.Transition {
	out := make([]*automata.Transition, 0, len(edges))
	for _, t := range edges {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target.ID < out[j].Target.ID })
	return out
}
