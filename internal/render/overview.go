package render

import (
	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"typetrace/internal/automata"
)

// BuildOverview constructs a lattice.Graph over the kept machines: an edge
// from each allocating context to the machine it allocates, and from each
// blamed machine to the functions its deopts hit.
func BuildOverview(machines []*automata.StateMachine, f Filter) *lattice.Graph {
	g := &lattice.Graph{}
	for _, m := range machines {
		if !f.Keep(m) {
			continue
		}
		g.Nodes = append(g.Nodes, m.String())
		for _, t := range sortedEdges(m.Start.Out) {
			overviewEdges(g, m, t)
		}
		for _, t := range sortedEdges(m.Start.Summary) {
			overviewEdges(g, m, t)
		}
		for _, fn := range m.Deopted {
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: m.String(),
				Callee: fn.String(),
			})
		}
	}
	g.Dedup()
	return g
}

func overviewEdges(g *lattice.Graph, m *automata.StateMachine, t *automata.Transition) {
	for _, tp := range t.Packets() {
		if len(tp.Contexts) == 0 {
			continue
		}
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: tp.Contexts[0].String(),
			Callee: m.String(),
		})
	}
}

// OverviewDOT renders the overview graph as DOT.
func OverviewDOT(g *lattice.Graph, title string) string {
	return latrender.DOT(g, title)
}
