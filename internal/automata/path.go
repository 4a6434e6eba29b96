package automata

// ForwardSearchPath returns the tree edges leading from `from` down to `to`
// in forward order, found by walking `to` up its parent links. The distance
// is the edge count, or -1 when the walk never reaches `from`. Only tree
// edges are visible; cross edges do not count.
func ForwardSearchPath(from, to *State) ([]*Transition, int) {
	var edges []*Transition
	for cur := to; cur != from; {
		t := cur.ParentLink
		if t == nil {
			return nil, -1
		}
		edges = append(edges, t)
		cur = t.Source
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return edges, len(edges)
}

// BackwardSearchPath walks `from` up its parent links until `to`, returning
// the edges in walk order (most recent move first), or -1 on disconnect.
func BackwardSearchPath(from, to *State) ([]*Transition, int) {
	var edges []*Transition
	for cur := from; cur != to; {
		t := cur.ParentLink
		if t == nil {
			return nil, -1
		}
		edges = append(edges, t)
		cur = t.Source
	}
	return edges, len(edges)
}
