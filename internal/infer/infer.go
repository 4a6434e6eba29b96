// Package infer explains failed map checks: it relates the failing object's
// current state to each shape the check site expected and turns the divergent
// evolution path into a labelled suggestion.
package infer

import (
	"strings"

	"typetrace/internal/automata"
	"typetrace/internal/report"
)

// DeoptPack is one failed map check queued for diagnosis: the failing
// instance, the shapes the inline cache expected, and the deoptimized
// function with its bailout site.
type DeoptPack struct {
	Failed   *automata.InstanceDescriptor
	Expected []*automata.Shape
	Fn       *automata.StateMachine
	Bailout  int
}

// Diagnose classifies the pack against every expected shape and emits the
// resulting advice through mon.Out.
func Diagnose(p *DeoptPack, mon *automata.Monitor) {
	for _, exp := range p.Expected {
		diagnoseShape(p, exp, mon)
	}
}

func diagnoseShape(p *DeoptPack, exp *automata.Shape, mon *automata.Monitor) {
	out := mon.Out
	m := p.Failed.Machine
	instS := p.Failed.State()
	expS := exp.ToState()

	if expS == nil {
		out.Reportf(report.TagDeopt, "%s: expected map %s never materialized", p.Fn, exp)
		return
	}
	if expS.Machine != m {
		heterogeneous(p, exp, expS, instS, mon)
		return
	}

	m.CauseDeopt = true
	m.Deopted = append(m.Deopted, p.Fn)
	p.Fn.CauseDeopt = true

	if path, d := automata.ForwardSearchPath(instS, expS); d > 0 {
		future(p, exp, path, mon)
		return
	}
	if path, d := automata.ForwardSearchPath(expS, instS); d > 0 {
		past(p, exp, path, mon)
		return
	}
	if lca, toExp, toInst := splitPoint(m, expS, instS); lca != nil {
		split(p, exp, toExp, toInst, mon)
		return
	}
	out.Reportf(report.TagDeopt, "%s: map %s and the failing object share no history in %s",
		p.Fn, exp, m)
}

// heterogeneous handles an expected shape that lives in a different machine.
// Two same-named machines mean two closures of one constructor source were
// used to allocate.
func heterogeneous(p *DeoptPack, exp *automata.Shape, expS, instS *automata.State, mon *automata.Monitor) {
	out := mon.Out
	m := p.Failed.Machine
	other := expS.Machine
	m.CauseDeopt = true
	other.CauseDeopt = true
	m.Deopted = append(m.Deopted, p.Fn)
	other.Deopted = append(other.Deopted, p.Fn)
	p.Fn.CauseDeopt = true

	if other.Name != "" && other.Name == m.Name {
		out.Reportf(report.TagUniCtors,
			"%s: constructor %s is instantiated more than once and its copies disagree on map %s, share one constructor",
			p.Fn, m.Name, exp)
		return
	}
	out.Reportf(report.TagDeopt, "%s: expected map %s was made by %s but the object comes from %s",
		p.Fn, exp, other, m)
	printTail(out, m, instS, mon.Limits.TailSteps)
	printTail(out, other, expS, mon.Limits.TailSteps)
}

// future: the expected shape lies ahead of the instance on the tree.
func future(p *DeoptPack, exp *automata.Shape, path []*automata.Transition, mon *automata.Monitor) {
	out := mon.Out
	allFields := true
	for _, e := range path {
		if e.ReasonBeginWith("+Fld") == nil {
			allFields = false
			break
		}
	}
	if allFields {
		out.Reportf(report.TagAdvFlds,
			"%s: object has not grown the %d fields map %s expects yet, hoist the field initializations",
			p.Fn, len(path), exp)
		printPath(out, path)
		return
	}
	out.Reportf(report.TagDeopt, "%s: object still %d steps short of map %s", p.Fn, len(path), exp)
	printPath(out, tail(path, mon.Limits.TailSteps))
}

// past: the instance once sat at the expected shape and moved on.
func past(p *DeoptPack, exp *automata.Shape, path []*automata.Transition, mon *automata.Monitor) {
	out := mon.Out
	for _, e := range path {
		if e.ReasonBeginWith("!Proto") != nil {
			out.Reportf(report.TagUseMixin,
				"%s: prototype changed after map %s, copy the methods in instead", p.Fn, exp)
			return
		}
	}
	if p.Failed.IsWatched && pathWentSlow(path) {
		out.Reportf(report.TagMovMap,
			"%s: object fell out of fast mode after map %s, rebuild it instead of mutating", p.Fn, exp)
		p.Failed.IsWatched = false
		return
	}
	out.Reportf(report.TagAdvFlds,
		"%s: object moved %d steps past map %s, initialize the extra fields up front", p.Fn, len(path), exp)
	printPath(out, tail(path, mon.Limits.TailSteps))
}

// pathWentSlow scans the path edges and the self-loops of the states they
// touch, where the storage mode changes sit.
func pathWentSlow(path []*automata.Transition) bool {
	slow, fast := false, false
	scan := func(t *automata.Transition) {
		if t == nil {
			return
		}
		if t.ReasonBeginWith("->Slow") != nil {
			slow = true
		}
		if t.ReasonBeginWith("->Fast") != nil {
			fast = true
		}
	}
	for _, e := range path {
		scan(e.Source.Out[e.Source])
		scan(e)
	}
	if n := len(path); n > 0 {
		t := path[n-1].Target
		scan(t.Out[t])
	}
	return slow && !fast
}

// splitPoint finds the deepest ancestor of expS that can also reach instS,
// walking expS's parent links start-ward.
func splitPoint(m *automata.StateMachine, expS, instS *automata.State) (*automata.State, []*automata.Transition, []*automata.Transition) {
	var toExp []*automata.Transition
	for cur := expS; ; {
		t := cur.ParentLink
		if t == nil {
			if cur != m.Start {
				return nil, nil, nil
			}
			if path, d := automata.ForwardSearchPath(cur, instS); d >= 0 {
				return cur, reversed(toExp), path
			}
			return nil, nil, nil
		}
		toExp = append(toExp, t)
		cur = t.Source
		if path, d := automata.ForwardSearchPath(cur, instS); d >= 0 {
			return cur, reversed(toExp), path
		}
	}
}

func reversed(edges []*automata.Transition) []*automata.Transition {
	out := make([]*automata.Transition, len(edges))
	for i, e := range edges {
		out[len(edges)-1-i] = e
	}
	return out
}

// field is one parsed field write on a path.
type field struct {
	name  string
	value string
	pos   int
}

func fieldsOf(path []*automata.Transition) []field {
	var out []field
	for pos, e := range path {
		for _, tp := range e.Packets() {
			i := strings.Index(tp.Reason, "Fld: ")
			if i < 0 || i == 0 {
				continue
			}
			switch tp.Reason[i-1] {
			case '+', '!':
			default:
				continue
			}
			body := tp.Reason[i+len("Fld: "):]
			name, value := body, "0"
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				name, value = body[:eq], body[eq+1:]
			}
			out = append(out, field{name: name, value: value, pos: pos})
		}
	}
	return out
}

// split: instance and expected shape diverged after a common ancestor.
// Closure-valued writes to the same name on both sides suggest per-instance
// closures; same name at different offsets suggests inconsistent field order.
func split(p *DeoptPack, exp *automata.Shape, toExp, toInst []*automata.Transition, mon *automata.Monitor) {
	out := mon.Out
	f1, f2 := fieldsOf(toExp), fieldsOf(toInst)

	var advF, ordF [][2]field
	for _, a := range f1 {
		for _, b := range f2 {
			if a.name != b.name {
				continue
			}
			if a.value != "0" && b.value != "0" {
				advF = append(advF, [2]field{a, b})
			}
			if a.pos != b.pos {
				ordF = append(ordF, [2]field{a, b})
			}
		}
	}

	if len(advF) > mon.Limits.MixinFields {
		out.Reportf(report.TagUseMixin,
			"%s: %d closure-valued fields diverge around map %s, move them to a shared mixin",
			p.Fn, len(advF), exp)
	} else if len(advF) > 0 {
		out.Reportf(report.TagAdvFlds,
			"%s: fields diverge into map %s and the object's map, hoist the shared initializations",
			p.Fn, exp)
		for _, pair := range advF {
			out.Printf("\t%s\n", pair[0].name)
		}
	}
	if len(ordF) > 0 {
		names := make([]string, 0, len(ordF))
		for _, pair := range ordF {
			names = append(names, pair[0].name)
		}
		out.Reportf(report.TagOrdFlds,
			"%s: fields {%s} are assigned in different orders on the two paths to map %s",
			p.Fn, strings.Join(names, ", "), exp)
	}
	if len(advF) == 0 && len(ordF) == 0 {
		out.Reportf(report.TagDeopt, "%s: paths diverge before map %s", p.Fn, exp)
		printPath(out, toExp)
		printPath(out, toInst)
	}
}

// tail keeps the last k edges of a forward path.
func tail(path []*automata.Transition, k int) []*automata.Transition {
	if len(path) > k {
		return path[len(path)-k:]
	}
	return path
}

// printTail dumps the last steps leading from m's start to st.
func printTail(out *report.Reporter, m *automata.StateMachine, st *automata.State, k int) {
	back, d := automata.BackwardSearchPath(st, m.Start)
	if d < 0 {
		return
	}
	out.Printf("\t%s:\n", m)
	printPath(out, tail(reversed(back), k))
}

func printPath(out *report.Reporter, path []*automata.Transition) {
	for _, e := range path {
		out.Printf("\t  %s -> %s: %s\n", e.Source, e.Target, e.MergeReasons())
	}
}
