// Package automata reconstructs per-allocation-site typestate automata from
// engine events: interned hidden-class shapes and code versions, states,
// reason-annotated transitions, and the shortest-path tree each machine
// maintains for path queries.
package automata

import (
	"fmt"

	"typetrace/internal/report"
)

// Shape is an interned hidden-class descriptor. The id is the engine's map
// address; GC moves rebind it through the registry.
type Shape struct {
	ID int64
	// owner is the single state bound to this shape. A map id identifies a
	// hidden class in exactly one allocation family, so the slot is
	// overwritten rather than accumulated.
	owner *State
	// deps are function machines whose optimized code dies if this shape
	// mutates, together with how often each registered.
	deps []*StateMachine
}

// ToState returns the state that owns this shape, or nil.
func (s *Shape) ToState() *State { return s.owner }

// AddDep records a function machine whose code depends on this shape.
func (s *Shape) AddDep(fm *StateMachine) {
	s.deps = append(s.deps, fm)
}

// Deps returns the registered dependent function machines.
func (s *Shape) Deps() []*StateMachine { return s.deps }

// DeoptDeps reports every function machine holding code specialized on this
// shape, then clears the list. tp names the transition that mutated the
// shape; it may be nil at shutdown flush.
func (s *Shape) DeoptDeps(tp *TransPacket, out *report.Reporter) {
	if len(s.deps) == 0 {
		return
	}
	cause := "log drained"
	if tp != nil {
		cause = tp.Describe()
	}

	var order []*StateMachine
	counts := make(map[*StateMachine]int)
	for _, fm := range s.deps {
		if counts[fm] == 0 {
			order = append(order, fm)
		}
		counts[fm]++
	}

	out.Reportf(report.TagForced, "Forced to deoptimize: map %x changed by %s", s.ID, cause)
	for _, fm := range order {
		out.Printf("\t%s x%d\n", fm.String(), counts[fm])
	}
	s.deps = nil
}

// Code is an interned compiled-code descriptor.
type Code struct {
	ID int64
}

// Registry interns shapes and codes by engine id and rewrites identities
// across GC moves. One registry exists per analyzer run.
type Registry struct {
	shapes map[int64]*Shape
	codes  map[int64]*Code

	// NullShape and NullCode (id -1) pad states before a real descriptor is
	// attached; every machine's start state carries NullShape, and a
	// function machine's start state carries NullCode as well.
	NullShape *Shape
	NullCode  *Code
}

// NewRegistry returns an empty registry with the id -1 sentinels installed.
func NewRegistry() *Registry {
	r := &Registry{
		shapes:    make(map[int64]*Shape),
		codes:     make(map[int64]*Code),
		NullShape: &Shape{ID: -1},
		NullCode:  &Code{ID: -1},
	}
	return r
}

// Shape returns the descriptor for id, interning it on first mention.
// id -1 resolves to the null sentinel.
func (r *Registry) Shape(id int64) *Shape {
	if id == -1 {
		return r.NullShape
	}
	s, ok := r.shapes[id]
	if !ok {
		s = &Shape{ID: id}
		r.shapes[id] = s
	}
	return s
}

// LookupShape returns the descriptor for id without interning, or nil.
func (r *Registry) LookupShape(id int64) *Shape {
	return r.shapes[id]
}

// Code returns the descriptor for id, interning it on first mention.
func (r *Registry) Code(id int64) *Code {
	if id == -1 {
		return r.NullCode
	}
	c, ok := r.codes[id]
	if !ok {
		c = &Code{ID: id}
		r.codes[id] = c
	}
	return c
}

// RewriteShape rebinds the descriptor at old under new and erases old.
// No-op when old was never interned.
func (r *Registry) RewriteShape(old, new int64) bool {
	s, ok := r.shapes[old]
	if !ok {
		return false
	}
	delete(r.shapes, old)
	s.ID = new
	r.shapes[new] = s
	return true
}

// RewriteCode rebinds the descriptor at old under new and erases old.
func (r *Registry) RewriteCode(old, new int64) bool {
	c, ok := r.codes[old]
	if !ok {
		return false
	}
	delete(r.codes, old)
	c.ID = new
	r.codes[new] = c
	return true
}

// ShapeCount reports how many real shapes are interned.
func (r *Registry) ShapeCount() int { return len(r.shapes) }

// String renders a shape id the way reasons and reports do.
func (s *Shape) String() string { return fmt.Sprintf("%x", s.ID) }
