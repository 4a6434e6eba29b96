package automata

import "fmt"

// StateKind discriminates the two vertex variants.
type StateKind int

const (
	SObject StateKind = iota
	SFunction
)

// unreachableDepth marks a state not yet connected to the start.
const unreachableDepth = 1 << 30

// stateKey is the structural identity a machine interns states by. Object
// states leave code nil.
type stateKey struct {
	shape *Shape
	code  *Code
}

// State is one vertex of a machine: a hidden-class shape, plus a code version
// for functions. Out holds normal edges, Summary the boilerplate-clone edges.
type State struct {
	Kind    StateKind
	ID      int
	Shape   *Shape
	Code    *Code
	Machine *StateMachine

	Out     map[*State]*Transition
	Summary map[*State]*Transition

	// ParentLink and Depth form the shortest-path tree rooted at the
	// machine's start. Depth is unreachableDepth until an edge connects us.
	ParentLink *Transition
	Depth      int
}

func newState(kind StateKind, id int, k stateKey, m *StateMachine) *State {
	return &State{
		Kind:    kind,
		ID:      id,
		Shape:   k.shape,
		Code:    k.code,
		Machine: m,
		Out:     make(map[*State]*Transition),
		Summary: make(map[*State]*Transition),
		Depth:   unreachableDepth,
	}
}

func (s *State) key() stateKey { return stateKey{shape: s.Shape, code: s.Code} }

// String renders the state for reports and graph labels.
func (s *State) String() string {
	if s.Kind == SFunction {
		return fmt.Sprintf("%s|%s", s.Code, s.Shape)
	}
	return s.Shape.String()
}

// EdgeTo returns the normal out-edge to target, or nil.
func (s *State) EdgeTo(target *State) *Transition { return s.Out[target] }

// String renders a code id the way shape ids render.
func (c *Code) String() string { return fmt.Sprintf("%x", c.ID) }
