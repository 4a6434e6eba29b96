package automata

import (
	"fmt"

	"typetrace/internal/config"
	"typetrace/internal/report"
)

// MachineKind discriminates the three automaton families.
type MachineKind int

const (
	MBoilerplate MachineKind = iota
	MObject
	MFunction
)

// Monitor is the per-run shared state every machine consults: tuning limits,
// the report sink, the armed map notifier, and the registry and sentinel
// machine the reconciliation path needs.
type Monitor struct {
	Analyze bool
	Limits  config.Limits
	Out     *report.Reporter
	Reg     *Registry

	// Notifier is the shape armed by a begin-deopt-on-map event; the next
	// evolution of a force_deopt instance fires its dependents.
	Notifier *Shape

	// Miss is the sentinel machine standing in for unresolved contexts.
	Miss *StateMachine
}

// NewMonitor returns a monitor over reg with lim and out installed.
func NewMonitor(lim config.Limits, out *report.Reporter, reg *Registry) *Monitor {
	return &Monitor{Limits: lim, Out: out, Reg: reg}
}

// InstanceDescriptor is one live object or function the log mentions: its
// internal id, current raw address, owning machine, the packet that created
// it, and the per-instance analysis flags.
type InstanceDescriptor struct {
	ID      int
	Addr    int64
	Machine *StateMachine
	Birth   *TransPacket

	PropDict   bool
	ElemDict   bool
	IsWatched  bool
	ForceDeopt bool
}

// State returns the instance's current state in its machine.
func (d *InstanceDescriptor) State() *State {
	return d.Machine.FindInstance(d.ID, false)
}

// Location names where the instance was born, for diagnostics.
func (d *InstanceDescriptor) Location() string {
	if d.Birth == nil {
		return d.Machine.String()
	}
	return fmt.Sprintf("%s by %s", d.Machine.String(), d.Birth.Describe())
}

// StateMachine is one typestate automaton: all states observed for a single
// allocation signature, the edges between them, and where each live instance
// currently sits.
type StateMachine struct {
	Kind  MachineKind
	ID    int
	Name  string
	Start *State

	states map[stateKey]*State
	// All preserves creation order for deterministic traversal.
	All    []*State
	InstAt map[int]*State

	// CauseDeopt marks machines the diagnoser traced a deopt back to;
	// Deopted lists the function machines that paid for it.
	CauseDeopt bool
	Deopted    []*StateMachine

	// Function-machine fields.
	BeenOptimized bool
	AllowOpt      bool
	OptMsg        string
	DeoptCounts   map[int]int
	TotalDeopts   int

	mon *Monitor
}

// NewStateMachine returns a machine of the given kind with its start state
// attached to the sentinel shape, and for function machines also to the
// sentinel code.
func NewStateMachine(kind MachineKind, id int, mon *Monitor) *StateMachine {
	m := &StateMachine{
		Kind:        kind,
		ID:          id,
		states:      make(map[stateKey]*State),
		InstAt:      make(map[int]*State),
		DeoptCounts: make(map[int]int),
		AllowOpt:    true,
		mon:         mon,
	}
	sk := SObject
	k := stateKey{shape: mon.Reg.NullShape}
	if kind == MFunction {
		sk = SFunction
		k.code = mon.Reg.NullCode
	}
	start := newState(sk, 0, k, m)
	start.Depth = 0
	m.states[k] = start
	m.All = append(m.All, start)
	m.Start = start
	return m
}

// String returns the machine's name, or a numbered placeholder before one is
// assigned.
func (m *StateMachine) String() string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("machine-%d", m.ID)
}

// searchState interns the state for k, creating it on first sight and
// claiming k's shape as owned by it.
func (m *StateMachine) searchState(k stateKey) *State {
	if s, ok := m.states[k]; ok {
		return s
	}
	kind := SObject
	if m.Kind == MFunction {
		kind = SFunction
	}
	s := newState(kind, len(m.All), k, m)
	m.states[k] = s
	m.All = append(m.All, s)
	if k.shape != nil && k.shape != m.mon.Reg.NullShape {
		k.shape.owner = s
	}
	return s
}

// StateCount reports how many states the machine holds, start included.
func (m *StateMachine) StateCount() int { return len(m.All) }

// Size is states plus edges, the visualizer's threshold metric.
func (m *StateMachine) Size() int {
	n := len(m.All)
	for _, s := range m.All {
		n += len(s.Out) + len(s.Summary)
	}
	return n
}

// FindInstance returns the state instance id currently sits at. Unknown ids
// and fresh instances map to the start state.
func (m *StateMachine) FindInstance(id int, newInstance bool) *State {
	if !newInstance {
		if s, ok := m.InstAt[id]; ok {
			return s
		}
	}
	m.InstAt[id] = m.Start
	return m.Start
}

// RenameInstance remaps an instance id after a GC move, keeping its state.
func (m *StateMachine) RenameInstance(old, new int) {
	if s, ok := m.InstAt[old]; ok {
		delete(m.InstAt, old)
		m.InstAt[new] = s
	}
}

// CountInstances sums the occurrence counts on the start state's out-edges,
// which is how many times this site allocated.
func (m *StateMachine) CountInstances() int {
	n := 0
	for _, t := range m.Start.Out {
		for _, tp := range t.Triggers {
			n += tp.Count
		}
	}
	for _, t := range m.Start.Summary {
		for _, tp := range t.Triggers {
			n += tp.Count
		}
	}
	return n
}

// link finds or creates the edge cur→target of the requested flavor and
// relaxes the shortest-path tree. Missing edges reconcile log gaps and only
// claim the parent link of a previously unconnected state.
func (m *StateMachine) link(cur, target *State, bp *StateMachine, missing bool) *Transition {
	var t *Transition
	if bp != nil {
		t = cur.Summary[target]
		if t == nil {
			t = newSummaryTransition(cur, target, bp)
			cur.Summary[target] = t
		}
	} else {
		t = cur.Out[target]
		if t == nil {
			t = newTransition(cur, target)
			cur.Out[target] = t
		}
	}
	if missing {
		if target.ParentLink == nil && target != m.Start {
			target.ParentLink = t
			target.Depth = cur.Depth + 1
		}
	} else if cur.Depth+1 < target.Depth {
		target.ParentLink = t
		target.Depth = cur.Depth + 1
	}
	return t
}

// EvolveObject advances desc through this machine: locate its current state,
// reconcile a disagreeing old shape through a missing edge, move it to the
// state owning newShape (nil keeps the current shape, for self-edges), and
// record (reason, ctxts, cost) on the traversed edge. A non-nil bp routes the
// move over a summary edge.
func (m *StateMachine) EvolveObject(desc *InstanceDescriptor, ctxts []*StateMachine, oldShape, newShape *Shape, bp *StateMachine, reason string, cost int, newInstance bool) *TransPacket {
	cur := m.FindInstance(desc.ID, newInstance)

	if oldShape != nil && cur.Shape != oldShape {
		o := m.searchState(stateKey{shape: oldShape})
		t := m.link(cur, o, nil, true)
		t.InsertReason("?", []*StateMachine{m.mon.Miss}, 0)
		cur = o
	}

	target := cur
	if newShape != nil {
		target = m.searchState(stateKey{shape: newShape})
	}
	t := m.link(cur, target, bp, false)
	tp := t.InsertReason(reason, ctxts, cost)
	m.InstAt[desc.ID] = target

	if desc.ForceDeopt {
		if m.mon.Notifier != nil {
			m.mon.Notifier.DeoptDeps(tp, m.mon.Out)
		}
		desc.ForceDeopt = false
	}
	m.checkStorage(desc, target)
	return tp
}

// checkStorage runs the dictionary-mode heuristic after a move: a deep state
// reached in property-dictionary mode with many field additions and no
// deletion on its root path earns advice; a deep state that fails that test
// arms the watch for the past-case diagnosis instead. States shallower than
// SlowDepth are not inspected.
func (m *StateMachine) checkStorage(desc *InstanceDescriptor, at *State) {
	if !m.mon.Analyze {
		return
	}
	lim := m.mon.Limits
	if desc.PropDict && at.Depth >= lim.SlowDepth {
		edges, d := ForwardSearchPath(m.Start, at)
		if d >= 0 {
			fields, deleted := 0, false
			for _, e := range edges {
				if e.ReasonBeginWith("+Fld") != nil {
					fields++
				}
				if e.ReasonBeginWith("-Fld") != nil {
					deleted = true
				}
			}
			if fields >= lim.SlowFields && !deleted {
				m.mon.Out.Reportf(report.TagPropDict,
					"%s: %d fields moved properties to dictionary mode, predeclare them", desc.Location(), fields)
				desc.PropDict = false
			} else {
				desc.IsWatched = true
			}
		}
	}
	if desc.ElemDict {
		m.mon.Out.Reportf(report.TagElemDict,
			"%s: elements moved to dictionary mode", desc.Location())
		desc.ElemDict = false
	}
}

// EvolveFunction advances a function instance to (shape, code). Nil shape or
// code keeps the current value.
func (m *StateMachine) EvolveFunction(desc *InstanceDescriptor, ctxts []*StateMachine, shape *Shape, code *Code, reason string, cost int, newInstance bool) *TransPacket {
	cur := m.FindInstance(desc.ID, newInstance)
	k := stateKey{shape: cur.Shape, code: cur.Code}
	if shape != nil {
		k.shape = shape
	}
	if code != nil {
		k.code = code
	}
	target := m.searchState(k)
	t := m.link(cur, target, nil, false)
	tp := t.InsertReason(reason, ctxts, cost)
	m.InstAt[desc.ID] = target
	return tp
}

// SetOptState toggles whether the optimizer may touch this function and
// remembers the engine's message for later reasons.
func (m *StateMachine) SetOptState(allow bool, msg string) {
	m.AllowOpt = allow
	m.OptMsg = msg
}

// AddDeopt charges one deopt against bailout site.
func (m *StateMachine) AddDeopt(site int) {
	m.DeoptCounts[site]++
	m.TotalDeopts++
}

// CheckBailouts reports any single bailout site that dominates this
// function's deopts. Run after the log drains.
func (m *StateMachine) CheckBailouts() {
	lim := m.mon.Limits
	if m.TotalDeopts < 2 {
		return
	}
	for site, n := range m.DeoptCounts {
		if float64(n) >= lim.FactorOutShare*float64(m.TotalDeopts) && n >= lim.FactorOutMin {
			m.mon.Out.Reportf(report.TagFactorOut,
				"%s: bailout %d accounts for %d/%d deopts, factor out the checked code",
				m.String(), site, n, m.TotalDeopts)
		}
	}
}
