// Package model replays an engine event log into per-allocation-site
// typestate automata: it owns the machine and instance tables, the GC-move
// record, the deferred-diagnosis queue, and the dispatch loop.
package model

import (
	"fmt"
	"io"

	"typetrace/internal/automata"
	"typetrace/internal/config"
	"typetrace/internal/infer"
	"typetrace/internal/report"
)

// Analyzer is the per-run replay context. One log, one analyzer.
type Analyzer struct {
	Mon *automata.Monitor
	Out *report.Reporter

	// Global stands in for the top-level calling context (id 0).
	Global *automata.StateMachine

	machines   map[automata.MachineKind]map[int64]*automata.StateMachine
	all        []*automata.StateMachine
	machineSeq int
	// hiddenSig counts down so machines invented for unseen instances never
	// collide with a real allocation signature.
	hiddenSig int64

	instances map[automata.MachineKind]map[int64]*automata.InstanceDescriptor
	instSeq   int

	moves     map[int64]int64
	deferred  map[int64][]*infer.DeoptPack
	deoptMaps map[int64][]int64

	Debug  bool
	DebugW io.Writer
}

// New returns an analyzer with the sentinel machines installed.
func New(lim config.Limits, out *report.Reporter) *Analyzer {
	mon := automata.NewMonitor(lim, out, automata.NewRegistry())
	a := &Analyzer{
		Mon:       mon,
		Out:       out,
		machines:  make(map[automata.MachineKind]map[int64]*automata.StateMachine),
		instances: make(map[automata.MachineKind]map[int64]*automata.InstanceDescriptor),
		moves:     make(map[int64]int64),
		deferred:  make(map[int64][]*infer.DeoptPack),
		deoptMaps: make(map[int64][]int64),
	}
	for _, k := range []automata.MachineKind{automata.MBoilerplate, automata.MObject, automata.MFunction} {
		a.machines[k] = make(map[int64]*automata.StateMachine)
		a.instances[k] = make(map[int64]*automata.InstanceDescriptor)
	}
	mon.Miss = a.newMachine(automata.MObject)
	mon.Miss.Name = "*MISS*"
	a.Global = a.newMachine(automata.MFunction)
	a.Global.Name = "global"
	return a
}

func (a *Analyzer) newMachine(kind automata.MachineKind) *automata.StateMachine {
	m := automata.NewStateMachine(kind, a.machineSeq, a.Mon)
	a.machineSeq++
	a.all = append(a.all, m)
	return m
}

// machineFor finds or creates the machine for an allocation signature.
func (a *Analyzer) machineFor(kind automata.MachineKind, sig int64) *automata.StateMachine {
	if m, ok := a.machines[kind][sig]; ok {
		return m
	}
	m := a.newMachine(kind)
	a.machines[kind][sig] = m
	return m
}

// hiddenMachine seeds a descriptor observed before its allocation event.
func (a *Analyzer) hiddenMachine(kind automata.MachineKind) *automata.StateMachine {
	a.hiddenSig--
	return a.machineFor(kind, a.hiddenSig)
}

// findInstance resolves addr in the kind's table, retrying once through the
// GC-move record. With create set, a miss registers a fresh descriptor on a
// hidden machine.
func (a *Analyzer) findInstance(addr int64, kind automata.MachineKind, create bool) *automata.InstanceDescriptor {
	tbl := a.instances[kind]
	if d, ok := tbl[addr]; ok {
		return d
	}
	if to, ok := a.moves[addr]; ok {
		if d, ok := tbl[to]; ok {
			return d
		}
		addr = to
	}
	if !create {
		return nil
	}
	a.instSeq++
	d := &automata.InstanceDescriptor{ID: a.instSeq, Addr: addr, Machine: a.hiddenMachine(kind)}
	tbl[addr] = d
	return d
}

// contexts reads the caller chain (outermost first on the wire) and returns
// it innermost first. Unknown callers resolve to *MISS*, id 0 to global.
func (a *Analyzer) contexts(s *Scanner, innermostOnly bool) []*automata.StateMachine {
	n := s.Int()
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = s.Hex()
	}
	if s.Err() != nil {
		return nil
	}
	out := make([]*automata.StateMachine, 0, n)
	for i := n - 1; i >= 0; i-- {
		switch m, ok := a.machines[automata.MFunction][ids[i]]; {
		case ids[i] == 0:
			out = append(out, a.Global)
		case ok:
			out = append(out, m)
		default:
			out = append(out, a.Mon.Miss)
		}
	}
	if innermostOnly && len(out) > 1 {
		out = out[:1]
	}
	return out
}

// drainDeferred runs the diagnoses that were waiting for d's allocation.
func (a *Analyzer) drainDeferred(d *automata.InstanceDescriptor) {
	packs := a.deferred[d.Addr]
	if len(packs) == 0 {
		return
	}
	delete(a.deferred, d.Addr)
	for _, p := range packs {
		p.Failed = d
		if a.Mon.Analyze {
			infer.Diagnose(p, a.Mon)
		}
	}
}

// Run replays the whole log through the dispatch table, then finishes.
// Unknown tags and malformed records abort; everything else recovers.
func (a *Analyzer) Run(r io.Reader) error {
	s := NewScanner(r)
	for s.Next() {
		tag := Tag(s.Int())
		if s.Err() != nil {
			return s.Err()
		}
		if tag < 0 || tag >= eventCount {
			return fmt.Errorf("model: line %d: unknown event tag %d", s.Line(), int(tag))
		}
		if a.Debug && a.DebugW != nil {
			fmt.Fprintf(a.DebugW, "%6d %s\n", s.Line(), tag)
		}
		if err := handlers[tag](a, s); err != nil {
			return fmt.Errorf("%s: %w", tag, err)
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("model: read log: %w", err)
	}
	a.Finish()
	return nil
}

// Finish flushes the armed map notifier and summarizes bailout sites.
func (a *Analyzer) Finish() {
	if a.Mon.Notifier != nil {
		a.Mon.Notifier.DeoptDeps(nil, a.Out)
		a.Mon.Notifier = nil
	}
	for _, m := range a.all {
		if m.Kind == automata.MFunction {
			m.CheckBailouts()
		}
	}
}

// Machines returns every machine in creation order.
func (a *Analyzer) Machines() []*automata.StateMachine { return a.all }

// Instance exposes the object table for tests and the CLI.
func (a *Analyzer) Instance(addr int64, kind automata.MachineKind) *automata.InstanceDescriptor {
	return a.findInstance(addr, kind, false)
}
