package automata

import (
	"strings"
	"testing"

	"typetrace/internal/config"
	"typetrace/internal/report"
)

func newTestMonitor() *Monitor {
	mon := NewMonitor(config.Default(), report.New(nil), NewRegistry())
	mon.Miss = NewStateMachine(MObject, -1, mon)
	mon.Miss.Name = "*MISS*"
	return mon
}

func TestFieldShapeWalk(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MObject, 1, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m}

	a, b, c := mon.Reg.Shape(0xA), mon.Reg.Shape(0xB), mon.Reg.Shape(0xC)
	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)
	m.EvolveObject(desc, nil, a, b, nil, "+Fld: x=0", 0, false)
	m.EvolveObject(desc, nil, b, c, nil, "+Fld: y=0", 0, false)

	if m.StateCount() != 4 {
		t.Fatalf("states = %d, want 4", m.StateCount())
	}
	cs := c.ToState()
	if cs == nil || cs.Depth != 3 {
		t.Fatalf("depth(0xC) = %v, want 3", cs)
	}
	if cs.ParentLink == nil || cs.ParentLink.Target != cs {
		t.Errorf("parent link of 0xC does not point at it")
	}
	edges, d := ForwardSearchPath(a.ToState(), cs)
	if d != 2 {
		t.Fatalf("path 0xA->0xC = %d, want 2", d)
	}
	if edges[0].ReasonBeginWith("+Fld: x") == nil || edges[1].ReasonBeginWith("+Fld: y") == nil {
		t.Errorf("path edges in wrong order")
	}
	if m.InstAt[desc.ID] != cs {
		t.Errorf("instance not migrated to 0xC")
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MObject, 1, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m}
	a, b := mon.Reg.Shape(0xA), mon.Reg.Shape(0xB)

	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)
	tp1 := m.EvolveObject(desc, nil, a, b, nil, "+Fld: x=0", 0, false)
	states, size := m.StateCount(), m.Size()

	m.InstAt[desc.ID] = a.ToState()
	tp2 := m.EvolveObject(desc, nil, a, b, nil, "+Fld: x=0", 0, false)

	if tp1 != tp2 {
		t.Fatalf("replay allocated a new packet")
	}
	if tp2.Count != 2 {
		t.Errorf("count = %d, want 2", tp2.Count)
	}
	if m.StateCount() != states || m.Size() != size {
		t.Errorf("replay grew the machine: %d/%d states, %d/%d size",
			m.StateCount(), states, m.Size(), size)
	}
}

func TestMissingEdgeReconciliation(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MObject, 1, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m}
	b, c := mon.Reg.Shape(0xB), mon.Reg.Shape(0xC)

	// The log never showed how the instance reached 0xB.
	m.EvolveObject(desc, nil, b, c, nil, "+Fld: z=0", 0, false)

	bs := b.ToState()
	if bs == nil {
		t.Fatal("0xB state not interned")
	}
	miss := m.Start.EdgeTo(bs)
	if miss == nil {
		t.Fatal("no reconciliation edge start->0xB")
	}
	tp := miss.ReasonBeginWith("?")
	if tp == nil {
		t.Fatal("reconciliation edge has no ? packet")
	}
	if len(tp.Contexts) != 1 || tp.Contexts[0] != mon.Miss {
		t.Errorf("? context = %v, want *MISS*", tp.Contexts)
	}
	if bs.ParentLink != miss {
		t.Errorf("unconnected 0xB did not take the missing edge as parent")
	}
	if m.InstAt[desc.ID] != c.ToState() {
		t.Errorf("instance not at 0xC after reconcile")
	}
}

func TestRelaxationFindsShorterPath(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MObject, 1, mon)
	a, b := mon.Reg.Shape(0xA), mon.Reg.Shape(0xB)

	d1 := &InstanceDescriptor{ID: 1, Machine: m}
	m.EvolveObject(d1, nil, nil, a, nil, "+Obj", 0, true)
	m.EvolveObject(d1, nil, a, b, nil, "+Fld: x=0", 0, false)
	bs := b.ToState()
	if bs.Depth != 2 {
		t.Fatalf("depth(0xB) = %d, want 2", bs.Depth)
	}

	// A second instance reaches 0xB straight from the start.
	d2 := &InstanceDescriptor{ID: 2, Machine: m}
	m.EvolveObject(d2, nil, nil, b, nil, "+Obj", 0, true)
	if bs.Depth != 1 {
		t.Errorf("depth(0xB) = %d after relax, want 1", bs.Depth)
	}
	if bs.ParentLink.Source != m.Start {
		t.Errorf("parent of 0xB not reparented onto start")
	}

	// The longer route must not grow the depth back.
	m.InstAt[d1.ID] = a.ToState()
	m.EvolveObject(d1, nil, a, b, nil, "+Fld: x=0", 0, false)
	if bs.Depth != 1 {
		t.Errorf("depth(0xB) = %d, grew after reinsert", bs.Depth)
	}
}

func TestRegistryRewrite(t *testing.T) {
	r := NewRegistry()
	s := r.Shape(0x10)
	if !r.RewriteShape(0x10, 0x20) {
		t.Fatal("rewrite failed")
	}
	if r.LookupShape(0x10) != nil {
		t.Errorf("stale key 0x10 still present")
	}
	if got := r.LookupShape(0x20); got != s || got.ID != 0x20 {
		t.Errorf("descriptor not rebound under 0x20")
	}
	if r.RewriteShape(0x10, 0x20) {
		t.Errorf("second rewrite of same pair not a no-op")
	}
}

func TestDeoptDeps(t *testing.T) {
	var sb strings.Builder
	mon := NewMonitor(config.Default(), report.New(&sb), NewRegistry())
	mon.Miss = NewStateMachine(MObject, -1, mon)

	f1 := NewStateMachine(MFunction, 1, mon)
	f1.Name = "f1"
	f2 := NewStateMachine(MFunction, 2, mon)
	f2.Name = "f2"

	a := mon.Reg.Shape(0xA)
	a.AddDep(f1)
	a.AddDep(f1)
	a.AddDep(f2)
	a.DeoptDeps(nil, mon.Out)

	got := sb.String()
	if !strings.Contains(got, "Forced to deoptimize: map a") {
		t.Errorf("output = %q, want forced-deopt header", got)
	}
	if !strings.Contains(got, "f1 x2") || !strings.Contains(got, "f2 x1") {
		t.Errorf("output = %q, want dependent counts", got)
	}
	if len(a.Deps()) != 0 {
		t.Errorf("deps not cleared after fire")
	}
}

func TestNotifierFiresOnEvolve(t *testing.T) {
	var sb strings.Builder
	mon := NewMonitor(config.Default(), report.New(&sb), NewRegistry())
	mon.Miss = NewStateMachine(MObject, -1, mon)

	m := NewStateMachine(MObject, 1, mon)
	f := NewStateMachine(MFunction, 2, mon)
	f.Name = "victim"
	a := mon.Reg.Shape(0xA)
	a.AddDep(f)
	mon.Notifier = a

	desc := &InstanceDescriptor{ID: 1, Machine: m, ForceDeopt: true}
	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)

	if !strings.Contains(sb.String(), "victim x1") {
		t.Errorf("output = %q, want dependent listed", sb.String())
	}
	if desc.ForceDeopt {
		t.Errorf("force_deopt flag not cleared")
	}
}

func TestMergeReasons(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MObject, 1, mon)
	s := m.Start
	tr := newTransition(s, s)
	tr.InsertReason("#Cow", nil, 2048)
	tr.InsertReason("^Ary", nil, 0)

	label := tr.MergeReasons()
	if !strings.Contains(label, "#Cow+^Ary") {
		t.Errorf("label = %q, want joined reasons", label)
	}
	if !strings.Contains(label, "$") || !strings.Contains(label, "kB") {
		t.Errorf("label = %q, want cost suffix", label)
	}
}

func TestCheckBailouts(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MFunction, 1, mon)
	m.Name = "hot"
	for i := 0; i < 4; i++ {
		m.AddDeopt(7)
	}
	m.AddDeopt(3)
	m.CheckBailouts()
	if n := mon.Out.Count(report.TagFactorOut); n != 1 {
		t.Fatalf("factorOut reports = %d, want 1", n)
	}
	if !strings.Contains(mon.Out.Lines()[0].Msg, "bailout 7") {
		t.Errorf("msg = %q, want bailout 7", mon.Out.Lines()[0].Msg)
	}
}

func TestStorageHeuristic(t *testing.T) {
	mon := newTestMonitor()
	mon.Analyze = true
	mon.Limits.SlowDepth = 2
	mon.Limits.SlowFields = 2
	m := NewStateMachine(MObject, 1, mon)

	desc := &InstanceDescriptor{ID: 1, Machine: m, PropDict: true}
	a, b, c := mon.Reg.Shape(0xA), mon.Reg.Shape(0xB), mon.Reg.Shape(0xC)
	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)
	m.EvolveObject(desc, nil, a, b, nil, "+Fld: x=0", 0, false)
	m.EvolveObject(desc, nil, b, c, nil, "+Fld: y=0", 0, false)

	if n := mon.Out.Count(report.TagPropDict); n != 1 {
		t.Fatalf("propDict reports = %d, want 1", n)
	}
	if desc.PropDict {
		t.Errorf("prop_dict flag not cleared after report")
	}
}

func TestElemDictReported(t *testing.T) {
	mon := newTestMonitor()
	mon.Analyze = true
	m := NewStateMachine(MObject, 1, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m, ElemDict: true}
	a := mon.Reg.Shape(0xA)
	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)
	if n := mon.Out.Count(report.TagElemDict); n != 1 {
		t.Fatalf("elemDict reports = %d, want 1", n)
	}
}

func TestFunctionEvolveInternsByShapeAndCode(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MFunction, 1, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m}
	shape := mon.Reg.Shape(0xA)
	c1, c2 := mon.Reg.Code(0x100), mon.Reg.Code(0x200)

	m.EvolveFunction(desc, nil, shape, c1, "Full", 0, true)
	m.EvolveFunction(desc, nil, nil, c2, "Opt: hot loop", 0, false)

	if m.StateCount() != 3 {
		t.Fatalf("states = %d, want 3", m.StateCount())
	}
	cur := m.InstAt[desc.ID]
	if cur.Code != c2 || cur.Shape != shape {
		t.Errorf("current = (%s, %s), want (a, 200)", cur.Shape, cur.Code)
	}
}

func TestSummaryEdgeSeparateFromNormal(t *testing.T) {
	mon := newTestMonitor()
	bp := NewStateMachine(MBoilerplate, 1, mon)
	m := NewStateMachine(MObject, 2, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m}
	a := mon.Reg.Shape(0xA)

	m.EvolveObject(desc, nil, nil, a, bp, "+ObjLit", 0, true)
	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)

	as := a.ToState()
	if m.Start.Summary[as] == nil || m.Start.Out[as] == nil {
		t.Fatalf("summary and normal edges not kept apart")
	}
	if m.Start.Summary[as].Boilerplate != bp {
		t.Errorf("summary edge lost its boilerplate")
	}
	if m.CountInstances() != 2 {
		t.Errorf("instances = %d, want 2", m.CountInstances())
	}
}

func TestRenameInstance(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MObject, 1, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m}
	a := mon.Reg.Shape(0xA)
	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)

	m.RenameInstance(1, 9)
	if _, ok := m.InstAt[1]; ok {
		t.Errorf("old instance id still mapped")
	}
	if m.InstAt[9] != a.ToState() {
		t.Errorf("renamed instance lost its state")
	}
}

func TestBackwardSearchPath(t *testing.T) {
	mon := newTestMonitor()
	m := NewStateMachine(MObject, 1, mon)
	desc := &InstanceDescriptor{ID: 1, Machine: m}
	a, b := mon.Reg.Shape(0xA), mon.Reg.Shape(0xB)
	m.EvolveObject(desc, nil, nil, a, nil, "+Obj", 0, true)
	m.EvolveObject(desc, nil, a, b, nil, "+Fld: x=0", 0, false)

	edges, d := BackwardSearchPath(b.ToState(), m.Start)
	if d != 2 {
		t.Fatalf("distance = %d, want 2", d)
	}
	if edges[0].ReasonBeginWith("+Fld") == nil {
		t.Errorf("first backward edge is not the last move")
	}
	if _, d := ForwardSearchPath(b.ToState(), a.ToState()); d != -1 {
		t.Errorf("disconnected walk = %d, want -1", d)
	}
}
