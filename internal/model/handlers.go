package model

import (
	"fmt"
	"strconv"
	"strings"

	"typetrace/internal/automata"
	"typetrace/internal/infer"
	"typetrace/internal/report"
)

func (a *Analyzer) shapeOrNil(id int64) *automata.Shape {
	if id == -1 {
		return nil
	}
	return a.Mon.Reg.Shape(id)
}

func (a *Analyzer) codeOrNil(id int64) *automata.Code {
	if id == -1 {
		return nil
	}
	return a.Mon.Reg.Code(id)
}

func doCreateObjBoilerplate(a *Analyzer, s *Scanner) error {
	return createBoilerplate(a, s, "+ObjTemp")
}

func doCreateArrayBoilerplate(a *Analyzer, s *Scanner) error {
	return createBoilerplate(a, s, "+AryTemp")
}

// Boilerplates are keyed by their own address and named after the function
// that holds the literal plus the literal's index within it.
func createBoilerplate(a *Analyzer, s *Scanner, reason string) error {
	addr := s.Hex()
	ctxts := a.contexts(s, true)
	mapID := s.Hex()
	idx := s.Int()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MBoilerplate, true)
	m := a.machineFor(automata.MBoilerplate, addr)
	if m.Name == "" {
		ctx := "global"
		if len(ctxts) > 0 {
			ctx = ctxts[0].String()
		}
		m.Name = fmt.Sprintf("/%s#%d/", ctx, idx)
	}
	d.Machine = m
	d.Birth = m.EvolveObject(d, ctxts, nil, a.shapeOrNil(mapID), nil, reason, 0, true)
	a.drainDeferred(d)
	return nil
}

func doCreateObjectLiteral(a *Analyzer, s *Scanner) error {
	return createLiteral(a, s, "+ObjLit")
}

func doCreateArrayLiteral(a *Analyzer, s *Scanner) error {
	return createLiteral(a, s, "+AryLit")
}

// A literal allocation clones its boilerplate, so the edge from the start
// state is a summary of the boilerplate's machine.
func createLiteral(a *Analyzer, s *Scanner, reason string) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	mapID := s.Hex()
	sig := s.Hex()
	s.Int() // literal index, named by the boilerplate already
	if err := s.Err(); err != nil {
		return err
	}
	bp := a.findInstance(sig, automata.MBoilerplate, true).Machine
	d := a.findInstance(addr, automata.MObject, true)
	m := a.machineFor(automata.MObject, sig)
	if m.Name == "" {
		m.Name = bp.Name
	}
	d.Machine = m
	d.Birth = m.EvolveObject(d, ctxts, nil, a.shapeOrNil(mapID), bp, reason, 0, true)
	a.drainDeferred(d)
	return nil
}

func doCreateNewObject(a *Analyzer, s *Scanner) error {
	return createConstructed(a, s, "+Obj")
}

func doCreateNewArray(a *Analyzer, s *Scanner) error {
	return createConstructed(a, s, "+Ary")
}

// Constructed objects are keyed and named by their constructor function.
func createConstructed(a *Analyzer, s *Scanner, reason string) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	mapID := s.Hex()
	sig := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	m := a.machineFor(automata.MObject, sig)
	if m.Name == "" {
		if ctor, ok := a.machines[automata.MFunction][sig]; ok {
			m.Name = ctor.Name
		}
	}
	d.Machine = m
	d.Birth = m.EvolveObject(d, ctxts, nil, a.shapeOrNil(mapID), nil, reason, 0, true)
	a.drainDeferred(d)
	return nil
}

func doCreateContext(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	sig := s.Hex()
	mapID := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	m := a.machineFor(automata.MObject, sig)
	m.Name = "FunctionContext"
	d.Machine = m
	d.Birth = m.EvolveObject(d, ctxts, nil, a.shapeOrNil(mapID), nil, "+FCxt", 0, true)
	a.drainDeferred(d)
	return nil
}

func doCopyObject(a *Analyzer, s *Scanner) error {
	dst := s.Hex()
	a.contexts(s, false)
	src := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	sd := a.findInstance(src, automata.MObject, true)
	dd := a.findInstance(dst, automata.MObject, true)
	dd.Machine = sd.Machine
	dd.Birth = sd.Birth
	sd.Machine.InstAt[dd.ID] = sd.Machine.FindInstance(sd.ID, false)
	a.drainDeferred(dd)
	return nil
}

func doChangePrototype(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	mapID := s.Hex()
	proto := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	reason := fmt.Sprintf("!Proto: %x", proto)
	d.Machine.EvolveObject(d, ctxts, nil, a.shapeOrNil(mapID), nil, reason, 0, false)
	return nil
}

func doNewField(a *Analyzer, s *Scanner) error { return fieldEvent(a, s, "+Fld") }
func doUptField(a *Analyzer, s *Scanner) error { return fieldEvent(a, s, "!Fld") }
func doDelField(a *Analyzer, s *Scanner) error { return fieldEvent(a, s, "-Fld") }

func fieldEvent(a *Analyzer, s *Scanner, prefix string) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	oldMap := s.Hex()
	newMap := s.Hex()
	value := s.Hex()
	name := s.Word()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	reason := fmt.Sprintf("%s: %s=%x", prefix, name, value)
	d.Machine.EvolveObject(d, ctxts, a.shapeOrNil(oldMap), a.shapeOrNil(newMap), nil, reason, 0, false)
	return nil
}

func doSetElem(a *Analyzer, s *Scanner) error { return elemEvent(a, s, "!Elm") }
func doDelElem(a *Analyzer, s *Scanner) error { return elemEvent(a, s, "-Elm") }

func elemEvent(a *Analyzer, s *Scanner, prefix string) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	oldMap := s.Hex()
	newMap := s.Hex()
	index := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	reason := fmt.Sprintf("%s: %d", prefix, index)
	d.Machine.EvolveObject(d, ctxts, a.shapeOrNil(oldMap), a.shapeOrNil(newMap), nil, reason, 0, false)
	return nil
}

func doCowCopy(a *Analyzer, s *Scanner) error     { return costedSelfEdge(a, s, "#Cow") }
func doExpandArray(a *Analyzer, s *Scanner) error { return costedSelfEdge(a, s, "^Ary") }

// Copy-on-write and backing-store growth keep the shape but cost bytes, so
// they land on a self-edge.
func costedSelfEdge(a *Analyzer, s *Scanner, reason string) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	bytes := s.Int()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	d.Machine.EvolveObject(d, ctxts, nil, nil, nil, reason, bytes, false)
	return nil
}

func doElemTransition(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	ctxts := a.contexts(s, false)
	oldMap := s.Hex()
	newMap := s.Hex()
	bytes := s.Int()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	d.Machine.EvolveObject(d, ctxts, a.shapeOrNil(oldMap), a.shapeOrNil(newMap), nil, "^Elm", bytes, false)
	return nil
}

func doElemToSlow(a *Analyzer, s *Scanner) error { return modeEvent(a, s, "Elm->Slow") }
func doPropToSlow(a *Analyzer, s *Scanner) error { return modeEvent(a, s, "Prop->Slow") }
func doElemToFast(a *Analyzer, s *Scanner) error { return modeEvent(a, s, "Elm->Fast") }
func doPropToFast(a *Analyzer, s *Scanner) error { return modeEvent(a, s, "Prop->Fast") }

// Storage-mode changes flip the per-instance flags and leave the mode reason
// on a self-edge for the path diagnoses to find.
func modeEvent(a *Analyzer, s *Scanner, reason string) error {
	addr := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	switch reason {
	case "Elm->Slow":
		d.ElemDict = true
	case "Prop->Slow":
		d.PropDict = true
	case "Elm->Fast":
		d.ElemDict = false
	case "Prop->Fast":
		d.PropDict = false
	}
	d.Machine.EvolveObject(d, nil, nil, nil, nil, reason, 0, false)
	return nil
}

func doCreateFunction(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	sig := s.Hex()
	mapID := s.Hex()
	codeID := s.Hex()
	name := s.Rest()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MFunction, true)
	m := a.machineFor(automata.MFunction, sig)
	if m.Name == "" && name != "" {
		m.Name = name
	}
	d.Machine = m
	d.Birth = m.EvolveFunction(d, nil, a.shapeOrNil(mapID), a.codeOrNil(codeID), "new func()", 0, true)
	a.drainDeferred(d)
	return nil
}

func doGenFullCode(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	codeID := s.Hex()
	s.Rest()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MFunction, true)
	d.Machine.EvolveFunction(d, nil, nil, a.codeOrNil(codeID), "Full", 0, false)
	return nil
}

func doGenOptCode(a *Analyzer, s *Scanner) error { return optCode(a, s, "Opt") }
func doGenOsrCode(a *Analyzer, s *Scanner) error { return optCode(a, s, "Osr") }

func optCode(a *Analyzer, s *Scanner, kind string) error {
	addr := s.Hex()
	codeID := s.Hex()
	msg := s.Rest()
	if err := s.Err(); err != nil {
		return err
	}
	if msg == "" {
		msg = "-"
	}
	d := a.findInstance(addr, automata.MFunction, true)
	d.Machine.BeenOptimized = true
	d.Machine.EvolveFunction(d, nil, nil, a.codeOrNil(codeID), kind+": "+msg, 0, false)
	return nil
}

func doDisableOpt(a *Analyzer, s *Scanner) error {
	s.Hex()
	sig := s.Hex()
	msg := s.Rest()
	if err := s.Err(); err != nil {
		return err
	}
	a.machineFor(automata.MFunction, sig).SetOptState(false, msg)
	return nil
}

func doReenableOpt(a *Analyzer, s *Scanner) error {
	s.Hex()
	sig := s.Hex()
	msg := s.Rest()
	if err := s.Err(); err != nil {
		return err
	}
	a.machineFor(automata.MFunction, sig).SetOptState(true, msg)
	return nil
}

func doOptFailed(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	codeID := s.Hex()
	msg := s.Rest()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MFunction, true)
	if msg == "" || msg == "-" {
		msg = d.Machine.OptMsg
	}
	d.Machine.EvolveFunction(d, nil, nil, a.codeOrNil(codeID), "OptFailed: "+msg, 0, false)
	return nil
}

// doRegularDeopt evolves the function off its optimized code, charges the
// bailout site, and hands the failed map check to the diagnoser. Unseen
// failing objects park the pack until their allocation shows up.
func doRegularDeopt(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	oldCode := s.Hex()
	newCode := s.Hex()
	failed := s.Hex()
	site := s.Hex()
	rest := s.Rest()
	if err := s.Err(); err != nil {
		return err
	}
	msg, bailout := rest, 0
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		msg = rest[:i]
		if n, err := strconv.Atoi(rest[i+1:]); err == nil {
			bailout = n
		}
	}
	if strings.HasPrefix(msg, "soft") {
		return nil
	}

	d := a.findInstance(addr, automata.MFunction, true)
	fm := d.Machine
	cur := fm.FindInstance(d.ID, false)
	if oldCode != -1 && (cur.Code == nil || cur.Code.ID != oldCode) {
		fm.EvolveFunction(d, nil, nil, a.Mon.Reg.Code(oldCode), "Opt: ?", 0, false)
	}
	fm.EvolveFunction(d, nil, nil, a.codeOrNil(newCode), "Deopt: "+msg, 0, false)
	fm.AddDeopt(bailout)
	a.Out.Reportf(report.TagDeopt, "%s deoptimized at bailout %d: %s", fm, bailout, msg)

	ids := a.deoptMaps[site]
	if len(ids) == 0 {
		return nil
	}
	shapes := make([]*automata.Shape, len(ids))
	for i, id := range ids {
		shapes[i] = a.Mon.Reg.Shape(id)
	}
	pack := &infer.DeoptPack{Expected: shapes, Fn: fm, Bailout: bailout}
	if od := a.findInstance(failed, automata.MObject, false); od != nil {
		pack.Failed = od
		if a.Mon.Analyze {
			infer.Diagnose(pack, a.Mon)
		}
		return nil
	}
	a.deferred[failed] = append(a.deferred[failed], pack)
	return nil
}

func doDeoptAsInline(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	s.Hex()
	newCode := s.Hex()
	s.Hex() // the function it was inlined into
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MFunction, true)
	d.Machine.EvolveFunction(d, nil, nil, a.codeOrNil(newCode), "DeoptInl", 0, false)
	return nil
}

func doForceDeopt(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	s.Hex()
	newCode := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MFunction, true)
	d.Machine.EvolveFunction(d, nil, nil, a.codeOrNil(newCode), "Deopt: Forced", 0, false)
	if a.Mon.Notifier != nil {
		a.Mon.Notifier.AddDep(d.Machine)
	}
	return nil
}

func doBeginDeoptOnMap(a *Analyzer, s *Scanner) error {
	addr := s.Hex()
	mapID := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	d := a.findInstance(addr, automata.MObject, true)
	d.ForceDeopt = true
	a.Mon.Notifier = a.Mon.Reg.Shape(mapID)
	return nil
}

func doGenDeoptMaps(a *Analyzer, s *Scanner) error {
	site := s.Hex()
	n := s.Int()
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = s.Hex()
	}
	if err := s.Err(); err != nil {
		return err
	}
	a.deoptMaps[site] = ids
	return nil
}

func doGCMoveObject(a *Analyzer, s *Scanner) error {
	from := s.Hex()
	to := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	for _, kind := range []automata.MachineKind{automata.MBoilerplate, automata.MObject, automata.MFunction} {
		tbl := a.instances[kind]
		if d, ok := tbl[from]; ok {
			delete(tbl, from)
			d.Addr = to
			tbl[to] = d
		}
	}
	a.moves[from] = to
	return nil
}

func doGCMoveCode(a *Analyzer, s *Scanner) error {
	from := s.Hex()
	to := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	a.Mon.Reg.RewriteCode(from, to)
	return nil
}

func doGCMoveShared(a *Analyzer, s *Scanner) error {
	from := s.Hex()
	to := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	tbl := a.machines[automata.MFunction]
	if m, ok := tbl[from]; ok {
		delete(tbl, from)
		tbl[to] = m
	}
	return nil
}

func doGCMoveMap(a *Analyzer, s *Scanner) error {
	from := s.Hex()
	to := s.Hex()
	if err := s.Err(); err != nil {
		return err
	}
	a.Mon.Reg.RewriteShape(from, to)
	return nil
}
