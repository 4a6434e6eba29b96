package automata

import (
	"fmt"
	"sort"
	"strings"

	"typetrace/internal/report"
)

// mergeCap bounds how many distinct reasons one edge label carries.
const mergeCap = 30

// TransPacket is a single reason occurrence on an edge: the reason text, the
// call-context chain it happened under (innermost first), and accumulators for
// how often and how expensively.
type TransPacket struct {
	Trans    *Transition
	Reason   string
	Contexts []*StateMachine
	Cost     int
	Count    int
}

func packetKey(reason string, ctxts []*StateMachine) string {
	var sb strings.Builder
	sb.WriteString(reason)
	for _, c := range ctxts {
		fmt.Fprintf(&sb, "\x1f%d", c.ID)
	}
	return sb.String()
}

// Describe renders the packet for diagnostics: the reason, plus the context
// chain when one was recorded.
func (tp *TransPacket) Describe() string {
	if len(tp.Contexts) == 0 {
		return tp.Reason
	}
	names := make([]string, len(tp.Contexts))
	for i, c := range tp.Contexts {
		names[i] = c.String()
	}
	return fmt.Sprintf("%s in %s", tp.Reason, strings.Join(names, "<"))
}

// Transition is the collapsed edge between a state pair. Triggers dedups
// packets by (reason, contexts). A non-nil Boilerplate marks a summary edge:
// the target shape was produced by cloning that machine's template.
type Transition struct {
	Source, Target *State
	Triggers       map[string]*TransPacket
	Boilerplate    *StateMachine
}

func newTransition(src, tgt *State) *Transition {
	return &Transition{Source: src, Target: tgt, Triggers: make(map[string]*TransPacket)}
}

func newSummaryTransition(src, tgt *State, bp *StateMachine) *Transition {
	t := newTransition(src, tgt)
	t.Boilerplate = bp
	return t
}

// InsertReason records one occurrence of (reason, ctxts) on this edge,
// folding into an existing packet when the key matches.
func (t *Transition) InsertReason(reason string, ctxts []*StateMachine, cost int) *TransPacket {
	k := packetKey(reason, ctxts)
	if tp, ok := t.Triggers[k]; ok {
		tp.Count++
		tp.Cost += cost
		return tp
	}
	tp := &TransPacket{Trans: t, Reason: reason, Contexts: ctxts, Cost: cost, Count: 1}
	t.Triggers[k] = tp
	return tp
}

// Packets returns the triggers ordered by (reason, contexts).
func (t *Transition) Packets() []*TransPacket {
	keys := make([]string, 0, len(t.Triggers))
	for k := range t.Triggers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*TransPacket, len(keys))
	for i, k := range keys {
		out[i] = t.Triggers[k]
	}
	return out
}

// ReasonBeginWith returns the first packet whose reason contains prefix,
// or nil.
func (t *Transition) ReasonBeginWith(prefix string) *TransPacket {
	for _, tp := range t.Packets() {
		if strings.Contains(tp.Reason, prefix) {
			return tp
		}
	}
	return nil
}

// ReasonOtherThan reports whether any packet carries a reason other than s.
func (t *Transition) ReasonOtherThan(s string) bool {
	for _, tp := range t.Triggers {
		if tp.Reason != s {
			return true
		}
	}
	return false
}

// MergeReasons folds the edge's reasons into one label for drawing. Distinct
// reasons join with "+", truncated at mergeCap; a nonzero accumulated cost is
// appended in human units.
func (t *Transition) MergeReasons() string {
	var parts []string
	cost := 0
	for _, tp := range t.Packets() {
		cost += tp.Cost
		if len(parts) < mergeCap {
			parts = append(parts, tp.Reason)
		}
	}
	label := strings.Join(parts, "+")
	if len(t.Triggers) > mergeCap {
		label += "(More...)"
	}
	if cost > 0 {
		label += " $" + report.Cost(cost)
	}
	return label
}
