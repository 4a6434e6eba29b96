// Package report collects and emits the analyzer's diagnostic advice.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// Tag classifies an advice line.
type Tag string

const (
	TagAdvFlds   Tag = "advFlds"
	TagOrdFlds   Tag = "ordFlds"
	TagUseMixin  Tag = "useMixin"
	TagUniCtors  Tag = "uniCtors"
	TagMovMap    Tag = "movMap"
	TagFactorOut Tag = "factorOut"
	TagPropDict  Tag = "propDict"
	TagElemDict  Tag = "elemDict"
	TagForced    Tag = "forcedDeopt"
	TagDeopt     Tag = "deopt"
	TagInfo      Tag = "info"
)

// Line is one retained advice entry.
type Line struct {
	Tag Tag    `json:"tag"`
	Msg string `json:"msg"`
}

// Reporter streams advice lines to a writer as they are produced and retains
// them for a JSON dump after the run.
type Reporter struct {
	w     io.Writer
	lines []Line
}

// New returns a Reporter streaming to w. A nil w discards the stream but
// still retains lines.
func New(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{w: w}
}

// Reportf records a tagged advice line.
func (r *Reporter) Reportf(tag Tag, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.lines = append(r.lines, Line{Tag: tag, Msg: msg})
	fmt.Fprintf(r.w, "[%s] %s\n", tag, msg)
}

// Printf writes untagged continuation text (path dumps) to the stream only.
func (r *Reporter) Printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

// Lines returns the retained advice entries.
func (r *Reporter) Lines() []Line { return r.lines }

// Count returns how many retained lines carry tag.
func (r *Reporter) Count(tag Tag) int {
	n := 0
	for _, l := range r.lines {
		if l.Tag == tag {
			n++
		}
	}
	return n
}

// WriteJSON dumps the retained lines to path.
func (r *Reporter) WriteJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.lines); err != nil {
		return fmt.Errorf("report: encode %s: %w", path, err)
	}
	return nil
}

// Cost renders an accumulated transition cost for humans. Costs are byte
// counts from copy and expansion events.
func Cost(bytes int) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(bytes))
}
