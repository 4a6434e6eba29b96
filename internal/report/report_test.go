package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReportfStreamsAndRetains(t *testing.T) {
	var sb strings.Builder
	r := New(&sb)
	r.Reportf(TagAdvFlds, "hoist %d fields", 2)
	r.Reportf(TagMovMap, "storage mode churn")

	if got := sb.String(); !strings.Contains(got, "[advFlds] hoist 2 fields") {
		t.Errorf("stream = %q, want advFlds line", got)
	}
	if len(r.Lines()) != 2 {
		t.Fatalf("lines = %d, want 2", len(r.Lines()))
	}
	if r.Count(TagAdvFlds) != 1 || r.Count(TagMovMap) != 1 {
		t.Errorf("counts = %d/%d, want 1/1", r.Count(TagAdvFlds), r.Count(TagMovMap))
	}
}

func TestNilWriter(t *testing.T) {
	r := New(nil)
	r.Reportf(TagDeopt, "still retained")
	if len(r.Lines()) != 1 {
		t.Fatalf("lines = %d, want 1", len(r.Lines()))
	}
}

func TestWriteJSON(t *testing.T) {
	r := New(nil)
	r.Reportf(TagFactorOut, "site 7")
	path := filepath.Join(t.TempDir(), "report.json")
	if err := r.WriteJSON(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"factorOut"`) {
		t.Errorf("json = %s, want factorOut tag", data)
	}
}

func TestCost(t *testing.T) {
	if got := Cost(0); got != "0 B" {
		t.Errorf("Cost(0) = %q, want 0 B", got)
	}
	if got := Cost(2048); !strings.Contains(got, "kB") {
		t.Errorf("Cost(2048) = %q, want kB suffix", got)
	}
}
