package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	lim := Default()
	if lim.SlowDepth != 15 || lim.SlowFields != 15 {
		t.Errorf("slow limits = %d/%d, want 15/15", lim.SlowDepth, lim.SlowFields)
	}
	if lim.FactorOutShare != 0.4 || lim.FactorOutMin != 4 {
		t.Errorf("factor-out limits = %v/%d, want 0.4/4", lim.FactorOutShare, lim.FactorOutMin)
	}
	if lim.MixinFields != 8 || lim.TailSteps != 5 {
		t.Errorf("mixin/tail = %d/%d, want 8/5", lim.MixinFields, lim.TailSteps)
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	if err := os.WriteFile(path, []byte("slow_depth: 3\nmixin_fields: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	lim, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if lim.SlowDepth != 3 {
		t.Errorf("SlowDepth = %d, want 3", lim.SlowDepth)
	}
	if lim.MixinFields != 2 {
		t.Errorf("MixinFields = %d, want 2", lim.MixinFields)
	}
	// Untouched keys keep defaults.
	if lim.TailSteps != 5 {
		t.Errorf("TailSteps = %d, want 5", lim.TailSteps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
