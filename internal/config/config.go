// Package config holds the analyzer's tuning limits.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Limits collects the empirical thresholds used by the evolution monitor,
// the deopt diagnoser, and the visualizer. The defaults are the values the
// tool has always shipped with; a YAML file can override any of them.
type Limits struct {
	// SlowDepth is the automaton depth at which an instance flagged for
	// dictionary properties is inspected.
	SlowDepth int `yaml:"slow_depth"`
	// SlowFields is the number of field additions along the root path that
	// confirms a properties-to-dictionary migration.
	SlowFields int `yaml:"slow_fields"`
	// FactorOutShare is the fraction of a function's deopts a single bailout
	// site must own to be reported.
	FactorOutShare float64 `yaml:"factor_out_share"`
	// FactorOutMin is the minimum absolute deopt count at one site.
	FactorOutMin int `yaml:"factor_out_min"`
	// MixinFields is the number of divergent closure fields beyond which the
	// split case suggests a mixin instead of hoisted initializers.
	MixinFields int `yaml:"mixin_fields"`
	// TailSteps caps how many trailing transitions a path dump prints.
	TailSteps int `yaml:"tail_steps"`
	// DrawStates is the minimum nodes+edges for an object machine that caused
	// no deopt to be drawn.
	DrawStates int `yaml:"draw_states"`
}

// Default returns the built-in limits.
func Default() Limits {
	return Limits{
		SlowDepth:      15,
		SlowFields:     15,
		FactorOutShare: 0.4,
		FactorOutMin:   4,
		MixinFields:    8,
		TailSteps:      5,
		DrawStates:     3,
	}
}

// Load reads a YAML limits file over the defaults. Absent keys keep their
// default values.
func Load(path string) (Limits, error) {
	lim := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return lim, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &lim); err != nil {
		return lim, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return lim, nil
}
