// Package workload provides built-in device types and the graph
// generators that drive a sim.Builder the way a graph file loader would.
package workload

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workload kinds.
const (
	KindHeat = "heat"
	KindRing = "ring"
)

// WorkloadSpec selects and parameterizes a built-in workload.
// Loaded from YAML via LoadWorkloadSpec(path).
type WorkloadSpec struct {
	Kind string    `yaml:"kind"`
	Seed int64     `yaml:"seed"`
	Heat *HeatSpec `yaml:"heat,omitempty"`
	Ring *RingSpec `yaml:"ring,omitempty"`
}

// HeatSpec configures the heat diffusion grid.
type HeatSpec struct {
	Size    int    `yaml:"size"`  // grid side length
	MaxTime uint32 `yaml:"max_t"` // time steps each cell advances
	// FixedBoundary pins every edge cell to its initial value.
	FixedBoundary bool    `yaml:"fixed_boundary,omitempty"`
	InitialMax    float64 `yaml:"initial_max,omitempty"` // initial values in [0, initial_max)
}

// RingSpec configures token rings.
type RingSpec struct {
	Rings   int  `yaml:"rings"`
	Length  int  `yaml:"length"`
	Laps    int  `yaml:"laps"`
	Shuffle bool `yaml:"shuffle,omitempty"`
}

// DefaultSpec returns a runnable spec for kind with the given seed, or nil
// for an unknown kind.
func DefaultSpec(kind string, seed int64) *WorkloadSpec {
	switch kind {
	case KindHeat:
		return &WorkloadSpec{Kind: KindHeat, Seed: seed, Heat: &HeatSpec{Size: 100, MaxTime: 10, InitialMax: 1}}
	case KindRing:
		return &WorkloadSpec{Kind: KindRing, Seed: seed, Ring: &RingSpec{Rings: 16, Length: 64, Laps: 10}}
	}
	return nil
}

// Kinds returns the registered workload kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(generators))
	for k := range generators {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// LoadWorkloadSpec reads and parses a YAML workload specification file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadWorkloadSpec(path string) (*WorkloadSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	var spec WorkloadSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	return &spec, nil
}

// Validate checks that the spec names a known kind and that the matching
// section is present and in range.
func (s *WorkloadSpec) Validate() error {
	if _, ok := generators[s.Kind]; !ok {
		return fmt.Errorf("unknown workload kind %q; valid: %s", s.Kind, strings.Join(Kinds(), ", "))
	}
	switch s.Kind {
	case KindHeat:
		h := s.Heat
		if h == nil {
			return fmt.Errorf("kind %q requires a heat section", s.Kind)
		}
		if h.Size < 2 {
			return fmt.Errorf("heat.size must be >= 2, got %d", h.Size)
		}
		if h.MaxTime < 1 {
			return fmt.Errorf("heat.max_t must be >= 1, got %d", h.MaxTime)
		}
		if h.InitialMax < 0 {
			return fmt.Errorf("heat.initial_max must be non-negative, got %f", h.InitialMax)
		}
	case KindRing:
		r := s.Ring
		if r == nil {
			return fmt.Errorf("kind %q requires a ring section", s.Kind)
		}
		if r.Rings < 1 || r.Length < 2 || r.Laps < 1 {
			return fmt.Errorf("ring needs rings >= 1, length >= 2 and laps >= 1, got %d, %d and %d", r.Rings, r.Length, r.Laps)
		}
	}
	return nil
}

// Messages returns the exact number of messages a run of the spec
// delivers.
func (s *WorkloadSpec) Messages() uint64 {
	switch s.Kind {
	case KindHeat:
		return HeatMessages(s.Heat.Size, s.Heat.MaxTime)
	case KindRing:
		return RingMessages(s.Ring)
	}
	return 0
}
