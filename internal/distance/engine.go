// Package distance turns pairs of feature bundles into per-algorithm
// distances and a fused match decision.
package distance

import (
	"fmt"

	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// Engine compares feature bundles. It holds configuration only and is safe
// for concurrent use.
type Engine struct {
	algorithms []AlgorithmConfig
	fusion     Fusion
}

// NewEngine validates cfg and builds an engine for its enabled algorithms.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid distance config: %w", err)
	}
	fusion, err := NewFusion(cfg.Fusion, cfg.FusedThresholds, cfg.weights())
	if err != nil {
		return nil, err
	}

	algos := make([]AlgorithmConfig, 0, len(cfg.Algorithms))
	for _, a := range cfg.Algorithms {
		if !a.Enabled {
			continue
		}
		if a.Kind == KindDescriptors && a.MatchThreshold <= 0 {
			a.MatchThreshold = DefaultMatchThreshold
		}
		algos = append(algos, a)
	}
	return &Engine{algorithms: algos, fusion: fusion}, nil
}

// FusionName returns the name of the active fusion strategy.
func (e *Engine) FusionName() string {
	return e.fusion.Name()
}

// Algorithms returns the names of the enabled algorithms.
func (e *Engine) Algorithms() []string {
	names := make([]string, len(e.algorithms))
	for i, a := range e.algorithms {
		names[i] = a.Name
	}
	return names
}

// Compare runs every enabled algorithm on the pair. It fails with a
// *MissingFeatureError if a required algorithm has no entry in either bundle.
func (e *Engine) Compare(a, b picture.FeatureBundle) (map[string]AlgoMatch, error) {
	out := make(map[string]AlgoMatch, len(e.algorithms))
	for _, algo := range e.algorithms {
		fa, okA := a[algo.Name]
		fb, okB := b[algo.Name]
		if algo.Required && (!okA || !okB) {
			return nil, &MissingFeatureError{Algorithm: algo.Name}
		}

		var d float64
		switch algo.Kind {
		case KindDescriptors:
			d = descriptorDistance(fa.Descriptors, fb.Descriptors, algo.MatchThreshold, algo.CrossCheck)
		case KindHash:
			d = hashDistance(fa.Hash, fb.Hash)
		}

		out[algo.Name] = AlgoMatch{
			Name:     algo.Name,
			Distance: d,
			Decision: algo.Thresholds.Decide(d),
		}
	}
	return out, nil
}

// Fuse combines per-algorithm matches with the active strategy.
func (e *Engine) Fuse(matches map[string]AlgoMatch) (float64, Decision) {
	return e.fusion.Fuse(matches)
}

// Distance compares a and b and returns the fused distance and decision.
func (e *Engine) Distance(a, b picture.FeatureBundle) (float64, Decision, error) {
	matches, err := e.Compare(a, b)
	if err != nil {
		return 0, No, err
	}
	d, dec := e.Fuse(matches)
	return d, dec, nil
}
