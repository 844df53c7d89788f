package distance

import (
	"fmt"
	"sort"
)

// Fusion strategy names.
const (
	FusionUnanimous = "unanimous"
	FusionWeighted  = "weighted"
)

// Fusion combines per-algorithm results into one distance and one decision.
type Fusion interface {
	Name() string
	Fuse(matches map[string]AlgoMatch) (float64, Decision)
}

// NewFusion builds the named strategy. An empty name selects unanimous.
func NewFusion(name string, fused Thresholds, weights map[string]float64) (Fusion, error) {
	switch name {
	case "", FusionUnanimous:
		return unanimous{}, nil
	case FusionWeighted:
		return weighted{weights: weights, thresholds: fused}, nil
	default:
		return nil, fmt.Errorf("unknown fusion strategy %q", name)
	}
}

// unanimous keeps the weakest individual decision. The reported distance is
// the mean of the per-algorithm distances.
type unanimous struct{}

func (unanimous) Name() string { return FusionUnanimous }

func (unanimous) Fuse(matches map[string]AlgoMatch) (float64, Decision) {
	if len(matches) == 0 {
		return 1, No
	}
	decision := Yes
	sum := 0.0
	for _, name := range sortedNames(matches) {
		m := matches[name]
		decision = Weakest(decision, m.Decision)
		sum += m.Distance
	}
	return sum / float64(len(matches)), decision
}

// weighted combines distances linearly with the configured weights,
// normalized by the total weight of the algorithms present, and derives the
// decision from the fused thresholds. Algorithms without a weight fall back
// to an equal share when no weight is positive.
type weighted struct {
	weights    map[string]float64
	thresholds Thresholds
}

func (weighted) Name() string { return FusionWeighted }

func (w weighted) Fuse(matches map[string]AlgoMatch) (float64, Decision) {
	if len(matches) == 0 {
		return 1, No
	}
	var sum, total float64
	for _, name := range sortedNames(matches) {
		wt := w.weights[name]
		sum += wt * matches[name].Distance
		total += wt
	}
	if total == 0 {
		for _, m := range matches {
			sum += m.Distance
		}
		total = float64(len(matches))
	}
	d := sum / total
	return d, w.thresholds.Decide(d)
}

func sortedNames(matches map[string]AlgoMatch) []string {
	names := make([]string, 0, len(matches))
	for name := range matches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
