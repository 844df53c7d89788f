package distance

import (
	"errors"
	"fmt"
)

// Kind selects how an algorithm's features are compared.
type Kind string

const (
	KindDescriptors Kind = "descriptors"
	KindHash        Kind = "hash"
)

// DefaultMatchThreshold is the raw Hamming distance under which a descriptor
// correspondence counts as good. 64 bits is the usual TP/FP sweet spot for
// 256-bit ORB rows.
const DefaultMatchThreshold = 64

// Thresholds maps a normalized distance to a Decision.
type Thresholds struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
}

// Decide returns Yes for d <= Low, Maybe for Low < d <= High, No otherwise.
func (t Thresholds) Decide(d float64) Decision {
	switch {
	case d <= t.Low:
		return Yes
	case d <= t.High:
		return Maybe
	default:
		return No
	}
}

// Validate checks 0 <= Low <= High <= 1.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 1 || t.Low > t.High {
		return fmt.Errorf("invalid thresholds low=%v high=%v", t.Low, t.High)
	}
	return nil
}

// AlgorithmConfig configures one enabled algorithm.
type AlgorithmConfig struct {
	Name           string     `yaml:"name"`
	Kind           Kind       `yaml:"kind"`
	Enabled        bool       `yaml:"enabled"`
	Required       bool       `yaml:"required"`
	Thresholds     Thresholds `yaml:"thresholds"`
	Weight         float64    `yaml:"weight"`
	MatchThreshold int        `yaml:"match_threshold"`
	CrossCheck     bool       `yaml:"cross_check"`
}

// Config is the full engine configuration.
type Config struct {
	Fusion          string            `yaml:"fusion"`
	FusedThresholds Thresholds        `yaml:"fused_thresholds"`
	Algorithms      []AlgorithmConfig `yaml:"algorithms"`
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if len(c.Algorithms) == 0 {
		return errors.New("no algorithms configured")
	}
	enabled := 0
	seen := make(map[string]bool, len(c.Algorithms))
	for _, a := range c.Algorithms {
		if a.Name == "" {
			return errors.New("algorithm without a name")
		}
		if seen[a.Name] {
			return fmt.Errorf("algorithm %q configured twice", a.Name)
		}
		seen[a.Name] = true
		if a.Kind != KindDescriptors && a.Kind != KindHash {
			return fmt.Errorf("algorithm %q: unknown kind %q", a.Name, a.Kind)
		}
		if err := a.Thresholds.Validate(); err != nil {
			return fmt.Errorf("algorithm %q: %w", a.Name, err)
		}
		if a.Weight < 0 {
			return fmt.Errorf("algorithm %q: negative weight", a.Name)
		}
		if a.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return errors.New("no algorithm enabled")
	}
	if _, err := NewFusion(c.Fusion, c.FusedThresholds, c.weights()); err != nil {
		return err
	}
	return c.FusedThresholds.Validate()
}

func (c *Config) weights() map[string]float64 {
	w := make(map[string]float64, len(c.Algorithms))
	for _, a := range c.Algorithms {
		if a.Enabled {
			w[a.Name] = a.Weight
		}
	}
	return w
}
