// Package trust computes the composite dataset trust score from five weighted sub-scores.
package trust

import (
	"fmt"
	"math"
)

const (
	MinScore = 0.0
	MaxScore = 100.0

	weightTolerance = 1e-9
)

// Weights is the fixed weight table. It must sum to 1.0.
type Weights struct {
	Completeness float64 `yaml:"completeness" toml:"completeness" json:"completeness"`
	Freshness    float64 `yaml:"freshness" toml:"freshness" json:"freshness"`
	Consistency  float64 `yaml:"consistency" toml:"consistency" json:"consistency"`
	Schema       float64 `yaml:"schema" toml:"schema" json:"schema"`
	Verification float64 `yaml:"verification" toml:"verification" json:"verification"`
}

// DefaultWeights returns {completeness:.30, freshness:.25, consistency:.20, schema:.15, verification:.10}.
func DefaultWeights() Weights {
	return Weights{
		Completeness: 0.30,
		Freshness:    0.25,
		Consistency:  0.20,
		Schema:       0.15,
		Verification: 0.10,
	}
}

// Sum returns the total of all five weights.
func (w Weights) Sum() float64 {
	return w.Completeness + w.Freshness + w.Consistency + w.Schema + w.Verification
}

// Validate rejects negative weights and tables that do not sum to 1.0.
func (w Weights) Validate() error {
	for name, v := range w.Map() {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %v", w.Sum())
	}
	return nil
}

// Map returns the table keyed by sub-score name.
func (w Weights) Map() map[string]float64 {
	return map[string]float64{
		"completeness": w.Completeness,
		"freshness":    w.Freshness,
		"consistency":  w.Consistency,
		"schema":       w.Schema,
		"verification": w.Verification,
	}
}

// SubScores holds the five components, each conventionally in [0,100].
type SubScores struct {
	Completeness float64 `yaml:"completeness" toml:"completeness" json:"completeness"`
	Freshness    float64 `yaml:"freshness" toml:"freshness" json:"freshness"`
	Consistency  float64 `yaml:"consistency" toml:"consistency" json:"consistency"`
	Schema       float64 `yaml:"schema" toml:"schema" json:"schema"`
	Verification float64 `yaml:"verification" toml:"verification" json:"verification"`
}

// DefaultSubScores are assigned to a freshly uploaded dataset.
func DefaultSubScores() SubScores {
	return SubScores{
		Completeness: 80,
		Freshness:    70,
		Consistency:  75,
		Schema:       85,
		Verification: 0,
	}
}

// Clamp returns a copy with every component limited to [0,100].
func (s SubScores) Clamp() SubScores {
	return SubScores{
		Completeness: Clamp(s.Completeness),
		Freshness:    Clamp(s.Freshness),
		Consistency:  Clamp(s.Consistency),
		Schema:       Clamp(s.Schema),
		Verification: Clamp(s.Verification),
	}
}

// InRange reports whether every component already lies in [0,100].
func (s SubScores) InRange() bool {
	return s == s.Clamp()
}

// Clamp limits v to [MinScore, MaxScore].
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	return math.Min(MaxScore, math.Max(MinScore, v))
}

// Engine computes trust scores with an injected, immutable weight table.
type Engine struct {
	weights Weights
}

// NewEngine validates w and returns an engine bound to it.
func NewEngine(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trust weights: %w", err)
	}
	return &Engine{weights: w}, nil
}

// Weights returns a copy of the engine's weight table.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Compute is the plain weighted sum. It does not clamp; callers keep inputs in range.
func (e *Engine) Compute(s SubScores) float64 {
	w := e.weights
	return s.Completeness*w.Completeness +
		s.Freshness*w.Freshness +
		s.Consistency*w.Consistency +
		s.Schema*w.Schema +
		s.Verification*w.Verification
}

// BumpVerification adds delta to the verification sub-score, capped at 100.
func (e *Engine) BumpVerification(current, delta float64) float64 {
	return Clamp(current + delta)
}
