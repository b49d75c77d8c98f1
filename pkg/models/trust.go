package models

// TrustScore grades one dimension of confidence in a proposed action.
// Scores are in [0, 1].
type TrustScore float64

// TrustReport carries the three trust dimensions the assurance gate
// scores for every proposed action.
type TrustReport struct {
	// Formality reflects how machine-checkable the action's contract
	// is. Schema-validated structured calls score high, free-form
	// shell strings score low.
	Formality TrustScore `json:"formality"`
	// ScopeCoverage reflects how much of the action's blast radius is
	// covered by the executor's declared scopes.
	ScopeCoverage TrustScore `json:"scope_coverage"`
	// Reliability reflects the executor's historical success rate for
	// this capability.
	Reliability TrustScore `json:"reliability"`
}

// TrustWeights holds the per-dimension weights used to aggregate a
// report. Each weight must be in (0, 1]; Normalize clamps out-of-range
// values.
type TrustWeights struct {
	Formality     float64 `json:"formality"     mapstructure:"formality"`
	ScopeCoverage float64 `json:"scope_coverage" mapstructure:"scope_coverage"`
	Reliability   float64 `json:"reliability"    mapstructure:"reliability"`
}

// DefaultTrustWeights returns the standard equal weighting.
func DefaultTrustWeights() TrustWeights {
	return TrustWeights{Formality: 1.0, ScopeCoverage: 1.0, Reliability: 1.0}
}

// Normalize clamps each weight into (0, 1]. Non-positive weights
// become 1 so a zero-valued config cannot mask a dimension entirely.
func (w TrustWeights) Normalize() TrustWeights {
	clamp := func(v float64) float64 {
		if v <= 0 || v > 1 {
			return 1.0
		}
		return v
	}
	return TrustWeights{
		Formality:     clamp(w.Formality),
		ScopeCoverage: clamp(w.ScopeCoverage),
		Reliability:   clamp(w.Reliability),
	}
}

// Aggregate collapses the report into a single score using a weighted
// minimum: the weakest dimension dominates. A high reliability score
// can never compensate for a missing scope declaration.
func (r TrustReport) Aggregate(w TrustWeights) TrustScore {
	w = w.Normalize()
	min := float64(r.Formality) * w.Formality
	if v := float64(r.ScopeCoverage) * w.ScopeCoverage; v < min {
		min = v
	}
	if v := float64(r.Reliability) * w.Reliability; v < min {
		min = v
	}
	if min < 0 {
		min = 0
	}
	if min > 1 {
		min = 1
	}
	return TrustScore(min)
}

// Weakest names the dimension with the lowest weighted score, for use
// in block reasons and review prompts.
func (r TrustReport) Weakest(w TrustWeights) string {
	w = w.Normalize()
	name := "formality"
	min := float64(r.Formality) * w.Formality
	if v := float64(r.ScopeCoverage) * w.ScopeCoverage; v < min {
		min = v
		name = "scope_coverage"
	}
	if v := float64(r.Reliability) * w.Reliability; v < min {
		name = "reliability"
	}
	return name
}
