package engine

import "math/rand"

// Oracle samples the crash point for a new round. The sampling scheme is
// pluggable; provably-fair commit/reveal variants implement the same
// interface.
type Oracle interface {
	Sample() float64
}

// InverseUniform is the production sampler: crash = (1 - edge) / U for
// uniform U in (0, 1], clamped to [1, max]. The house edge is the expected
// shortfall against a fair 1/U curve.
type InverseUniform struct {
	Edge float64
	Max  float64
}

func (o InverseUniform) Sample() float64 {
	u := rand.Float64()
	if u == 0 {
		u = 1e-12
	}
	crash := (1 - o.Edge) / u
	if crash < 1 {
		crash = 1
	}
	if o.Max > 0 && crash > o.Max {
		crash = o.Max
	}
	return crash
}

// Fixed always returns the same crash point. Used by tests and the
// simulation mode.
type Fixed struct {
	Crash float64
}

func (o Fixed) Sample() float64 {
	return o.Crash
}
