// Package backoff computes jittered poll delays for idle worker loops.
package backoff

import (
	rand "math/rand/v2"
	"time"
)

// Policy grows a delay with decorrelated jitter up to Max.
type Policy struct {
	// Base is the first delay and the floor of every delay. Default: 50ms.
	Base time.Duration

	// Multiplier scales the previous delay; values below 1 disable growth.
	Multiplier float64

	// Max caps every delay; 0 means uncapped.
	Max time.Duration

	rng *rand.Rand
}

// NewPolicy creates a policy. A non-zero seed makes the jitter deterministic;
// a seeded policy is not safe for concurrent use.
func NewPolicy(base time.Duration, multiplier float64, maxDelay time.Duration, seed int64) *Policy {
	p := &Policy{Base: base, Multiplier: multiplier, Max: maxDelay}
	if seed != 0 {
		s1 := uint64(seed) //nolint:gosec // seed bits only
		p.rng = rand.New(rand.NewPCG(s1, s1^0x9e3779b97f4a7c15)) //nolint:gosec // non-crypto jitter
	}

	return p
}

// Next returns the delay following prev; prev <= 0 starts over at Base.
//
//	next = min(Max, Base + rand[0, prev*Multiplier-Base))
func (p *Policy) Next(prev time.Duration) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	mult := p.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	if p.Max > 0 && p.Max < base {
		return p.Max
	}
	if prev <= 0 {
		return base
	}

	spread := time.Duration(float64(prev)*mult) - base
	if spread <= 0 {
		spread = base
	}

	var jitter int64
	if p.rng != nil {
		jitter = p.rng.Int64N(int64(spread))
	} else {
		jitter = rand.Int64N(int64(spread)) //nolint:gosec // non-crypto jitter
	}

	next := base + time.Duration(jitter)
	if p.Max > 0 && next > p.Max {
		return p.Max
	}

	return next
}
