// Package policy implements the three beacon-interval scheduling
// strategies as a single tagged-variant type rather than an interface —
// there are exactly three kinds, they share almost all of their state and
// math, and a plain switch over Kind is both simpler and cheaper than
// dynamic dispatch for a value recomputed on every beacon interval.
package policy

import "math/rand/v2"

// Kind selects which scheduling strategy a Policy value implements.
type Kind uint8

const (
	// KindStatic sends on a fixed period with a randomized initial offset
	// and no further adaptation.
	KindStatic Kind = iota

	// KindADAB (Adaptive Density-Aware Beaconing) adapts purely to local
	// neighbor density: Fq = density^2.
	KindADAB

	// KindACAB (Adaptive Context-Aware Beaconing) adapts to a weighted mix
	// of density, contact freshness, and inverse mobility: Fq = combined^2,
	// with combined = 0.4*density + 0.3*freshness + 0.3*(1-mobility) — a
	// fast-moving buoy should beacon more often, not less, so mobility is
	// inverted before it is weighted in.
	KindACAB
)

// String returns the human-readable policy kind name.
func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindADAB:
		return "adab"
	case KindACAB:
		return "acab"
	default:
		return "unknown"
	}
}

const (
	densityWeight   = 0.4
	freshnessWeight = 0.3
	mobilityWeight  = 0.3

	jitterSpread = 0.5 // multiplicative jitter is ±50%
)

// Config holds the shared interval bounds every policy kind clamps to.
type Config struct {
	BIMin float64
	BIMax float64
}

// Inputs carries the context a policy needs to recompute an interval.
// Each field is expected to already be normalized to [0, 1]; callers
// (the buoy's neighbor-table bookkeeping) are responsible for deriving
// these from raw neighbor counts / timestamps / velocities.
type Inputs struct {
	Density   float64
	Freshness float64
	Mobility  float64
}

// Policy is a tagged-variant beacon-interval scheduler. Exactly one of the
// Kind-specific fields is meaningful at a time, selected by Kind.
type Policy struct {
	Kind Kind
	Config

	// StaticInterval is used only when Kind == KindStatic.
	StaticInterval float64
}

// New builds a Policy of the given kind. staticInterval is only consulted
// when kind == KindStatic.
func New(kind Kind, cfg Config, staticInterval float64) Policy {
	return Policy{Kind: kind, Config: cfg, StaticInterval: staticInterval}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// jitter applies multiplicative ±50% jitter to base, drawing from rng.
func jitter(base float64, rng *rand.Rand) float64 {
	// rng.Float64() is in [0,1); map to [-jitterSpread, +jitterSpread].
	factor := 1 + (rng.Float64()*2-1)*jitterSpread
	return base * factor
}

// InitialOffset returns a randomized first-send delay in [0, BI), used so
// that buoys starting in lockstep do not all transmit simultaneously.
func (p Policy) InitialOffset(rng *rand.Rand) float64 {
	bi := p.baseInterval(Inputs{})
	return rng.Float64() * bi
}

// baseInterval computes BI before jitter is applied.
func (p Policy) baseInterval(in Inputs) float64 {
	if p.Kind == KindStatic {
		return p.StaticInterval
	}

	var fq float64
	switch p.Kind {
	case KindADAB:
		d := clamp(in.Density, 0, 1)
		fq = d * d
	case KindACAB:
		combined := densityWeight*clamp(in.Density, 0, 1) +
			freshnessWeight*clamp(in.Freshness, 0, 1) +
			mobilityWeight*(1-clamp(in.Mobility, 0, 1))
		fq = combined * combined
	default:
		fq = 0
	}

	bi := p.BIMin + fq*(p.BIMax-p.BIMin)
	return clamp(bi, p.BIMin, p.BIMax)
}

// NextInterval returns the interval, in seconds, until the next
// beacon-interval check, given the current context and an RNG draw from
// the simulation's single deterministic stream. The static policy returns
// StaticInterval unchanged every time — only ADAB/ACAB's density-derived
// base interval gets multiplicative jitter, matching the one-shot initial
// desynchronization the static policy already gets from InitialOffset.
func (p Policy) NextInterval(in Inputs, rng *rand.Rand) float64 {
	base := p.baseInterval(in)
	if p.Kind == KindStatic {
		return base
	}
	jittered := jitter(base, rng)
	return clamp(jittered, p.BIMin, p.BIMax)
}
