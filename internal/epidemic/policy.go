package epidemic

import (
	"fmt"
	"math/rand"

	"github.com/paulmach/orb"
)

// RandomizationPolicy chooses initial positions and health states.
type RandomizationPolicy interface {
	// RandomPosition returns a point such that a circle of the given radius
	// centred on it lies inside bounds.
	RandomPosition(bounds orb.Bound, radius float64) orb.Point

	// RandomHealthState returns the initial state of the next agent.
	RandomHealthState() HealthState
}

// StateWeight is the relative likelihood of one initial health state.
type StateWeight struct {
	State  HealthState `json:"state" yaml:"state"`
	Weight float64     `json:"weight" yaml:"weight"`
}

// UniformWeights gives every live state the same weight, which is how the
// reference colour draw behaves.
func UniformWeights() []StateWeight {
	weights := make([]StateWeight, 0, len(AllStates))
	for _, s := range AllStates {
		weights = append(weights, StateWeight{State: s, Weight: 1})
	}
	return weights
}

// RandomPolicy draws positions uniformly and states by weight from its own
// random source.
type RandomPolicy struct {
	rng     *rand.Rand
	weights []StateWeight
	total   float64
}

// NewRandomPolicy creates a policy drawing from rng. Empty weights fall
// back to UniformWeights.
func NewRandomPolicy(rng *rand.Rand, weights []StateWeight) (*RandomPolicy, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfiguration)
	}
	if len(weights) == 0 {
		weights = UniformWeights()
	}

	var total float64
	for _, w := range weights {
		if !w.State.Valid() {
			return nil, fmt.Errorf("%w: invalid health state %q in weights", ErrInvalidConfiguration, w.State)
		}
		if w.Weight < 0 {
			return nil, fmt.Errorf("%w: negative weight %v for %s", ErrInvalidConfiguration, w.Weight, w.State)
		}
		total += w.Weight
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: health state weights sum to zero", ErrInvalidConfiguration)
	}

	return &RandomPolicy{
		rng:     rng,
		weights: append([]StateWeight(nil), weights...),
		total:   total,
	}, nil
}

// RandomPosition samples uniformly inside bounds shrunk by radius.
func (p *RandomPolicy) RandomPosition(bounds orb.Bound, radius float64) orb.Point {
	minX, maxX := bounds.Min[0]+radius, bounds.Max[0]-radius
	minY, maxY := bounds.Min[1]+radius, bounds.Max[1]-radius
	return orb.Point{
		minX + p.rng.Float64()*(maxX-minX),
		minY + p.rng.Float64()*(maxY-minY),
	}
}

// RandomHealthState picks a state with probability proportional to its
// weight.
func (p *RandomPolicy) RandomHealthState() HealthState {
	r := p.rng.Float64() * p.total
	for _, w := range p.weights {
		if r < w.Weight {
			return w.State
		}
		r -= w.Weight
	}
	// Rounding can leave r just past the last bucket.
	for i := len(p.weights) - 1; i >= 0; i-- {
		if p.weights[i].Weight > 0 {
			return p.weights[i].State
		}
	}
	return StateUnknown
}

// FixedPolicy replays scripted positions and states in order, wrapping
// around when exhausted. It ignores bounds, so Initialize still validates
// every position it returns.
type FixedPolicy struct {
	Positions []orb.Point
	States    []HealthState

	nextPos   int
	nextState int
}

func (p *FixedPolicy) RandomPosition(bounds orb.Bound, radius float64) orb.Point {
	if len(p.Positions) == 0 {
		return bounds.Center()
	}
	pt := p.Positions[p.nextPos%len(p.Positions)]
	p.nextPos++
	return pt
}

func (p *FixedPolicy) RandomHealthState() HealthState {
	if len(p.States) == 0 {
		return Susceptible
	}
	s := p.States[p.nextState%len(p.States)]
	p.nextState++
	return s
}
