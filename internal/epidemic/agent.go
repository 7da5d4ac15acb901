package epidemic

import (
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Attractor is the immobile gathering point every agent walks toward.
type Attractor struct {
	Position orb.Point
	Radius   float64
}

// Agent is a simulated individual.
type Agent struct {
	ID       int
	Position orb.Point
	Vector   orb.Point // unit step toward the attractor, fixed at creation
	Radius   float64
	State    HealthState
}

// newAgent creates an agent and derives its movement vector toward target.
func newAgent(id int, pos orb.Point, radius float64, state HealthState, target orb.Point) *Agent {
	return &Agent{
		ID:       id,
		Position: pos,
		Vector:   unitVector(pos, target),
		Radius:   radius,
		State:    state,
	}
}

// unitVector returns the unit vector from a to b, or the zero vector when
// the points coincide.
func unitVector(a, b orb.Point) orb.Point {
	d := planar.Distance(a, b)
	if d == 0 {
		return orb.Point{0, 0}
	}
	return orb.Point{(b[0] - a[0]) / d, (b[1] - a[1]) / d}
}

func (a *Agent) IsHealthy() bool   { return a.State == Susceptible }
func (a *Agent) IsInfected() bool  { return a.State == Infected }
func (a *Agent) IsRecovered() bool { return a.State == Recovered }

// IsAtAttractor reports whether the agent overlaps the attractor, i.e. its
// centre lies within the sum of both radii.
func (a *Agent) IsAtAttractor(at Attractor) bool {
	return planar.Distance(a.Position, at.Position) <= a.Radius+at.Radius
}

// IsWithinRadius reports whether other lies within r of a. The test is
// symmetric.
func (a *Agent) IsWithinRadius(other *Agent, r float64) bool {
	return planar.Distance(a.Position, other.Position) <= r
}

// Advance moves the agent step units along its movement vector. The move
// is clamped so the agent never passes the attractor centre. It is a no-op
// returning false once the agent is at the attractor.
func (a *Agent) Advance(at Attractor, step float64) bool {
	if a.IsAtAttractor(at) {
		return false
	}
	remaining := planar.Distance(a.Position, at.Position)
	if step >= remaining {
		a.Position = at.Position
		return true
	}
	a.Position = orb.Point{
		a.Position[0] + a.Vector[0]*step,
		a.Position[1] + a.Vector[1]*step,
	}
	return true
}

// AttemptContamination runs one Bernoulli trial with success probability
// beta. Only a Susceptible agent can become Infected; for any other state
// no draw is made and false is returned.
func (a *Agent) AttemptContamination(beta float64, rng *rand.Rand) bool {
	if a.State != Susceptible {
		return false
	}
	if rng.Float64() < beta {
		a.State = Infected
		return true
	}
	return false
}

// Recover moves an Infected agent to Recovered.
func (a *Agent) Recover() bool {
	if a.State != Infected {
		return false
	}
	a.State = Recovered
	return true
}
