package simulation

import (
	"github.com/paulmach/orb"

	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/nvandessel/crowdsim/internal/store"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Params overrides epidemic.DefaultParams when non-nil. Beta and
	// Recovery are applied on top of it.
	Params   *epidemic.Params
	Beta     *float64
	Recovery *float64

	Attractor orb.Point

	// Agents places scripted agents in order; their IDs are 1..len(Agents).
	Agents []AgentSpec

	// Crowd, when positive and Agents is empty, places a random crowd of
	// this size using Seed. States follow Weights (uniform when empty).
	Crowd   int
	Weights []epidemic.StateWeight

	// Seed drives the random crowd (Seed) and contamination draws (Seed+1).
	Seed int64

	// MaxTicks guards against non-terminating scenarios. 0 uses 10000.
	MaxTicks int
}

// AgentSpec is a scripted agent.
type AgentSpec struct {
	Position orb.Point
	State    epidemic.HealthState
}

// Float returns a pointer to v, for optional scenario fields.
func Float(v float64) *float64 { return &v }

// Row lays out one agent per state along a horizontal line starting at
// (x, y), spacing apart.
func Row(x, y, spacing float64, states ...epidemic.HealthState) []AgentSpec {
	specs := make([]AgentSpec, len(states))
	for i, s := range states {
		specs[i] = AgentSpec{Position: orb.Point{x + float64(i)*spacing, y}, State: s}
	}
	return specs
}

// TickSnapshot is the engine state after one tick.
type TickSnapshot struct {
	Result epidemic.TickResult
	Tally  epidemic.Tally
}

// SimulationResult captures every tick and the final engine and store state.
type SimulationResult struct {
	Name     string
	RunID    string
	Initial  epidemic.Tally
	Ticks    []TickSnapshot
	Contacts []epidemic.ContactEvent
	Final    epidemic.Tally
	Agents   []epidemic.Agent

	Converged bool
	Params    epidemic.Params
	Store     *store.SQLiteStore
}

func (s Scenario) params() epidemic.Params {
	p := epidemic.DefaultParams()
	if s.Params != nil {
		p = *s.Params
	}
	if s.Beta != nil {
		p.Beta = *s.Beta
	}
	if s.Recovery != nil {
		p.RecoveryProbability = *s.Recovery
	}
	return p
}

func (s Scenario) maxTicks() int {
	if s.MaxTicks > 0 {
		return s.MaxTicks
	}
	return 10000
}
