package simulation

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/nvandessel/crowdsim/internal/store"
)

// Runner orchestrates scenario runs against a real engine and SQLite store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteStore
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteStore(filepath.Join(tmpDir, ".crowdsim", "crowdsim.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// Run executes the scenario to convergence and returns the collected results.
// Users and contacts are written synchronously to the store.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()
	params := scenario.params()

	// Phase 1: Build the placement policy.
	var (
		policy epidemic.RandomizationPolicy
		count  int
	)
	if len(scenario.Agents) > 0 {
		fixed := &epidemic.FixedPolicy{}
		for _, a := range scenario.Agents {
			fixed.Positions = append(fixed.Positions, a.Position)
			fixed.States = append(fixed.States, a.State)
		}
		policy, count = fixed, len(scenario.Agents)
	} else {
		rp, err := epidemic.NewRandomPolicy(rand.New(rand.NewSource(scenario.Seed)), scenario.Weights)
		if err != nil {
			r.t.Fatalf("%s: NewRandomPolicy: %v", scenario.Name, err)
		}
		policy, count = rp, scenario.Crowd
	}

	// Phase 2: Record the run and initialize the engine against it.
	runID := store.NewRunID()
	err := r.store.CreateRun(ctx, store.Run{
		ID:            runID,
		Seed:          scenario.Seed,
		AgentCount:    count,
		Beta:          params.Beta,
		ContactRadius: params.ContactRadius(),
		AttractorX:    scenario.Attractor.X(),
		AttractorY:    scenario.Attractor.Y(),
	})
	if err != nil {
		r.t.Fatalf("%s: CreateRun: %v", scenario.Name, err)
	}

	engine := epidemic.New(params,
		epidemic.WithRand(rand.New(rand.NewSource(scenario.Seed+1))),
		epidemic.WithSink(store.NewRunSink(ctx, r.store, runID)),
	)
	if err := engine.Initialize(count, scenario.Attractor, policy); err != nil {
		r.t.Fatalf("%s: Initialize: %v", scenario.Name, err)
	}

	result := SimulationResult{
		Name:    scenario.Name,
		RunID:   runID,
		Initial: engine.SIRTally(),
		Params:  params,
		Store:   r.store,
	}

	// Phase 3: Tick to convergence.
	for !engine.IsConverged() {
		if len(result.Ticks) >= scenario.maxTicks() {
			r.t.Fatalf("%s: no convergence after %d ticks", scenario.Name, len(result.Ticks))
		}
		res, err := engine.Tick()
		if err != nil {
			r.t.Fatalf("%s: tick %d: %v", scenario.Name, len(result.Ticks)+1, err)
		}
		result.Ticks = append(result.Ticks, TickSnapshot{Result: res, Tally: engine.SIRTally()})
	}

	// Phase 4: Persist the outcome and surface any sink failures.
	select {
	case err := <-engine.Failures():
		r.t.Fatalf("%s: sink failure: %v", scenario.Name, err)
	default:
	}

	result.Contacts = engine.Contacts()
	result.Final = engine.SIRTally()
	result.Agents = engine.Agents()
	result.Converged = engine.IsConverged()

	err = r.store.FinishRun(ctx, runID, store.RunSummary{
		Ticks:         engine.Ticks(),
		Converged:     result.Converged,
		Tally:         result.Final,
		TotalContacts: engine.TotalContacts(),
	})
	if err != nil {
		r.t.Fatalf("%s: FinishRun: %v", scenario.Name, err)
	}

	return result
}
