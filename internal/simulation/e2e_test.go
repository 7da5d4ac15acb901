package simulation_test

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/nvandessel/crowdsim/internal/simulation"
)

// TestReferenceScenario places an infected agent next to a susceptible one
// and a second susceptible agent far away, with certain transmission.
func TestReferenceScenario(t *testing.T) {
	r := simulation.NewRunner(t)
	params := epidemic.DefaultParams()
	params.ContactDistance = 5

	result := r.Run(simulation.Scenario{
		Name:      "reference",
		Params:    &params,
		Beta:      simulation.Float(1),
		Attractor: orb.Point{11, 11},
		Agents: []simulation.AgentSpec{
			{Position: orb.Point{10, 10}, State: epidemic.Infected},
			{Position: orb.Point{12, 10}, State: epidemic.Susceptible},
			{Position: orb.Point{500, 500}, State: epidemic.Susceptible},
		},
	})

	first := result.Ticks[0]
	if first.Result.NewContacts != 1 {
		t.Errorf("tick 1 contacts = %d, want 1", first.Result.NewContacts)
	}
	if want := (epidemic.Tally{Susceptible: 1, Infected: 2}); first.Tally != want {
		t.Errorf("tick 1 tally = %+v, want %+v", first.Tally, want)
	}
	if c := result.Contacts[0]; c.Source != 1 || c.Target != 2 || !c.Contaminated || c.Tick != 1 {
		t.Errorf("first contact = %v, want 1->2 contaminated at tick 1", c)
	}

	simulation.AssertConverged(t, result)
	simulation.AssertNoDuplicateContacts(t, result)
	simulation.AssertStoreMatches(t, result)
}

// TestChainSpreadWaitsOneTick checks that a fresh infection only starts
// spreading on the following tick.
func TestChainSpreadWaitsOneTick(t *testing.T) {
	r := simulation.NewRunner(t)
	agents := simulation.Row(100, 350, 8, epidemic.Infected, epidemic.Susceptible, epidemic.Susceptible)

	result := r.Run(simulation.Scenario{
		Name:      "chain",
		Beta:      simulation.Float(1),
		Attractor: orb.Point{600, 350},
		Agents:    agents,
	})

	if len(result.Contacts) < 2 {
		t.Fatalf("got %d contacts, want at least 2\n%s", len(result.Contacts), simulation.FormatResultDebug(result))
	}
	want := []epidemic.ContactEvent{
		{Source: 1, Target: 2, Contaminated: true, Tick: 1},
		{Source: 2, Target: 3, Contaminated: true, Tick: 2},
	}
	for i, w := range want {
		if result.Contacts[i] != w {
			t.Errorf("contact %d = %v, want %v", i, result.Contacts[i], w)
		}
	}
	// Agent 1 reaches agent 3 only at the attractor, after 3 is infected.
	simulation.AssertContact(t, result, 1, 3, false)
	simulation.AssertContactCount(t, result, 3)
	simulation.AssertContactsOnlyFromInfected(t, result, simulation.InitialStates(agents))
	simulation.AssertStoreMatches(t, result)
}

// TestZeroBetaCountsEveryExposure gathers a crowd tightly enough that every
// pair involving an infected agent meets at the attractor.
func TestZeroBetaCountsEveryExposure(t *testing.T) {
	r := simulation.NewRunner(t)
	params := epidemic.DefaultParams()
	params.ContactDistance = 2 * (params.AgentDiameter/2 + params.AttractorDiameter/2)

	result := r.Run(simulation.Scenario{
		Name:      "beta-zero",
		Params:    &params,
		Beta:      simulation.Float(0),
		Attractor: orb.Point{350, 350},
		Crowd:     40,
		Seed:      3,
		Weights: []epidemic.StateWeight{
			{State: epidemic.Susceptible, Weight: 1},
			{State: epidemic.Infected, Weight: 1},
		},
	})

	if result.Final != result.Initial {
		t.Errorf("final tally %+v differs from initial %+v", result.Final, result.Initial)
	}
	for _, c := range result.Contacts {
		if c.Contaminated {
			t.Errorf("contact %v contaminated with beta = 0", c)
		}
	}
	n, s := result.Initial.Total(), result.Initial.Susceptible
	simulation.AssertContactCount(t, result, n*(n-1)/2-s*(s-1)/2)
	simulation.AssertConverged(t, result)
	simulation.AssertStoreMatches(t, result)
}

func TestRecoveredCrowdHasNoContacts(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:      "immune",
		Attractor: orb.Point{350, 350},
		Crowd:     25,
		Seed:      5,
		Weights: []epidemic.StateWeight{
			{State: epidemic.Susceptible, Weight: 1},
			{State: epidemic.Recovered, Weight: 1},
		},
	})

	simulation.AssertContactCount(t, result, 0)
	simulation.AssertConverged(t, result)
}

func TestRandomCrowdWithRecovery(t *testing.T) {
	r := simulation.NewRunner(t)
	params := epidemic.DefaultParams()
	params.ContactDistance = 20

	result := r.Run(simulation.Scenario{
		Name:      "recovery",
		Params:    &params,
		Recovery:  simulation.Float(0.05),
		Attractor: orb.Point{200, 500},
		Crowd:     50,
		Seed:      11,
	})

	simulation.AssertConverged(t, result)
	simulation.AssertSIRConserved(t, result)
	simulation.AssertMonotoneTallies(t, result)
	simulation.AssertNoDuplicateContacts(t, result)
	simulation.AssertStoreMatches(t, result)

	t.Log(simulation.FormatResultDebug(result))
}

func TestScenarioDeterminism(t *testing.T) {
	scenario := simulation.Scenario{
		Name:      "determinism",
		Attractor: orb.Point{300, 300},
		Crowd:     30,
		Seed:      21,
	}

	a := simulation.NewRunner(t).Run(scenario)
	b := simulation.NewRunner(t).Run(scenario)

	if len(a.Ticks) != len(b.Ticks) {
		t.Fatalf("tick counts differ: %d vs %d", len(a.Ticks), len(b.Ticks))
	}
	for i := range a.Ticks {
		if a.Ticks[i] != b.Ticks[i] {
			t.Fatalf("tick %d differs: %s vs %s", i+1, simulation.FormatTickDebug(a.Ticks[i]), simulation.FormatTickDebug(b.Ticks[i]))
		}
	}
	if len(a.Contacts) != len(b.Contacts) {
		t.Fatalf("contact counts differ: %d vs %d", len(a.Contacts), len(b.Contacts))
	}
	for i := range a.Contacts {
		if a.Contacts[i] != b.Contacts[i] {
			t.Errorf("contact %d differs: %v vs %v", i, a.Contacts[i], b.Contacts[i])
		}
	}
	for i := range a.Agents {
		if a.Agents[i].Position != b.Agents[i].Position {
			t.Errorf("agent %d final position differs", i+1)
		}
	}
}
