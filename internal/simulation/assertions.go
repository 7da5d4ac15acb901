package simulation

import (
	"context"
	"testing"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// AssertConverged asserts that every agent reached the attractor.
func AssertConverged(t *testing.T, result SimulationResult) {
	t.Helper()
	if !result.Converged {
		t.Errorf("AssertConverged: %s did not converge after %d ticks", result.Name, len(result.Ticks))
	}
	if n := len(result.Ticks); n > 0 && !result.Ticks[n-1].Result.Converged {
		t.Errorf("AssertConverged: last tick of %s does not report convergence", result.Name)
	}
}

// AssertContactCount asserts the total number of resolved contacts.
func AssertContactCount(t *testing.T, result SimulationResult, want int) {
	t.Helper()
	if got := len(result.Contacts); got != want {
		t.Errorf("AssertContactCount: %s has %d contacts, want %d", result.Name, got, want)
	}
}

// AssertContact asserts that the pair met with the given outcome. Source
// and target are matched in either order.
func AssertContact(t *testing.T, result SimulationResult, a, b int, contaminated bool) {
	t.Helper()
	for _, c := range result.Contacts {
		if (c.Source == a && c.Target == b) || (c.Source == b && c.Target == a) {
			if c.Contaminated != contaminated {
				t.Errorf("AssertContact: %v has contaminated=%t, want %t", c, c.Contaminated, contaminated)
			}
			return
		}
	}
	t.Errorf("AssertContact: no contact between %d and %d in %s", a, b, result.Name)
}

// AssertNoContact asserts that the pair never met.
func AssertNoContact(t *testing.T, result SimulationResult, a, b int) {
	t.Helper()
	for _, c := range result.Contacts {
		if (c.Source == a && c.Target == b) || (c.Source == b && c.Target == a) {
			t.Errorf("AssertNoContact: unexpected %v in %s", c, result.Name)
		}
	}
}

// AssertNoDuplicateContacts asserts that no unordered pair appears twice
// and that the count stays within n(n-1)/2.
func AssertNoDuplicateContacts(t *testing.T, result SimulationResult) {
	t.Helper()
	seen := make(map[[2]int]bool)
	for _, c := range result.Contacts {
		k := [2]int{min(c.Source, c.Target), max(c.Source, c.Target)}
		if seen[k] {
			t.Errorf("AssertNoDuplicateContacts: pair %v repeated in %s", k, result.Name)
		}
		seen[k] = true
	}
	n := len(result.Agents)
	if len(result.Contacts) > n*(n-1)/2 {
		t.Errorf("AssertNoDuplicateContacts: %d contacts exceed %d pairs", len(result.Contacts), n*(n-1)/2)
	}
}

// AssertSIRConserved asserts that every tally sums to the population.
func AssertSIRConserved(t *testing.T, result SimulationResult) {
	t.Helper()
	n := result.Initial.Total()
	for _, ts := range result.Ticks {
		if ts.Tally.Total() != n {
			t.Errorf("AssertSIRConserved: tick %d total %d, want %d", ts.Result.Tick, ts.Tally.Total(), n)
		}
	}
}

// AssertMonotoneTallies asserts that susceptible counts never rise and
// recovered counts never fall.
func AssertMonotoneTallies(t *testing.T, result SimulationResult) {
	t.Helper()
	prev := result.Initial
	for _, ts := range result.Ticks {
		if ts.Tally.Susceptible > prev.Susceptible {
			t.Errorf("AssertMonotoneTallies: tick %d susceptible rose %d -> %d", ts.Result.Tick, prev.Susceptible, ts.Tally.Susceptible)
		}
		if ts.Tally.Recovered < prev.Recovered {
			t.Errorf("AssertMonotoneTallies: tick %d recovered fell %d -> %d", ts.Result.Tick, prev.Recovered, ts.Tally.Recovered)
		}
		prev = ts.Tally
	}
}

// AssertContactsOnlyFromInfected asserts that every contact source was
// infected at some point, which the state machine requires.
func AssertContactsOnlyFromInfected(t *testing.T, result SimulationResult, initial map[int]epidemic.HealthState) {
	t.Helper()
	infected := make(map[int]bool)
	for id, s := range initial {
		if s == epidemic.Infected {
			infected[id] = true
		}
	}
	for _, c := range result.Contacts {
		if !infected[c.Source] {
			t.Errorf("AssertContactsOnlyFromInfected: %v has a source that was never infected", c)
		}
		if c.Contaminated {
			infected[c.Target] = true
		}
	}
}

// AssertStoreMatches asserts that the persisted users, contacts and summary
// agree with the engine's final state.
func AssertStoreMatches(t *testing.T, result SimulationResult) {
	t.Helper()
	ctx := context.Background()

	users, err := result.Store.ListUsers(ctx, result.RunID)
	if err != nil {
		t.Fatalf("AssertStoreMatches: ListUsers: %v", err)
	}
	if len(users) != len(result.Agents) {
		t.Errorf("AssertStoreMatches: %d users stored, want %d", len(users), len(result.Agents))
	}

	contacts, err := result.Store.ListContacts(ctx, result.RunID)
	if err != nil {
		t.Fatalf("AssertStoreMatches: ListContacts: %v", err)
	}
	if len(contacts) != len(result.Contacts) {
		t.Fatalf("AssertStoreMatches: %d contacts stored, want %d", len(contacts), len(result.Contacts))
	}
	for i, c := range contacts {
		if c.ContactEvent != result.Contacts[i] {
			t.Errorf("AssertStoreMatches: stored contact %d = %v, engine %v", i, c.ContactEvent, result.Contacts[i])
		}
	}

	run, err := result.Store.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("AssertStoreMatches: GetRun: %v", err)
	}
	if run.Summary.Tally != result.Final || run.Summary.Converged != result.Converged {
		t.Errorf("AssertStoreMatches: stored summary %+v, engine tally %+v converged %t", run.Summary, result.Final, result.Converged)
	}
}

// InitialStates maps agent IDs to the states of scripted agents.
func InitialStates(specs []AgentSpec) map[int]epidemic.HealthState {
	m := make(map[int]epidemic.HealthState, len(specs))
	for i, s := range specs {
		m[i+1] = s.State
	}
	return m
}
