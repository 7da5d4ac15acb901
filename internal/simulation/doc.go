// Package simulation provides a scenario test harness for validating the
// contagion dynamics of the engine.
//
// The harness exercises the real Engine and SQLiteStore with no mocks.
// Scenarios are Go builders that place scripted agents (or a seeded random
// crowd) around an attractor and tick the engine to convergence, capturing
// a per-tick snapshot of the SIR tally for property-based assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestChainSpread(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:      "chain",
//	        Attractor: orb.Point{350, 350},
//	        Agents:    simulation.Row(340, 350, 10, epidemic.Infected, epidemic.Susceptible),
//	        Beta:      simulation.Float(1),
//	    })
//	    simulation.AssertConverged(t, result)
//	    simulation.AssertContact(t, result, 1, 2, true)
//	}
package simulation
