package simulation

import (
	"fmt"
	"strings"
)

// FormatTickDebug returns a human-readable summary of one tick for test
// debugging output.
func FormatTickDebug(ts TickSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick %d: moved=%t new_contacts=%d converged=%t",
		ts.Result.Tick, ts.Result.Moved, ts.Result.NewContacts, ts.Result.Converged)
	fmt.Fprintf(&b, " S=%d I=%d R=%d", ts.Tally.Susceptible, ts.Tally.Infected, ts.Tally.Recovered)
	return b.String()
}

// FormatResultDebug summarizes a whole run, one line per tick that
// produced contacts.
func FormatResultDebug(result SimulationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s (%d ticks, %d contacts) ===\n", result.Name, len(result.Ticks), len(result.Contacts))
	for _, ts := range result.Ticks {
		if ts.Result.NewContacts > 0 || ts.Result.Converged {
			b.WriteString(FormatTickDebug(ts))
			b.WriteString("\n")
		}
	}
	return b.String()
}
