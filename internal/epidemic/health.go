// Package epidemic implements the contagion simulation core: agents walking
// toward a shared attractor, proximity contact detection, probabilistic
// contamination and deduplicated contact bookkeeping.
//
// The engine is a plain synchronous state machine. Rendering, persistence and
// tick scheduling live behind the Renderer and EventSink interfaces and the
// caller's own loop (see internal/driver).
package epidemic

import (
	"fmt"
	"strings"
)

// HealthState is the explicit health of an agent.
// The zero value is StateUnknown and is never valid for a live agent.
type HealthState int

const (
	StateUnknown HealthState = iota
	Susceptible
	Infected
	Recovered
)

// AllStates lists the valid health states in tally order.
var AllStates = []HealthState{Susceptible, Infected, Recovered}

// String returns the lowercase label used in config files and the store.
func (s HealthState) String() string {
	switch s {
	case Susceptible:
		return "susceptible"
	case Infected:
		return "infected"
	case Recovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the three live states.
func (s HealthState) Valid() bool {
	return s == Susceptible || s == Infected || s == Recovered
}

// Color maps a health state to its display colour.
func (s HealthState) Color() Color {
	switch s {
	case Susceptible:
		return ColorGreen
	case Infected:
		return ColorRed
	case Recovered:
		return ColorOrange
	default:
		return ColorGray
	}
}

// ParseHealthState maps a label to a HealthState.
// Colour names are accepted as aliases (green, red, orange).
func ParseHealthState(s string) (HealthState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "susceptible", "healthy", "green", "s":
		return Susceptible, nil
	case "infected", "contaminated", "red", "i":
		return Infected, nil
	case "recovered", "orange", "r":
		return Recovered, nil
	default:
		return StateUnknown, fmt.Errorf("unknown health state %q (valid: susceptible, infected, recovered)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s HealthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *HealthState) UnmarshalText(text []byte) error {
	parsed, err := ParseHealthState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Color is a named display colour handed to the renderer.
type Color string

const (
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorOrange Color = "orange"
	ColorBlack  Color = "black"
	ColorGray   Color = "gray"
)

// Tally is an SIR count at a point in time.
type Tally struct {
	Susceptible int `json:"susceptible" yaml:"susceptible"`
	Infected    int `json:"infected" yaml:"infected"`
	Recovered   int `json:"recovered" yaml:"recovered"`
}

// Total returns the number of agents counted.
func (t Tally) Total() int {
	return t.Susceptible + t.Infected + t.Recovered
}

func (t *Tally) add(s HealthState) {
	switch s {
	case Susceptible:
		t.Susceptible++
	case Infected:
		t.Infected++
	case Recovered:
		t.Recovered++
	}
}
