package epidemic

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
)

func TestRandomPolicyPositionWithinBounds(t *testing.T) {
	p, err := NewRandomPolicy(rand.New(rand.NewSource(3)), nil)
	if err != nil {
		t.Fatalf("NewRandomPolicy: %v", err)
	}
	bounds := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 50}}
	inner := insetBound(bounds, 5)
	for i := 0; i < 1000; i++ {
		pos := p.RandomPosition(bounds, 5)
		if !inner.Contains(pos) {
			t.Fatalf("position %v outside %v", pos, inner)
		}
	}
}

func TestRandomPolicyUniformStates(t *testing.T) {
	p, err := NewRandomPolicy(rand.New(rand.NewSource(5)), nil)
	if err != nil {
		t.Fatalf("NewRandomPolicy: %v", err)
	}
	counts := map[HealthState]int{}
	const draws = 30000
	for i := 0; i < draws; i++ {
		counts[p.RandomHealthState()]++
	}
	for _, s := range AllStates {
		if c := counts[s]; c < draws/3-600 || c > draws/3+600 {
			t.Errorf("%s drawn %d times, want about %d", s, c, draws/3)
		}
	}
	if counts[StateUnknown] != 0 {
		t.Errorf("drew unknown state %d times", counts[StateUnknown])
	}
}

func TestRandomPolicyWeightedStates(t *testing.T) {
	p, err := NewRandomPolicy(rand.New(rand.NewSource(5)), []StateWeight{
		{State: Susceptible, Weight: 9},
		{State: Infected, Weight: 1},
		{State: Recovered, Weight: 0},
	})
	if err != nil {
		t.Fatalf("NewRandomPolicy: %v", err)
	}
	counts := map[HealthState]int{}
	for i := 0; i < 10000; i++ {
		counts[p.RandomHealthState()]++
	}
	if counts[Recovered] != 0 {
		t.Errorf("zero-weight state drawn %d times", counts[Recovered])
	}
	if counts[Infected] < 800 || counts[Infected] > 1200 {
		t.Errorf("infected drawn %d times, want about 1000", counts[Infected])
	}
}

func TestNewRandomPolicyRejectsBadWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name    string
		weights []StateWeight
	}{
		{"negative", []StateWeight{{State: Susceptible, Weight: -1}, {State: Infected, Weight: 2}}},
		{"all zero", []StateWeight{{State: Susceptible, Weight: 0}}},
		{"unknown state", []StateWeight{{State: StateUnknown, Weight: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRandomPolicy(rng, tt.weights); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
	if _, err := NewRandomPolicy(nil, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("nil rng: error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestFixedPolicyCycles(t *testing.T) {
	p := &FixedPolicy{
		Positions: []orb.Point{{1, 1}, {2, 2}},
		States:    []HealthState{Infected},
	}
	bounds := orb.Bound{Max: orb.Point{10, 10}}
	got := []orb.Point{p.RandomPosition(bounds, 0), p.RandomPosition(bounds, 0), p.RandomPosition(bounds, 0)}
	want := []orb.Point{{1, 1}, {2, 2}, {1, 1}}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %v, want %v", i, got[i], want[i])
		}
	}
	if p.RandomHealthState() != Infected || p.RandomHealthState() != Infected {
		t.Error("expected scripted state to repeat")
	}
	empty := &FixedPolicy{}
	if empty.RandomHealthState() != Susceptible {
		t.Error("empty FixedPolicy should default to susceptible")
	}
	if empty.RandomPosition(bounds, 0) != (orb.Point{5, 5}) {
		t.Error("empty FixedPolicy should default to bounds centre")
	}
}
