package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/crowdsim/internal/config"
)

// addSimulationFlags registers the engine settings shared by run and batch.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("agents", 0, "Number of agents")
	cmd.Flags().Float64("beta", 0, "Contamination probability per contact (0.0-1.0)")
	cmd.Flags().Float64("recovery", 0, "Per-tick recovery probability of an infected agent")
	cmd.Flags().Float64("contact", 0, "Unscaled contact distance")
	cmd.Flags().Float64("scale", 0, "Contact distance multiplier")
	cmd.Flags().Float64("step", 0, "Distance an agent walks per tick")
	cmd.Flags().Float64("width", 0, "Window width")
	cmd.Flags().Float64("height", 0, "Window height")
	cmd.Flags().String("attractor", "", "Attractor position as x,y (random when unset)")
	cmd.Flags().StringSlice("state", nil, "Initial state weight as state=weight, repeatable (e.g. infected=1)")
	cmd.Flags().Int("max-ticks", 0, "Stop runs that have not converged after this many ticks")
}

// applySimulationFlags copies every flag the user set onto cfg and
// revalidates it.
func applySimulationFlags(cmd *cobra.Command, cfg *config.CrowdsimConfig) error {
	f := cmd.Flags()
	sim := &cfg.Simulation

	if f.Changed("agents") {
		sim.AgentCount, _ = f.GetInt("agents")
	}
	floats := []struct {
		name string
		dst  *float64
	}{
		{"beta", &sim.Beta},
		{"recovery", &sim.RecoveryProbability},
		{"contact", &sim.ContactDistance},
		{"scale", &sim.Scale},
		{"step", &sim.StepLength},
		{"width", &sim.Width},
		{"height", &sim.Height},
	}
	for _, fl := range floats {
		if f.Changed(fl.name) {
			*fl.dst, _ = f.GetFloat64(fl.name)
		}
	}
	if f.Changed("max-ticks") {
		sim.MaxTicks, _ = f.GetInt("max-ticks")
	}
	if f.Changed("attractor") {
		raw, _ := f.GetString("attractor")
		p, err := parsePoint(raw)
		if err != nil {
			return fmt.Errorf("--attractor: %w", err)
		}
		sim.Attractor = p
	}
	if f.Changed("state") {
		raw, _ := f.GetStringSlice("state")
		weights, err := parseStateWeights(raw)
		if err != nil {
			return fmt.Errorf("--state: %w", err)
		}
		sim.HealthStates = weights
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

func parsePoint(s string) (*config.PointConfig, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("expected x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid x %q", xs)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid y %q", ys)
	}
	return &config.PointConfig{X: x, Y: y}, nil
}

func parseStateWeights(items []string) ([]config.HealthStateWeight, error) {
	out := make([]config.HealthStateWeight, 0, len(items))
	for _, item := range items {
		state, raw, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("expected state=weight, got %q", item)
		}
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %s: %q", state, raw)
		}
		out = append(out, config.HealthStateWeight{State: strings.TrimSpace(state), Weight: w})
	}
	return out, nil
}
