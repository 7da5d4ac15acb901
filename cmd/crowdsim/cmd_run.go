package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/crowdsim/internal/constants"
	"github.com/nvandessel/crowdsim/internal/driver"
	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/nvandessel/crowdsim/internal/visualization"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation until every agent reaches the attractor",
		Long: `Place agents, walk them toward the attractor and resolve contacts each
tick until every agent has arrived. The run, its agents and its contacts
are recorded in the project database unless --no-store is given.

Examples:
  crowdsim run                                  # Run with configured defaults
  crowdsim run --agents 200 --beta 0.3 --seed 42
  crowdsim run --state susceptible=9 --state infected=1
  crowdsim run --gif run.gif --chart sir.png --open`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	addSimulationFlags(cmd)
	cmd.Flags().Int64("seed", 0, "Seed for a reproducible run (0 picks one)")
	cmd.Flags().Duration("interval", 0, "Wall-clock time between ticks (0 runs as fast as possible)")
	cmd.Flags().String("gif", "", "Write an animated GIF of the run")
	cmd.Flags().String("chart", "", "Write a PNG chart of S/I/R counts per tick")
	cmd.Flags().String("geojson", "", "Write final agent positions as GeoJSON")
	cmd.Flags().Int("frame-every", 0, "Record one GIF frame every N ticks")
	cmd.Flags().Bool("no-store", false, "Do not record the run in the database")
	cmd.Flags().Int("progress", 0, "Print the tally every N ticks to stderr (0 disables)")
	cmd.Flags().Bool("open", false, "Open the GIF (or chart) when the run finishes")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	root, _ := cmd.Flags().GetString("root")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applySimulationFlags(cmd, cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if cmd.Flags().Changed("interval") {
		cfg.Simulation.TickInterval, _ = cmd.Flags().GetDuration("interval")
	}
	if v, _ := cmd.Flags().GetString("gif"); v != "" {
		cfg.Render.GIFPath = v
	}
	if v, _ := cmd.Flags().GetString("chart"); v != "" {
		cfg.Render.ChartPath = v
	}
	if v, _ := cmd.Flags().GetString("geojson"); v != "" {
		cfg.Render.GeoJSONPath = v
	}
	if cmd.Flags().Changed("frame-every") {
		cfg.Render.FrameEvery, _ = cmd.Flags().GetInt("frame-every")
	}
	if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
		cfg.Storage.Enabled = false
	}

	deps := driver.Deps{
		Logger:   newLogger(cfg),
		TraceDir: filepath.Join(root, constants.DirName),
	}
	if cfg.Storage.Enabled {
		s, err := openStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		deps.Store = s
	}
	if every, _ := cmd.Flags().GetInt("progress"); every > 0 {
		w := cmd.ErrOrStderr()
		contacts := 0
		deps.OnTick = func(res epidemic.TickResult, tally epidemic.Tally) {
			contacts += res.NewContacts
			if res.Tick%every == 0 || res.Converged {
				fmt.Fprintf(w, "tick %6d  S=%d I=%d R=%d  contacts=%d\n",
					res.Tick, tally.Susceptible, tally.Infected, tally.Recovered, contacts)
			}
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	outcome, runErr := driver.Simulate(ctx, cfg, deps)
	if outcome == nil {
		return runErr
	}

	if jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), outcome); err != nil {
			return err
		}
	} else {
		printOutcome(cmd.OutOrStdout(), outcome, deps.Store != nil)
	}

	if open, _ := cmd.Flags().GetBool("open"); open {
		target := outcome.Outputs["gif"]
		if target == "" {
			target = outcome.Outputs["chart"]
		}
		if target != "" {
			if err := visualization.OpenFile(target); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not open %s: %v\n", target, err)
			}
		}
	}

	if errors.Is(runErr, driver.ErrMaxTicks) {
		return fmt.Errorf("run did not converge: %w", runErr)
	}
	return runErr
}

func printOutcome(w io.Writer, o *driver.Outcome, stored bool) {
	r := o.Report
	status := "converged"
	if !r.Converged {
		status = "stopped"
	}
	fmt.Fprintf(w, "Run %s %s after %d ticks (%s)\n", o.RunID, status, r.Ticks, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  seed:       %d\n", o.Seed)
	fmt.Fprintf(w, "  attractor:  (%.1f, %.1f)\n", o.Attractor.X(), o.Attractor.Y())
	fmt.Fprintf(w, "  contacts:   %d\n", r.TotalContacts)
	fmt.Fprintf(w, "  final:      S=%d I=%d R=%d\n", r.Tally.Susceptible, r.Tally.Infected, r.Tally.Recovered)
	if stored && o.Sink != nil {
		fmt.Fprintf(w, "  stored:     %d events (%d dropped, %d failed)\n", o.Sink.Delivered, o.Sink.Dropped, o.Sink.Failed)
	}
	for _, kind := range []string{"gif", "chart", "geojson"} {
		if p, ok := o.Outputs[kind]; ok {
			fmt.Fprintf(w, "  %-10s  %s\n", kind+":", p)
		}
	}
}
