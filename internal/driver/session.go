package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/paulmach/orb"

	"github.com/nvandessel/crowdsim/internal/config"
	"github.com/nvandessel/crowdsim/internal/constants"
	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/nvandessel/crowdsim/internal/logging"
	"github.com/nvandessel/crowdsim/internal/sink"
	"github.com/nvandessel/crowdsim/internal/store"
	"github.com/nvandessel/crowdsim/internal/visualization"
)

// Deps are the collaborators of a configured run. Every field is optional.
type Deps struct {
	// Store persists the run, its users and contacts. Nil disables persistence.
	Store store.Store

	Logger *slog.Logger

	// TraceDir receives trace.jsonl when the log level is debug or trace.
	TraceDir string

	// OnTick is forwarded to the drive loop.
	OnTick func(epidemic.TickResult, epidemic.Tally)
}

// Outcome describes a finished configured run.
type Outcome struct {
	RunID     string            `json:"run_id"`
	Seed      int64             `json:"seed"`
	Attractor orb.Point         `json:"attractor"`
	Report    Report            `json:"report"`
	Sink      *sink.Stats       `json:"sink,omitempty"`
	Failures  int               `json:"failures"`
	Outputs   map[string]string `json:"outputs,omitempty"`
}

// ResolveSeed returns seed, or a time-based seed when it is 0.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// setup holds everything decided before the engine exists.
type setup struct {
	params    epidemic.Params
	policy    *epidemic.RandomPolicy
	attractor orb.Point
	seed      int64
	agents    int
}

// plan resolves the placement policy and attractor. Without a configured
// attractor it is placed with the placement generator before any agent.
func plan(cfg *config.CrowdsimConfig, seed int64) (*setup, error) {
	weights, err := cfg.StateWeights()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", epidemic.ErrInvalidConfiguration, err)
	}
	policy, err := epidemic.NewRandomPolicy(rand.New(rand.NewSource(seed)), weights)
	if err != nil {
		return nil, err
	}

	params := cfg.EngineParams()
	attractor, ok := cfg.AttractorPoint()
	if !ok {
		attractor = policy.RandomPosition(params.Bounds, params.AgentDiameter/2)
	}
	if err := params.Validate(cfg.Simulation.AgentCount, attractor); err != nil {
		return nil, err
	}
	return &setup{
		params:    params,
		policy:    policy,
		attractor: attractor,
		seed:      seed,
		agents:    cfg.Simulation.AgentCount,
	}, nil
}

// engine creates and initializes the engine. Contamination and recovery
// draws use their own generator seeded with seed+1.
func (s *setup) engine(opts ...epidemic.Option) (*epidemic.Engine, error) {
	opts = append([]epidemic.Option{epidemic.WithRand(rand.New(rand.NewSource(s.seed + 1)))}, opts...)
	eng := epidemic.New(s.params, opts...)
	if err := eng.Initialize(s.agents, s.attractor, s.policy); err != nil {
		return nil, err
	}
	return eng, nil
}

// NewEngine builds and initializes an engine from cfg for seed. The same
// cfg and seed always produce the same run.
func NewEngine(cfg *config.CrowdsimConfig, seed int64, opts ...epidemic.Option) (*epidemic.Engine, error) {
	s, err := plan(cfg, seed)
	if err != nil {
		return nil, err
	}
	return s.engine(opts...)
}

// Simulate performs one fully wired run: it records the run, persists
// users and contacts through an asynchronous sink, drives the engine,
// writes the configured render outputs and records the outcome. A run
// stopped by the tick limit or by ctx is still finished in the store, its
// outputs are still written, and the stop reason is returned with the
// outcome.
func Simulate(ctx context.Context, cfg *config.CrowdsimConfig, deps Deps) (*Outcome, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	seed := ResolveSeed(cfg.Simulation.Seed)
	s, err := plan(cfg, seed)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:     store.NewRunID(),
		Seed:      seed,
		Attractor: s.attractor,
		Outputs:   map[string]string{},
	}
	logger = logger.With("run_id", out.RunID)

	opts := []epidemic.Option{epidemic.WithLogger(logger)}

	var canvas *visualization.Canvas
	var gif *visualization.GIFRecorder
	if cfg.Render.GIFPath != "" {
		canvas = visualization.NewCanvas(s.params.Bounds, cfg.Render.CanvasSize)
		gif = visualization.NewGIFRecorder(canvas, cfg.Render.FrameEvery, constants.DefaultFrameDelay)
		opts = append(opts, epidemic.WithRenderer(canvas))
	}

	var async *sink.Async
	if deps.Store != nil {
		err := deps.Store.CreateRun(ctx, store.Run{
			ID:            out.RunID,
			Seed:          seed,
			AgentCount:    s.agents,
			Beta:          s.params.Beta,
			ContactRadius: s.params.ContactRadius(),
			AttractorX:    s.attractor.X(),
			AttractorY:    s.attractor.Y(),
		})
		if err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
		// Queued events outlive a cancelled run.
		async = sink.NewAsync(store.NewRunSink(context.WithoutCancel(ctx), deps.Store, out.RunID), cfg.Sink.BufferSize, logger)
		opts = append(opts, epidemic.WithSink(async))
	}

	eng, err := s.engine(opts...)
	if err != nil {
		if async != nil {
			_ = async.Close(ctx)
		}
		return nil, err
	}

	trace := logging.NewTraceLogger(deps.TraceDir, cfg.Logging.Level, out.RunID)
	defer trace.Close()

	if gif != nil {
		gif.Capture(0)
	}
	seen := 0
	report, runErr := Run(ctx, eng, Options{
		MaxTicks: cfg.Simulation.MaxTicks,
		Interval: cfg.Simulation.TickInterval,
		Logger:   logger,
		OnTick: func(res epidemic.TickResult, tally epidemic.Tally) {
			if gif != nil {
				gif.Capture(res.Tick)
			}
			if trace != nil {
				trace.LogTick(res, tally)
				if res.NewContacts > 0 {
					contacts := eng.Contacts()
					trace.LogContacts(contacts[seen:])
					seen = len(contacts)
				}
			}
			if deps.OnTick != nil {
				deps.OnTick(res, tally)
			}
		},
	})
	out.Report = report

	// Outputs are written for stopped runs too.
	if err := writeOutputs(cfg, eng, gif, report, out); err != nil {
		logger.Warn("failed to write outputs", "error", err)
		runErr = errors.Join(runErr, err)
	}

	if async != nil {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultSinkDrainTimeout)
		if err := async.Close(drainCtx); err != nil {
			logger.Warn("sink did not drain", "error", err)
		}
		cancel()
		stats := async.Stats()
		out.Sink = &stats

		summary := store.RunSummary{
			Ticks:         report.Ticks,
			Converged:     report.Converged,
			Tally:         report.Tally,
			TotalContacts: report.TotalContacts,
		}
		if err := deps.Store.FinishRun(context.WithoutCancel(ctx), out.RunID, summary); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("finishing run: %w", err))
		}
	}

	out.Failures = drain(eng.Failures())
	logger.Info("run finished",
		"ticks", report.Ticks,
		"converged", report.Converged,
		"contacts", report.TotalContacts,
		"susceptible", report.Tally.Susceptible,
		"infected", report.Tally.Infected,
		"recovered", report.Tally.Recovered)

	return out, runErr
}

func writeOutputs(cfg *config.CrowdsimConfig, eng *epidemic.Engine, gif *visualization.GIFRecorder, report Report, out *Outcome) error {
	var errs []error
	if gif != nil {
		gif.Final(report.Ticks)
		if err := gif.WriteFile(cfg.Render.GIFPath); err != nil {
			errs = append(errs, fmt.Errorf("gif: %w", err))
		} else {
			out.Outputs["gif"] = cfg.Render.GIFPath
		}
	}
	if cfg.Render.ChartPath != "" {
		if err := visualization.WriteSIRChartFile(cfg.Render.ChartPath, report.History); err != nil {
			errs = append(errs, fmt.Errorf("chart: %w", err))
		} else {
			out.Outputs["chart"] = cfg.Render.ChartPath
		}
	}
	if cfg.Render.GeoJSONPath != "" {
		if err := visualization.WriteGeoJSONFile(cfg.Render.GeoJSONPath, eng.Attractor(), eng.Agents()); err != nil {
			errs = append(errs, fmt.Errorf("geojson: %w", err))
		} else {
			out.Outputs["geojson"] = cfg.Render.GeoJSONPath
		}
	}
	return errors.Join(errs...)
}

// drain counts the errors already buffered on ch without blocking.
func drain(ch <-chan error) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}
