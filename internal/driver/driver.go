// Package driver runs simulation engines: the tick loop, batch runs over
// many seeds, and the wiring from configuration to store and renderers.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// ErrMaxTicks is returned when a run hits its tick limit before converging.
var ErrMaxTicks = errors.New("max ticks reached before convergence")

// Options controls a single drive loop.
type Options struct {
	// MaxTicks stops the run after this many ticks. 0 means no limit.
	MaxTicks int

	// Interval paces ticks with a time.Ticker. 0 runs ticks back to back.
	Interval time.Duration

	// OnTick is called after every tick with the result and current tally.
	OnTick func(epidemic.TickResult, epidemic.Tally)

	Logger *slog.Logger
}

// Report summarizes a drive loop.
type Report struct {
	Ticks         int              `json:"ticks"`
	Converged     bool             `json:"converged"`
	Tally         epidemic.Tally   `json:"tally"`
	TotalContacts int              `json:"total_contacts"`
	History       []epidemic.Tally `json:"history,omitempty"`
	Elapsed       time.Duration    `json:"elapsed"`
}

// Run ticks eng until it converges, ctx ends, or MaxTicks is reached. The
// engine must already be initialized. History starts with the tally before
// the first tick. The report is filled in on every return path.
func Run(ctx context.Context, eng *epidemic.Engine, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if eng.State() == epidemic.StateUninitialized {
		return Report{}, epidemic.ErrNotInitialized
	}

	start := time.Now()
	report := Report{History: []epidemic.Tally{eng.SIRTally()}}
	finish := func() Report {
		report.Ticks = eng.Ticks()
		report.Converged = eng.IsConverged()
		report.Tally = eng.SIRTally()
		report.TotalContacts = eng.TotalContacts()
		report.Elapsed = time.Since(start)
		return report
	}

	var pace <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		pace = ticker.C
	}

	// Loop on the engine state, not on arrival, so a crowd that starts
	// inside the attractor still gets its one contact scan.
	for eng.State() != epidemic.StateConverged {
		if opts.MaxTicks > 0 && eng.Ticks() >= opts.MaxTicks {
			logger.Warn("run stopped at tick limit", "ticks", eng.Ticks())
			return finish(), fmt.Errorf("%w (%d)", ErrMaxTicks, opts.MaxTicks)
		}

		if pace != nil {
			select {
			case <-ctx.Done():
			case <-pace:
			}
		}
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		res, err := eng.Tick()
		if err != nil {
			return finish(), fmt.Errorf("tick %d: %w", eng.Ticks()+1, err)
		}
		tally := eng.SIRTally()
		report.History = append(report.History, tally)
		if opts.OnTick != nil {
			opts.OnTick(res, tally)
		}
	}

	r := finish()
	logger.Debug("run converged", "ticks", r.Ticks, "contacts", r.TotalContacts)
	return r, nil
}
