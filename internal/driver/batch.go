package driver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// Builder creates an initialized engine for one seed.
type Builder func(seed int64) (*epidemic.Engine, error)

// BatchResult is the outcome of one seed.
type BatchResult struct {
	Seed   int64  `json:"seed"`
	Report Report `json:"report"`
}

// BatchSummary aggregates the final tallies of a batch.
type BatchSummary struct {
	Runs         int     `json:"runs"`
	MeanContacts float64 `json:"mean_contacts"`
	MeanInfected float64 `json:"mean_infected"`
	MeanTicks    float64 `json:"mean_ticks"`
	MaxInfected  int     `json:"max_infected"`
	MinInfected  int     `json:"min_infected"`
	AllConverged bool    `json:"all_converged"`
}

// Batch runs one engine per seed with at most concurrency engines at once.
// Results keep the order of seeds. The first failure cancels the remaining
// runs and is returned.
func Batch(ctx context.Context, seeds []int64, build Builder, concurrency int, opts Options) ([]BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]BatchResult, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, seed := range seeds {
		g.Go(func() error {
			eng, err := build(seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			runOpts := opts
			runOpts.OnTick = nil
			report, err := Run(gctx, eng, runOpts)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			results[i] = BatchResult{Seed: seed, Report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summarize aggregates batch results.
func Summarize(results []BatchResult) BatchSummary {
	s := BatchSummary{Runs: len(results), AllConverged: true}
	if len(results) == 0 {
		return s
	}
	s.MinInfected = results[0].Report.Tally.Infected
	for _, r := range results {
		s.MeanContacts += float64(r.Report.TotalContacts)
		s.MeanInfected += float64(r.Report.Tally.Infected)
		s.MeanTicks += float64(r.Report.Ticks)
		s.MaxInfected = max(s.MaxInfected, r.Report.Tally.Infected)
		s.MinInfected = min(s.MinInfected, r.Report.Tally.Infected)
		if !r.Report.Converged {
			s.AllConverged = false
		}
	}
	n := float64(len(results))
	s.MeanContacts /= n
	s.MeanInfected /= n
	s.MeanTicks /= n
	return s
}
