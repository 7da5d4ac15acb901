package store

import (
	"context"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// RunSink adapts a Store to the engine's EventSink for a single run.
type RunSink struct {
	ctx   context.Context
	store Store
	runID string
}

// NewRunSink creates a sink writing records of runID to s.
func NewRunSink(ctx context.Context, s Store, runID string) *RunSink {
	return &RunSink{ctx: ctx, store: s, runID: runID}
}

func (r *RunSink) CreateUser(agentID int, state epidemic.HealthState) error {
	return r.store.CreateUser(r.ctx, r.runID, agentID, state)
}

func (r *RunSink) InsertContact(event epidemic.ContactEvent) error {
	return r.store.InsertContact(r.ctx, r.runID, event)
}

// RunID returns the run this sink writes to.
func (r *RunSink) RunID() string { return r.runID }
