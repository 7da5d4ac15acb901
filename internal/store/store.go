// Package store defines the Store interface for persisting simulation runs,
// their users (agents) and resolved contacts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run describes one simulation run and, once finished, its outcome.
type Run struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	Seed          int64      `json:"seed"`
	AgentCount    int        `json:"agent_count"`
	Beta          float64    `json:"beta"`
	ContactRadius float64    `json:"contact_radius"`
	AttractorX    float64    `json:"attractor_x"`
	AttractorY    float64    `json:"attractor_y"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Summary       RunSummary `json:"summary"`
}

// RunSummary is the outcome recorded when a run ends.
type RunSummary struct {
	Ticks         int            `json:"ticks"`
	Converged     bool           `json:"converged"`
	Tally         epidemic.Tally `json:"tally"`
	TotalContacts int            `json:"total_contacts"`
}

// User is the persisted record of one agent.
type User struct {
	RunID        string               `json:"run_id"`
	AgentID      int                  `json:"agent_id"`
	InitialState epidemic.HealthState `json:"initial_state"`
}

// Contact is the persisted record of one resolved contact.
type Contact struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"`
	epidemic.ContactEvent
}

// Store persists runs, users and contacts.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID string, summary RunSummary) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	// ListRuns returns runs newest first. limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Agent and contact records
	CreateUser(ctx context.Context, runID string, agentID int, state epidemic.HealthState) error
	InsertContact(ctx context.Context, runID string, event epidemic.ContactEvent) error
	ListUsers(ctx context.Context, runID string) ([]User, error)
	ListContacts(ctx context.Context, runID string) ([]Contact, error)

	Close() error
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}
