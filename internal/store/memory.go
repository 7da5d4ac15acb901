package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// InMemoryStore implements Store using in-memory maps.
// Useful for testing and for runs with storage disabled.
type InMemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	users    map[string][]User
	contacts map[string][]Contact
}

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:     make(map[string]*Run),
		users:    make(map[string][]User),
		contacts: make(map[string][]Contact),
	}
}

// CreateRun stores a new run.
func (s *InMemoryStore) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	s.runs[run.ID] = &run
	return nil
}

// FinishRun records the outcome of a run.
func (s *InMemoryStore) FinishRun(ctx context.Context, runID string, summary RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Summary = summary
	return nil
}

// GetRun returns a copy of the run.
func (s *InMemoryStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// CreateUser records an agent of a known run.
func (s *InMemoryStore) CreateUser(ctx context.Context, runID string, agentID int, state epidemic.HealthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	for _, u := range s.users[runID] {
		if u.AgentID == agentID {
			return fmt.Errorf("user %d already exists in run %s", agentID, runID)
		}
	}
	s.users[runID] = append(s.users[runID], User{RunID: runID, AgentID: agentID, InitialState: state})
	return nil
}

// InsertContact appends a contact to a known run.
func (s *InMemoryStore) InsertContact(ctx context.Context, runID string, event epidemic.ContactEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	seq := len(s.contacts[runID]) + 1
	s.contacts[runID] = append(s.contacts[runID], Contact{RunID: runID, Seq: seq, ContactEvent: event})
	return nil
}

// ListUsers returns the agents of a run ordered by agent ID.
func (s *InMemoryStore) ListUsers(ctx context.Context, runID string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := append([]User(nil), s.users[runID]...)
	sort.Slice(users, func(i, j int) bool { return users[i].AgentID < users[j].AgentID })
	return users, nil
}

// ListContacts returns the contacts of a run in insertion order.
func (s *InMemoryStore) ListContacts(ctx context.Context, runID string) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Contact(nil), s.contacts[runID]...), nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
