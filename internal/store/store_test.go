package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// storeFactories lets every behavioral test run against both backends.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewInMemoryStore() },
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "crowdsim.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			return s
		},
	}
}

func testRun(id string) Run {
	return Run{
		ID:            id,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Seed:          42,
		AgentCount:    3,
		Beta:          0.5,
		ContactRadius: 10,
		AttractorX:    350,
		AttractorY:    350,
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			if err := s.CreateRun(ctx, testRun("run-1")); err != nil {
				t.Fatalf("CreateRun() error = %v", err)
			}

			got, err := s.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if got.Seed != 42 || got.AgentCount != 3 || got.Beta != 0.5 {
				t.Errorf("GetRun() = %+v, want seed 42, 3 agents, beta 0.5", got)
			}
			if got.FinishedAt != nil {
				t.Error("unfinished run should have nil FinishedAt")
			}

			summary := RunSummary{
				Ticks:         17,
				Converged:     true,
				Tally:         epidemic.Tally{Susceptible: 1, Infected: 2},
				TotalContacts: 2,
			}
			if err := s.FinishRun(ctx, "run-1", summary); err != nil {
				t.Fatalf("FinishRun() error = %v", err)
			}

			got, err = s.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if got.FinishedAt == nil {
				t.Error("finished run should have FinishedAt")
			}
			if got.Summary != summary {
				t.Errorf("Summary = %+v, want %+v", got.Summary, summary)
			}
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetRun() error = %v, want ErrNotFound", err)
			}
			if err := s.FinishRun(ctx, "missing", RunSummary{}); !errors.Is(err, ErrNotFound) {
				t.Errorf("FinishRun() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			for i, id := range []string{"a", "b", "c"} {
				r := testRun(id)
				r.CreatedAt = base.Add(time.Duration(i) * time.Hour)
				if err := s.CreateRun(ctx, r); err != nil {
					t.Fatalf("CreateRun(%s) error = %v", id, err)
				}
			}

			runs, err := s.ListRuns(ctx, 0)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != "c,b,a" {
				t.Errorf("ListRuns() order = %v, want [c b a]", ids)
			}

			limited, err := s.ListRuns(ctx, 2)
			if err != nil {
				t.Fatalf("ListRuns(2) error = %v", err)
			}
			if len(limited) != 2 {
				t.Errorf("ListRuns(2) returned %d runs, want 2", len(limited))
			}
		})
	}
}

func TestStore_UsersAndContacts(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			if err := s.CreateRun(ctx, testRun("run-1")); err != nil {
				t.Fatalf("CreateRun() error = %v", err)
			}
			states := map[int]epidemic.HealthState{
				2: epidemic.Infected,
				1: epidemic.Susceptible,
				3: epidemic.Recovered,
			}
			for id, st := range states {
				if err := s.CreateUser(ctx, "run-1", id, st); err != nil {
					t.Fatalf("CreateUser(%d) error = %v", id, err)
				}
			}
			if err := s.CreateUser(ctx, "run-1", 1, epidemic.Infected); err == nil {
				t.Error("CreateUser() with duplicate agent should fail")
			}

			users, err := s.ListUsers(ctx, "run-1")
			if err != nil {
				t.Fatalf("ListUsers() error = %v", err)
			}
			if len(users) != 3 {
				t.Fatalf("ListUsers() returned %d users, want 3", len(users))
			}
			for i, u := range users {
				if u.AgentID != i+1 {
					t.Errorf("users[%d].AgentID = %d, want %d", i, u.AgentID, i+1)
				}
				if u.InitialState != states[u.AgentID] {
					t.Errorf("agent %d state = %v, want %v", u.AgentID, u.InitialState, states[u.AgentID])
				}
			}

			events := []epidemic.ContactEvent{
				{Source: 2, Target: 1, Contaminated: true, Tick: 4},
				{Source: 2, Target: 3, Contaminated: false, Tick: 5},
			}
			for _, ev := range events {
				if err := s.InsertContact(ctx, "run-1", ev); err != nil {
					t.Fatalf("InsertContact() error = %v", err)
				}
			}

			contacts, err := s.ListContacts(ctx, "run-1")
			if err != nil {
				t.Fatalf("ListContacts() error = %v", err)
			}
			if len(contacts) != len(events) {
				t.Fatalf("ListContacts() returned %d, want %d", len(contacts), len(events))
			}
			for i, c := range contacts {
				if c.Seq != i+1 {
					t.Errorf("contacts[%d].Seq = %d, want %d", i, c.Seq, i+1)
				}
				if c.ContactEvent != events[i] {
					t.Errorf("contacts[%d] = %v, want %v", i, c.ContactEvent, events[i])
				}
			}
		})
	}
}

func TestStore_RecordsRequireRun(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			if err := s.CreateUser(ctx, "ghost", 1, epidemic.Susceptible); err == nil {
				t.Error("CreateUser() for unknown run should fail")
			}
			if err := s.InsertContact(ctx, "ghost", epidemic.ContactEvent{Source: 1, Target: 2}); err == nil {
				t.Error("InsertContact() for unknown run should fail")
			}
		})
	}
}

func TestRunSink_WritesThroughStore(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	runID := NewRunID()
	if err := s.CreateRun(ctx, testRun(runID)); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	var sink epidemic.EventSink = NewRunSink(ctx, s, runID)
	if err := sink.CreateUser(1, epidemic.Infected); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := sink.InsertContact(epidemic.ContactEvent{Source: 1, Target: 2, Tick: 1}); err != nil {
		t.Fatalf("InsertContact() error = %v", err)
	}

	users, _ := s.ListUsers(ctx, runID)
	contacts, _ := s.ListContacts(ctx, runID)
	if len(users) != 1 || len(contacts) != 1 {
		t.Errorf("got %d users and %d contacts, want 1 and 1", len(users), len(contacts))
	}
}

func TestNewRunID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRunID()
		if seen[id] {
			t.Fatalf("NewRunID() returned duplicate %s", id)
		}
		seen[id] = true
	}
}

func TestExportContactsJSONL(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	if err := s.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	_ = s.InsertContact(ctx, "run-1", epidemic.ContactEvent{Source: 1, Target: 2, Contaminated: true, Tick: 3})
	_ = s.InsertContact(ctx, "run-1", epidemic.ContactEvent{Source: 1, Target: 3, Tick: 3})

	var buf bytes.Buffer
	n, err := ExportContactsJSONL(ctx, s, "run-1", &buf)
	if err != nil {
		t.Fatalf("ExportContactsJSONL() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ExportContactsJSONL() = %d, want 2", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 is not JSON: %v", err)
	}
	for _, key := range []string{"run_id", "seq", "source", "target", "contaminated", "tick"} {
		if _, ok := first[key]; !ok {
			t.Errorf("exported line missing key %q: %s", key, lines[0])
		}
	}
}
