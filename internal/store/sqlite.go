package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/crowdsim/internal/epidemic"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes
// its schema. Parent directories are created as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

// CreateRun inserts a new run row.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, seed, agent_count, beta, contact_radius, attractor_x, attractor_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano), run.Seed, run.AgentCount,
		run.Beta, run.ContactRadius, run.AttractorX, run.AttractorY)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, summary RunSummary) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, ticks = ?, converged = ?,
			susceptible = ?, infected = ?, recovered = ?, total_contacts = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), summary.Ticks, boolToInt(summary.Converged),
		summary.Tally.Susceptible, summary.Tally.Infected, summary.Tally.Recovered,
		summary.TotalContacts, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, created_at, seed, agent_count, beta, contact_radius, attractor_x, attractor_y,
	finished_at, ticks, converged, susceptible, infected, recovered, total_contacts`

// GetRun returns the run with the given ID, or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		createdAt  string
		finishedAt sql.NullString
		converged  int
	)
	err := row.Scan(&run.ID, &createdAt, &run.Seed, &run.AgentCount, &run.Beta,
		&run.ContactRadius, &run.AttractorX, &run.AttractorY,
		&finishedAt, &run.Summary.Ticks, &converged,
		&run.Summary.Tally.Susceptible, &run.Summary.Tally.Infected, &run.Summary.Tally.Recovered,
		&run.Summary.TotalContacts)
	if err != nil {
		return nil, err
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	run.Summary.Converged = converged != 0
	return &run, nil
}

// CreateUser records an agent and its initial state.
func (s *SQLiteStore) CreateUser(ctx context.Context, runID string, agentID int, state epidemic.HealthState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (run_id, agent_id, initial_state) VALUES (?, ?, ?)`,
		runID, agentID, state.String())
	if err != nil {
		return fmt.Errorf("failed to create user %d: %w", agentID, err)
	}
	return nil
}

// InsertContact appends a contact to the run, numbering it after the
// contacts already stored.
func (s *SQLiteStore) InsertContact(ctx context.Context, runID string, event epidemic.ContactEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (run_id, seq, source_id, target_id, contaminated, tick)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ? FROM contacts WHERE run_id = ?`,
		runID, event.Source, event.Target, boolToInt(event.Contaminated), event.Tick, runID)
	if err != nil {
		return fmt.Errorf("failed to insert contact %s: %w", event, err)
	}
	return nil
}

// ListUsers returns the agents of a run ordered by agent ID.
func (s *SQLiteStore) ListUsers(ctx context.Context, runID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, initial_state FROM users WHERE run_id = ? ORDER BY agent_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var (
			u     = User{RunID: runID}
			state string
		)
		if err := rows.Scan(&u.AgentID, &state); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.InitialState, err = epidemic.ParseHealthState(state)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", u.AgentID, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListContacts returns the contacts of a run in insertion order.
func (s *SQLiteStore) ListContacts(ctx context.Context, runID string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, source_id, target_id, contaminated, tick
		FROM contacts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var (
			c            = Contact{RunID: runID}
			contaminated int
		)
		if err := rows.Scan(&c.Seq, &c.Source, &c.Target, &contaminated, &c.Tick); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.Contaminated = contaminated != 0
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
