// Package backup archives simulation runs from a store into compressed
// files and restores them into another store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/crowdsim/internal/constants"
	"github.com/nvandessel/crowdsim/internal/store"
)

// Archive is the payload of a backup file.
type Archive struct {
	Version   int          `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	Runs      []RunArchive `json:"runs"`
}

// RunArchive is one run with everything recorded for it.
type RunArchive struct {
	Run      store.Run       `json:"run"`
	Users    []store.User    `json:"users"`
	Contacts []store.Contact `json:"contacts"`
}

// ContactCount returns the number of contacts across all runs.
func (a *Archive) ContactCount() int {
	n := 0
	for _, r := range a.Runs {
		n += len(r.Contacts)
	}
	return n
}

// DefaultBackupDir returns the default backup directory (~/.crowdsim/backups/).
func DefaultBackupDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName, "backups"), nil
}

// Collect reads the given runs from s. No run IDs means every run.
func Collect(ctx context.Context, s store.Store, runIDs ...string) (*Archive, error) {
	if len(runIDs) == 0 {
		runs, err := s.ListRuns(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	archive := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now(),
		Runs:      make([]RunArchive, 0, len(runIDs)),
	}
	for _, id := range runIDs {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		users, err := s.ListUsers(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to list users of %s: %w", id, err)
		}
		contacts, err := s.ListContacts(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to list contacts of %s: %w", id, err)
		}
		archive.Runs = append(archive.Runs, RunArchive{Run: *run, Users: users, Contacts: contacts})
	}
	return archive, nil
}

// Backup collects runs from s and writes them to outputPath.
func Backup(ctx context.Context, s store.Store, outputPath string, runIDs ...string) (*Archive, error) {
	archive, err := Collect(ctx, s, runIDs...)
	if err != nil {
		return nil, err
	}
	if err := Write(outputPath, archive); err != nil {
		return nil, err
	}
	return archive, nil
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored     int `json:"runs_restored"`
	RunsSkipped      int `json:"runs_skipped"`
	UsersRestored    int `json:"users_restored"`
	ContactsRestored int `json:"contacts_restored"`
}

// Restore imports the runs of a backup file into s. Runs whose ID already
// exists are skipped whole.
func Restore(ctx context.Context, s store.Store, inputPath string) (*RestoreResult, error) {
	archive, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, ra := range archive.Runs {
		_, err := s.GetRun(ctx, ra.Run.ID)
		if err == nil {
			result.RunsSkipped++
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to check run %s: %w", ra.Run.ID, err)
		}

		if err := s.CreateRun(ctx, ra.Run); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", ra.Run.ID, err)
		}
		for _, u := range ra.Users {
			if err := s.CreateUser(ctx, ra.Run.ID, u.AgentID, u.InitialState); err != nil {
				return nil, fmt.Errorf("failed to restore user %d of %s: %w", u.AgentID, ra.Run.ID, err)
			}
			result.UsersRestored++
		}
		for _, c := range ra.Contacts {
			if err := s.InsertContact(ctx, ra.Run.ID, c.ContactEvent); err != nil {
				return nil, fmt.Errorf("failed to restore contact %d of %s: %w", c.Seq, ra.Run.ID, err)
			}
			result.ContactsRestored++
		}
		if ra.Run.FinishedAt != nil {
			if err := s.FinishRun(ctx, ra.Run.ID, ra.Run.Summary); err != nil {
				return nil, fmt.Errorf("failed to restore summary of %s: %w", ra.Run.ID, err)
			}
		}
		result.RunsRestored++
	}
	return result, nil
}

// GenerateBackupPath creates a timestamped backup filename in the given directory.
func GenerateBackupPath(dir string) string {
	ts := time.Now().Format("20060102-150405.000")
	return filepath.Join(dir, fmt.Sprintf("%s%s%s", filePrefix, ts, fileSuffix))
}
