package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ExportContactsJSONL writes the contacts of a run to w, one JSON object
// per line.
func ExportContactsJSONL(ctx context.Context, s Store, runID string, w io.Writer) (int, error) {
	contacts, err := s.ListContacts(ctx, runID)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, c := range contacts {
		if err := enc.Encode(c); err != nil {
			return 0, fmt.Errorf("failed to encode contact %d: %w", c.Seq, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush contacts: %w", err)
	}
	return len(contacts), nil
}

// ExportContactsFile writes the contacts of a run to a JSONL file,
// creating parent directories as needed.
func ExportContactsFile(ctx context.Context, s Store, runID, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := ExportContactsJSONL(ctx, s, runID, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close file: %w", cerr)
	}
	return n, err
}
