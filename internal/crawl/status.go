package crawl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the lifecycle position of one crawl.
type State string

// Crawl states. A crawl whose output artifact exists is complete no matter
// what the marker says.
const (
	StateNotStarted State = "NOT_STARTED"
	StateRunning    State = "RUNNING"
	StateComplete   State = "COMPLETE"
)

// Status is the marker persisted next to a crawl's output artifact.
type Status struct {
	RunID      string     `json:"run_id"`
	Crawl      string     `json:"crawl"`
	State      State      `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int        `json:"total"`
	Fetched    int        `json:"fetched"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

// ReadStatus loads a marker file. A missing file yields a NOT_STARTED status.
func ReadStatus(path string) (Status, error) {
	// #nosec G304 -- marker paths come from the artifact store.
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Status{State: StateNotStarted}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read status %s: %w", path, err)
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("decode status %s: %w", path, err)
	}
	return st, nil
}

// WriteStatus replaces the marker file atomically.
func WriteStatus(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-status-*")
	if err != nil {
		return fmt.Errorf("create temp status: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close status: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename status: %w", err)
	}
	return nil
}
