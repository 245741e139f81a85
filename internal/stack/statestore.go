package stack

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StateStore persists the stack state as a local JSON file between runs.
// Writes go through a temp file and rename so a crash mid-write never leaves
// a truncated state file.
type StateStore struct {
	path string
}

// NewStateStore returns a store backed by the given file path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// DefaultStatePath returns the default state file path for an app.
func DefaultStatePath(app string) string {
	return fmt.Sprintf(".agentstack/%s.state.json", appSlug(app))
}

// Load reads the persisted state. A missing file returns (nil, nil): the
// stack has never been deployed.
func (s *StateStore) Load() (*StackState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}
	var state StackState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", s.path, err)
	}
	return &state, nil
}

// Save writes the state atomically, creating the parent directory if needed.
func (s *StateStore) Save(state *StackState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// Remove deletes the state file. A missing file is not an error.
func (s *StateStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state %s: %w", s.path, err)
	}
	return nil
}
