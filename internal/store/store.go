// Package store provides crash-safe persistence for the constraint
// registry using JSON files.
//
// Per the core's data-model contract, the constraint registry is the only
// state delegated to disk — positions, trackers, and the drawdown state
// machine are reconstructed from the exchange (or rebuilt fresh) on
// restart. Writes use atomic file replacement (write to .tmp, then
// rename) to prevent corruption from partial writes or crashes mid-save.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"arbcore/pkg/types"
)

// ConstraintRecord is the serialised form of a types.Constraint.
type ConstraintRecord struct {
	ID          uint64               `json:"id"`
	Kind        types.ConstraintKind `json:"kind"`
	LHS         []string             `json:"lhs"`
	RHS         []string             `json:"rhs"`
	Description string               `json:"description"`
}

// Store persists the constraint registry to a single JSON file in a
// designated directory. All operations are mutex-protected to prevent
// concurrent file corruption.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open creates a store backed by the given directory, using
// constraints.json as the registry file.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, "constraints.json")}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SaveConstraints atomically persists the full constraint registry. It
// writes to a .tmp file first, then renames over the target so the file
// is never left in a partial state.
func (s *Store) SaveConstraints(constraints []types.Constraint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]ConstraintRecord, 0, len(constraints))
	for _, c := range constraints {
		records = append(records, ConstraintRecord{
			ID: c.ID, Kind: c.Kind, LHS: c.LHS, RHS: c.RHS, Description: c.Description,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write constraints: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// LoadConstraints restores the constraint registry from disk. Returns
// nil, nil if no saved registry exists (fresh start).
func (s *Store) LoadConstraints() ([]ConstraintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read constraints: %w", err)
	}

	var records []ConstraintRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal constraints: %w", err)
	}
	return records, nil
}
