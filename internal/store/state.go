package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/natefinch/atomic"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
)

// StateStore mutates a run's state.json summary. Every mutation goes
// through an atomic temp-write-then-rename, so readers never observe a
// torn document.
type StateStore struct{}

// NewStateStore creates a state store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// Read loads state.json from a run directory.
func (s *StateStore) Read(runDir string) (*State, error) {
	data, err := os.ReadFile(StatePath(runDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, kerrors.NotFound(fmt.Sprintf("state.json in %s", runDir))
		}
		return nil, kerrors.Wrap(err, "read state")
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, kerrors.Internal(fmt.Sprintf("parse state.json in %s: %v", runDir, err))
	}
	return &st, nil
}

// Write replaces state.json atomically.
func (s *StateStore) Write(runDir string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return kerrors.Internal(fmt.Sprintf("marshal state: %v", err))
	}
	if err := atomic.WriteFile(StatePath(runDir), bytes.NewReader(data)); err != nil {
		return kerrors.Wrap(err, "write state")
	}
	return nil
}

// Advance records that the event with eventID has been acknowledged.
// last_event_id only moves upward: two writers racing on distinct ids
// can land out of order, and the high-water mark must not regress.
// A failure here is a PartialWriteError condition for the caller: the
// event file is durable but the summary is stale.
func (s *StateStore) Advance(runDir string, eventID int, timestamp string) error {
	st, err := s.Read(runDir)
	if err != nil {
		return kerrors.PartialWrite(fmt.Sprintf("event %d written but state read failed: %v", eventID, err))
	}

	if eventID > st.LastEventID {
		st.LastEventID = eventID
	}
	st.UpdatedAt = timestamp

	if err := s.Write(runDir, st); err != nil {
		return kerrors.PartialWrite(fmt.Sprintf("event %d written but state update failed: %v", eventID, err))
	}
	return nil
}
