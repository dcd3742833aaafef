package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
	"github.com/harunnryd/kiroku/internal/runid"
)

// Reader provides ordered, lazy read access over a run's event files.
// Iteration is restartable: every call re-lists and re-sorts the
// directory, so there is no cursor state to invalidate and the sequence
// is always consistent with current disk state.
type Reader struct {
	validator *runid.Validator
	states    *StateStore
}

// NewReader creates a reader.
func NewReader(validator *runid.Validator, states *StateStore) *Reader {
	return &Reader{validator: validator, states: states}
}

type eventFileRef struct {
	id   int
	name string
}

// EventIterator walks a sorted snapshot of the events/ listing taken at
// creation time, holding at most one event in memory. Malformed files
// are skipped, not fatal; the skip count is observable via Skipped.
type EventIterator struct {
	dir     string
	files   []eventFileRef
	pos     int
	skipped int
}

// Events returns an iterator over the run's events in id order.
func (r *Reader) Events(id string) (*EventIterator, error) {
	_, runDir, err := r.validator.ResolvePath(id)
	if err != nil {
		return nil, err
	}

	return r.eventsInDir(runDir)
}

func (r *Reader) eventsInDir(runDir string) (*EventIterator, error) {
	eventsDir := EventsDir(runDir)
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// A run with no events/ directory yet has an empty log.
			return &EventIterator{dir: eventsDir}, nil
		}
		return nil, kerrors.Wrap(err, "list events directory")
	}

	files := make([]eventFileRef, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, _, ok := ParseEventFileName(entry.Name()); ok {
			files = append(files, eventFileRef{id: id, name: entry.Name()})
		}
	}

	// Numeric sort by parsed id. Lexical filename order matches for the
	// zero-padded common case but breaks past id 999.
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })

	return &EventIterator{dir: eventsDir, files: files}, nil
}

// Next returns the next well-formed event, or false when exhausted.
func (it *EventIterator) Next() (*Event, bool) {
	for it.pos < len(it.files) {
		ref := it.files[it.pos]
		it.pos++

		data, err := os.ReadFile(filepath.Join(it.dir, ref.name))
		if err != nil {
			it.skipped++
			slog.Warn("Skipping unreadable event file", "file", ref.name, "error", err)
			continue
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			it.skipped++
			slog.Warn("Skipping malformed event file", "file", ref.name, "error", err)
			continue
		}
		return &ev, true
	}
	return nil, false
}

// Skipped returns how many files were passed over as malformed or
// unreadable so far.
func (it *EventIterator) Skipped() int {
	return it.skipped
}

// Len returns the number of event files in the snapshot.
func (it *EventIterator) Len() int {
	return len(it.files)
}

// RunInfo is the point-lookup result for one run.
type RunInfo struct {
	RunID      string    `json:"run_id"`
	Metadata   *Metadata `json:"metadata"`
	State      *State    `json:"state"`
	EventCount *int      `json:"event_count,omitempty"`
}

// GetRun returns a run's metadata and state. When includeEventCount is
// set, the count comes from listing the event files, not reading them.
func (r *Reader) GetRun(id string, includeEventCount bool) (*RunInfo, error) {
	rid, runDir, err := r.validator.ResolvePath(id)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return nil, kerrors.NotFound(fmt.Sprintf("run %s", id))
	}

	meta, err := readMetadata(runDir)
	if err != nil {
		return nil, err
	}
	state, err := r.states.Read(runDir)
	if err != nil {
		return nil, err
	}

	out := &RunInfo{RunID: rid.String(), Metadata: meta, State: state}

	if includeEventCount {
		it, err := r.eventsInDir(runDir)
		if err != nil {
			return nil, err
		}
		count := it.Len()
		out.EventCount = &count
	}
	return out, nil
}

func readMetadata(runDir string) (*Metadata, error) {
	data, err := os.ReadFile(MetadataPath(runDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, kerrors.NotFound(fmt.Sprintf("metadata.json in %s", runDir))
		}
		return nil, kerrors.Wrap(err, "read metadata")
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, kerrors.Internal(fmt.Sprintf("parse metadata.json in %s: %v", runDir, err))
	}
	return &meta, nil
}
