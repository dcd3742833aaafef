package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
	"github.com/harunnryd/kiroku/internal/runid"
)

// EventStore appends immutable event records to a run's log. It never
// rewrites or deletes an individual event file; the events/ directory
// is append-only from this component's perspective.
type EventStore struct {
	validator *runid.Validator
	alloc     *Allocator
	states    *StateStore
	user      string
	source    string
}

// Emitted reports a successful (or partially successful) emit.
type Emitted struct {
	EventID int
	Path    string
	Event   Event
}

// NewEventStore creates an event store. user and source are the fixed
// attribution fallbacks applied when the caller supplies none.
func NewEventStore(validator *runid.Validator, alloc *Allocator, states *StateStore, user, source string) *EventStore {
	if user == "" {
		user = "system"
	}
	if source == "" {
		source = "kiroku"
	}
	return &EventStore{
		validator: validator,
		alloc:     alloc,
		states:    states,
		user:      user,
		source:    source,
	}
}

// Emit validates, allocates an id, writes the event file, and advances
// the run state. Validation failures never touch disk and never burn an
// id. If the event file lands but the state update fails, Emit returns
// the written event together with an ErrPartialWrite: the event is
// durable and must not be resubmitted, but last_event_id is stale until
// a later state update catches it up.
func (e *EventStore) Emit(id string, in EventInput) (*Emitted, error) {
	if !in.Type.Valid() {
		return nil, kerrors.Validation(fmt.Sprintf("unknown event type %q", in.Type))
	}

	_, runDir, err := e.validator.ResolvePath(id)
	if err != nil {
		return nil, err
	}

	// A missing run directory is a distinct condition from a malformed id.
	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return nil, kerrors.NotFound(fmt.Sprintf("run %s", id))
	}

	eventID, err := e.alloc.NextID(runDir)
	if err != nil {
		return nil, err
	}

	event := e.materialize(eventID, in)

	data, err := json.Marshal(event)
	if err != nil {
		return nil, kerrors.Internal(fmt.Sprintf("marshal event %d: %v", eventID, err))
	}

	// Plain create, not atomic-replace: the filename is unique per id,
	// so no concurrent writer can target the same file.
	path := filepath.Join(EventsDir(runDir), EventFileName(eventID, event.Type))
	if err := writeExclusive(path, string(data)); err != nil {
		return nil, kerrors.Wrap(err, fmt.Sprintf("write event %d", eventID))
	}

	emitted := &Emitted{EventID: eventID, Path: path, Event: event}

	if err := e.states.Advance(runDir, eventID, event.Timestamp); err != nil {
		slog.Warn("Event written but state update failed",
			"run", id, "event_id", eventID, "error", err)
		return emitted, err
	}

	slog.Debug("Event emitted", "run", id, "event_id", eventID, "type", event.Type)
	return emitted, nil
}

// materialize builds the complete record from the partial input.
func (e *EventStore) materialize(eventID int, in EventInput) Event {
	ts := in.Timestamp
	if ts == "" {
		ts = FormatTimestamp(time.Now())
	}
	user := in.User
	if user == "" {
		user = e.user
	}
	source := in.Source
	if source == "" {
		source = e.source
	}

	return Event{
		EventID:    eventID,
		Type:       in.Type,
		Timestamp:  ts,
		Phase:      in.Phase,
		Step:       in.Step,
		Status:     in.Status,
		Message:    in.Message,
		DurationMS: in.DurationMS,
		Metadata:   in.Metadata,
		Artifacts:  in.Artifacts,
		Error:      in.Error,
		User:       user,
		Source:     source,
	}
}
