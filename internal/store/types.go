package store

import "time"

// EventType is the closed enumeration of workflow lifecycle markers.
// Emit rejects anything outside this set before an id is allocated.
type EventType string

const (
	EventWorkflowStart    EventType = "workflow_start"
	EventWorkflowComplete EventType = "workflow_complete"
	EventWorkflowFailed   EventType = "workflow_failed"
	EventPhaseStart       EventType = "phase_start"
	EventPhaseComplete    EventType = "phase_complete"
	EventPhaseFailed      EventType = "phase_failed"
	EventStepStart        EventType = "step_start"
	EventStepComplete     EventType = "step_complete"
	EventStepFailed       EventType = "step_failed"
	EventArtifactCreated  EventType = "artifact_created"
	EventGitCommit        EventType = "git_commit"
	EventGitPush          EventType = "git_push"
	EventPRCreated        EventType = "pr_created"
	EventApprovalRequest  EventType = "approval_requested"
	EventApprovalGranted  EventType = "approval_granted"
	EventApprovalDenied   EventType = "approval_denied"
	EventTypeError        EventType = "error"
	EventInfo             EventType = "info"
)

var knownEventTypes = map[EventType]struct{}{
	EventWorkflowStart:    {},
	EventWorkflowComplete: {},
	EventWorkflowFailed:   {},
	EventPhaseStart:       {},
	EventPhaseComplete:    {},
	EventPhaseFailed:      {},
	EventStepStart:        {},
	EventStepComplete:     {},
	EventStepFailed:       {},
	EventArtifactCreated:  {},
	EventGitCommit:        {},
	EventGitPush:          {},
	EventPRCreated:        {},
	EventApprovalRequest:  {},
	EventApprovalGranted:  {},
	EventApprovalDenied:   {},
	EventTypeError:        {},
	EventInfo:             {},
}

// Valid reports whether t belongs to the closed enumeration.
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// TimestampLayout is ISO-8601 with millisecond precision, UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in the store's wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// EventError carries a structured error attached to an event.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is one immutable record in a run's log. Field order matters:
// records are re-marshaled on restore and must stay byte-stable.
type Event struct {
	EventID    int            `json:"event_id"`
	Type       EventType      `json:"type"`
	Timestamp  string         `json:"timestamp"`
	Phase      string         `json:"phase,omitempty"`
	Step       string         `json:"step,omitempty"`
	Status     string         `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Artifacts  []string       `json:"artifacts,omitempty"`
	Error      *EventError    `json:"error,omitempty"`
	User       string         `json:"user"`
	Source     string         `json:"source"`
}

// EventInput is the caller-supplied partial event. Emit materializes
// defaults (id, timestamp, attribution) over it.
type EventInput struct {
	Type       EventType
	Timestamp  string
	Phase      string
	Step       string
	Status     string
	Message    string
	DurationMS *int64
	Metadata   map[string]any
	Artifacts  []string
	Error      *EventError
	User       string
	Source     string
}

// Metadata holds a run's immutable creation-time facts (metadata.json).
type Metadata struct {
	Org       string `json:"org"`
	Project   string `json:"project"`
	WorkID    string `json:"work_id,omitempty"`
	CreatedAt string `json:"created_at"`
	Origin    string `json:"origin,omitempty"`
}

// State is a run's mutable summary (state.json), advanced by atomic
// replace only. last_event_id is an advisory high-water mark: two
// racing writers can land their state updates out of id order, so
// exact ordering must come from the event files, never from here.
type State struct {
	Status       string  `json:"status"`
	CurrentPhase string  `json:"current_phase,omitempty"`
	LastEventID  int     `json:"last_event_id"`
	StartedAt    string  `json:"started_at"`
	UpdatedAt    string  `json:"updated_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

// RunSummary is the denormalized projection cached by the run index.
// Never authoritative; state.json is the ground truth.
type RunSummary struct {
	RunID        string `json:"run_id"`
	WorkID       string `json:"work_id,omitempty"`
	Status       string `json:"status"`
	CurrentPhase string `json:"current_phase,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// ListFilters narrows a run listing. Empty fields match everything.
type ListFilters struct {
	Org     string
	Project string
	WorkID  string
	Status  string
}
