package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harunnryd/kiroku/internal/runid"
)

const (
	testUUID  = "3f1b2a9c-5d4e-4a7b-9c8d-1e2f3a4b5c6d"
	testUUID2 = "7a6b5c4d-3e2f-4a1b-8c9d-0e1f2a3b4c5d"
)

// seedRun lays down the directory an external orchestrator would have
// created: metadata.json, state.json, and an empty events/ directory.
func seedRun(t *testing.T, base, org, project, uid, workID string) string {
	t.Helper()

	runDir := filepath.Join(base, org, project, uid)
	require.NoError(t, os.MkdirAll(EventsDir(runDir), 0755))

	now := FormatTimestamp(time.Now())
	meta := Metadata{Org: org, Project: project, WorkID: workID, CreatedAt: now, Origin: "test"}
	writeJSONFile(t, MetadataPath(runDir), meta)

	state := State{Status: "running", StartedAt: now, UpdatedAt: now}
	writeJSONFile(t, StatePath(runDir), state)

	return runDir
}

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	require.NoError(t, enc.Encode(v))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func newTestValidator(t *testing.T) (*runid.Validator, string) {
	t.Helper()
	base := t.TempDir()
	v, err := runid.NewValidator(base)
	require.NoError(t, err)
	return v, base
}

func newTestEventStore(t *testing.T) (*EventStore, *Reader, string) {
	t.Helper()
	v, base := newTestValidator(t)
	states := NewStateStore()
	alloc := NewAllocator(30, 2*time.Millisecond)
	events := NewEventStore(v, alloc, states, "tester", "kiroku-test")
	reader := NewReader(v, states)
	return events, reader, base
}
