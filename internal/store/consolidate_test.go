package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
)

func newTestConsolidator(t *testing.T) (*EventStore, *Consolidator, string) {
	t.Helper()
	events, reader, base := newTestEventStore(t)
	return events, NewConsolidator(reader), base
}

func TestConsolidate_OneLinePerEvent(t *testing.T) {
	events, cons, base := newTestConsolidator(t)
	runDir := seedRun(t, base, "acme", "api", testUUID, "w-1")
	runID := "acme/api/" + testUUID

	types := []EventType{EventWorkflowStart, EventStepComplete, EventWorkflowComplete}
	for _, typ := range types {
		_, err := events.Emit(runID, EventInput{Type: typ})
		require.NoError(t, err)
	}

	out, err := cons.Consolidate(runID)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
	assert.Zero(t, out.Skipped)
	assert.Equal(t, ConsolidatedPath(runDir), out.OutputPath)

	data, err := os.ReadFile(out.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, out.SizeBytes, int64(len(data)))

	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	require.Len(t, lines, 3)
	for i, line := range lines {
		var ev Event
		require.NoError(t, json.Unmarshal(line, &ev))
		assert.Equal(t, i+1, ev.EventID)
		assert.Equal(t, types[i], ev.Type)
	}
}

func TestConsolidate_LinesMatchEventFileBytes(t *testing.T) {
	events, cons, base := newTestConsolidator(t)
	runDir := seedRun(t, base, "acme", "api", testUUID, "w-1")
	runID := "acme/api/" + testUUID

	dur := int64(250)
	_, err := events.Emit(runID, EventInput{
		Type:       EventStepComplete,
		Phase:      "build",
		Status:     "success",
		Metadata:   map[string]any{"cache": true},
		DurationMS: &dur,
	})
	require.NoError(t, err)

	out, err := cons.Consolidate(runID)
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)

	fileBytes, err := os.ReadFile(filepath.Join(EventsDir(runDir), EventFileName(1, EventStepComplete)))
	require.NoError(t, err)
	lineBytes, err := os.ReadFile(out.OutputPath)
	require.NoError(t, err)

	// Restore re-expands consolidated lines verbatim into event files,
	// so each line must be byte-identical to the original file.
	assert.Equal(t, string(fileBytes)+"\n", string(lineBytes))
}

func TestConsolidate_EmptyRunYieldsEmptyFile(t *testing.T) {
	_, cons, base := newTestConsolidator(t)
	runDir := seedRun(t, base, "acme", "api", testUUID, "w-1")

	out, err := cons.Consolidate("acme/api/" + testUUID)
	require.NoError(t, err)
	assert.Zero(t, out.Count)
	assert.Zero(t, out.SizeBytes)

	info, err := os.Stat(ConsolidatedPath(runDir))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestConsolidate_ReportsSkippedMalformed(t *testing.T) {
	events, cons, base := newTestConsolidator(t)
	runDir := seedRun(t, base, "acme", "api", testUUID, "w-1")
	runID := "acme/api/" + testUUID

	_, err := events.Emit(runID, EventInput{Type: EventInfo})
	require.NoError(t, err)
	_, err = events.Emit(runID, EventInput{Type: EventInfo})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(EventsDir(runDir), EventFileName(1, EventInfo)), []byte("not json"), 0644))

	out, err := cons.Consolidate(runID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, 1, out.Skipped)
}

func TestConsolidate_IsRerunnable(t *testing.T) {
	events, cons, base := newTestConsolidator(t)
	seedRun(t, base, "acme", "api", testUUID, "w-1")
	runID := "acme/api/" + testUUID

	_, err := events.Emit(runID, EventInput{Type: EventWorkflowStart})
	require.NoError(t, err)

	first, err := cons.Consolidate(runID)
	require.NoError(t, err)

	_, err = events.Emit(runID, EventInput{Type: EventWorkflowComplete})
	require.NoError(t, err)

	second, err := cons.Consolidate(runID)
	require.NoError(t, err)
	assert.Equal(t, first.Count+1, second.Count)
	assert.Greater(t, second.SizeBytes, first.SizeBytes)
}

func TestConsolidate_MissingRunIsNotFound(t *testing.T) {
	_, cons, _ := newTestConsolidator(t)
	_, err := cons.Consolidate("acme/api/" + testUUID)
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
}
