package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
)

func TestStateStore_ReadWriteRoundTrip(t *testing.T) {
	_, _, base := newTestEventStore(t)
	runDir := seedRun(t, base, "acme", "api", testUUID, "w-1")

	states := NewStateStore()
	completed := FormatTimestamp(time.Now())
	want := &State{
		Status:       "completed",
		CurrentPhase: "deploy",
		LastEventID:  7,
		StartedAt:    "2026-08-30T10:00:00.000Z",
		UpdatedAt:    completed,
		CompletedAt:  &completed,
	}
	require.NoError(t, states.Write(runDir, want))

	got, err := states.Read(runDir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStateStore_ReadMissingIsNotFound(t *testing.T) {
	states := NewStateStore()
	_, err := states.Read(t.TempDir())
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
}

func TestStateStore_AdvanceMovesHighWaterMark(t *testing.T) {
	_, _, base := newTestEventStore(t)
	runDir := seedRun(t, base, "acme", "api", testUUID, "w-1")

	states := NewStateStore()
	ts := FormatTimestamp(time.Now())
	require.NoError(t, states.Advance(runDir, 3, ts))

	st, err := states.Read(runDir)
	require.NoError(t, err)
	assert.Equal(t, 3, st.LastEventID)
	assert.Equal(t, ts, st.UpdatedAt)
}

func TestStateStore_AdvanceNeverRegresses(t *testing.T) {
	_, _, base := newTestEventStore(t)
	runDir := seedRun(t, base, "acme", "api", testUUID, "w-1")

	states := NewStateStore()
	require.NoError(t, states.Advance(runDir, 5, FormatTimestamp(time.Now())))

	// A slower writer landing its lower id afterwards must not pull the
	// mark backwards.
	lateTS := FormatTimestamp(time.Now())
	require.NoError(t, states.Advance(runDir, 2, lateTS))

	st, err := states.Read(runDir)
	require.NoError(t, err)
	assert.Equal(t, 5, st.LastEventID)
	assert.Equal(t, lateTS, st.UpdatedAt)
}

func TestStateStore_AdvanceWithoutStateIsPartialWrite(t *testing.T) {
	states := NewStateStore()
	err := states.Advance(t.TempDir(), 1, FormatTimestamp(time.Now()))
	assert.ErrorIs(t, err, kerrors.ErrPartialWrite)
}
