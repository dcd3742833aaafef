package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	base := t.TempDir()
	return NewIndex(base, NewStateStore(), DefaultFileLockConfig()), base
}

// seedRunAt is seedRun with an explicit creation timestamp so listing
// order is deterministic.
func seedRunAt(t *testing.T, base, org, project, uid, workID, status, createdAt string) {
	t.Helper()
	runDir := seedRun(t, base, org, project, uid, workID)

	meta := Metadata{Org: org, Project: project, WorkID: workID, CreatedAt: createdAt, Origin: "test"}
	writeJSONFile(t, MetadataPath(runDir), meta)
	state := State{Status: status, StartedAt: createdAt, UpdatedAt: createdAt}
	writeJSONFile(t, StatePath(runDir), state)
}

func TestIndex_RebuildAndList(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")
	seedRunAt(t, base, "acme", "web", testUUID2, "w-2", "completed", "2026-08-30T10:00:00.000Z")

	n, err := idx.Rebuild()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = os.Stat(IndexPath(base))
	require.NoError(t, err)

	runs, err := idx.List(ListFilters{}, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Equal(t, "acme/web/"+testUUID2, runs[0].RunID)
	assert.Equal(t, "acme/api/"+testUUID, runs[1].RunID)
	assert.Equal(t, "w-2", runs[0].WorkID)
	assert.Equal(t, "completed", runs[0].Status)
}

func TestIndex_ListWithoutIndexFallsBackToWalk(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")

	runs, err := idx.List(ListFilters{}, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "acme/api/"+testUUID, runs[0].RunID)
}

func TestIndex_CorruptIndexFallsBackToWalk(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")
	require.NoError(t, os.WriteFile(IndexPath(base), []byte("{nope"), 0644))

	runs, err := idx.List(ListFilters{}, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestIndex_FilterSemanticsMatchAcrossPaths(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")
	seedRunAt(t, base, "acme", "web", testUUID2, "w-2", "completed", "2026-08-30T10:00:00.000Z")
	seedRunAt(t, base, "globex", "api", "9b8a7c6d-5e4f-4d3c-8b2a-1f0e9d8c7b6a", "w-3", "completed", "2026-08-28T10:00:00.000Z")

	filters := []ListFilters{
		{Org: "acme"},
		{Org: "acme", Project: "api"},
		{Status: "completed"},
		{WorkID: "w-3"},
		{Org: "acme", Status: "failed"},
	}

	// First pass walks, second pass serves from the rebuilt cache. The
	// two paths must return identical results for identical filters.
	var walked [][]RunSummary
	for _, f := range filters {
		runs, err := idx.List(f, 0)
		require.NoError(t, err)
		walked = append(walked, runs)
	}

	_, err := idx.Rebuild()
	require.NoError(t, err)

	for i, f := range filters {
		runs, err := idx.List(f, 0)
		require.NoError(t, err)
		assert.Equal(t, walked[i], runs, "filter %+v", f)
	}

	assert.Len(t, walked[0], 2)
	assert.Len(t, walked[1], 1)
	assert.Len(t, walked[2], 2)
	assert.Len(t, walked[3], 1)
	assert.Empty(t, walked[4])
}

func TestIndex_ListLimit(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")
	seedRunAt(t, base, "acme", "web", testUUID2, "w-2", "completed", "2026-08-30T10:00:00.000Z")

	runs, err := idx.List(ListFilters{}, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "acme/web/"+testUUID2, runs[0].RunID)
}

func TestIndex_WalkSkipsForeignDirectories(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")

	// Non-grammar names and stray files must not surface as runs.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "Not-An-Org", "api", testUUID2), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "acme", "api", "not-a-uuid"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "stray.txt"), []byte("x"), 0644))

	runs, err := idx.List(ListFilters{}, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "acme/api/"+testUUID, runs[0].RunID)
}

func TestIndex_RebuildIsIdempotent(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")

	n1, err := idx.Rebuild()
	require.NoError(t, err)
	n2, err := idx.Rebuild()
	require.NoError(t, err)
	assert.Equal(t, n1, n2)

	runs, err := idx.List(ListFilters{}, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestIndex_StaleCacheServesCachedView(t *testing.T) {
	idx, base := newTestIndex(t)
	seedRunAt(t, base, "acme", "api", testUUID, "w-1", "running", "2026-08-29T10:00:00.000Z")

	_, err := idx.Rebuild()
	require.NoError(t, err)

	// A run created after the rebuild is invisible until the next
	// rebuild; the cache is best-effort, not a live view.
	seedRunAt(t, base, "acme", "web", testUUID2, "w-2", "running", FormatTimestamp(time.Now()))

	runs, err := idx.List(ListFilters{}, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = idx.Rebuild()
	require.NoError(t, err)
	runs, err = idx.List(ListFilters{}, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
