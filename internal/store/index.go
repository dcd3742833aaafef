package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
	"github.com/harunnryd/kiroku/internal/runid"
)

// Index is a rebuildable cache accelerating "list runs" queries. It is
// best-effort only: when the cache file is absent or unparseable, List
// transparently falls back to a full directory walk over state.json
// files, which is always the ground truth. Both paths apply identical
// filter semantics; only performance differs.
type Index struct {
	baseDir string
	states  *StateStore
	lockCfg FileLockConfig
}

type indexDocument struct {
	RebuiltAt string       `json:"rebuilt_at"`
	Runs      []RunSummary `json:"runs"`
}

// NewIndex creates an index over the base directory.
func NewIndex(baseDir string, states *StateStore, lockCfg FileLockConfig) *Index {
	return &Index{baseDir: baseDir, states: states, lockCfg: lockCfg}
}

// Rebuild walks every run under the base directory and atomically
// replaces the index file. A file lock serializes concurrent
// rebuilders; readers are never blocked because the replace is atomic.
func (x *Index) Rebuild() (int, error) {
	lock, err := AcquireFileLock(IndexLockPath(x.baseDir), x.lockCfg)
	if err != nil {
		return 0, kerrors.Wrap(err, "acquire index lock")
	}
	defer lock.Unlock()

	runs, err := x.walk()
	if err != nil {
		return 0, err
	}

	doc := indexDocument{
		RebuiltAt: FormatTimestamp(time.Now()),
		Runs:      runs,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, kerrors.Internal("marshal runs index: " + err.Error())
	}
	if err := atomic.WriteFile(IndexPath(x.baseDir), bytes.NewReader(data)); err != nil {
		return 0, kerrors.Wrap(err, "write runs index")
	}

	slog.Info("Runs index rebuilt", "runs", len(runs))
	return len(runs), nil
}

// List returns run summaries matching the filters, newest first,
// truncated to limit (0 means no truncation). The cached index is
// preferred; a missing or corrupt index falls back to the walk.
func (x *Index) List(filters ListFilters, limit int) ([]RunSummary, error) {
	runs, ok := x.fromCache()
	if !ok {
		var err error
		runs, err = x.walk()
		if err != nil {
			return nil, err
		}
	}

	filtered := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		if matchFilters(r, filters) {
			filtered = append(filtered, r)
		}
	}

	sortSummaries(filtered)

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (x *Index) fromCache() ([]RunSummary, bool) {
	data, err := os.ReadFile(IndexPath(x.baseDir))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Runs index unreadable, falling back to walk", "error", err)
		}
		return nil, false
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("Runs index corrupt, falling back to walk", "error", err)
		return nil, false
	}
	return doc.Runs, true
}

// walk reads every run's metadata.json and state.json under the fixed
// {org}/{project}/{uuid} layout. Entries that fail the run id grammar
// or that lack a parseable state are skipped.
func (x *Index) walk() ([]RunSummary, error) {
	var runs []RunSummary

	orgs, err := os.ReadDir(x.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, kerrors.Wrap(err, "list base directory")
	}

	for _, org := range orgs {
		if !org.IsDir() || !runid.ValidSegment(org.Name()) {
			continue
		}
		orgDir := filepath.Join(x.baseDir, org.Name())

		projects, err := os.ReadDir(orgDir)
		if err != nil {
			continue
		}
		for _, project := range projects {
			if !project.IsDir() || !runid.ValidSegment(project.Name()) {
				continue
			}
			projectDir := filepath.Join(orgDir, project.Name())

			uuids, err := os.ReadDir(projectDir)
			if err != nil {
				continue
			}
			for _, uid := range uuids {
				if !uid.IsDir() || !runid.ValidUUID(uid.Name()) {
					continue
				}
				runDir := filepath.Join(projectDir, uid.Name())

				summary, err := x.summarize(org.Name()+"/"+project.Name()+"/"+uid.Name(), runDir)
				if err != nil {
					slog.Warn("Skipping run during index walk", "dir", runDir, "error", err)
					continue
				}
				runs = append(runs, *summary)
			}
		}
	}

	return runs, nil
}

func (x *Index) summarize(runID, runDir string) (*RunSummary, error) {
	state, err := x.states.Read(runDir)
	if err != nil {
		return nil, err
	}
	meta, err := readMetadata(runDir)
	if err != nil {
		return nil, err
	}

	return &RunSummary{
		RunID:        runID,
		WorkID:       meta.WorkID,
		Status:       state.Status,
		CurrentPhase: state.CurrentPhase,
		CreatedAt:    meta.CreatedAt,
		UpdatedAt:    state.UpdatedAt,
	}, nil
}

func matchFilters(r RunSummary, f ListFilters) bool {
	org, project := splitRunID(r.RunID)
	if f.Org != "" && f.Org != org {
		return false
	}
	if f.Project != "" && f.Project != project {
		return false
	}
	if f.WorkID != "" && f.WorkID != r.WorkID {
		return false
	}
	if f.Status != "" && f.Status != r.Status {
		return false
	}
	return true
}

func splitRunID(id string) (org, project string) {
	first := -1
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			if first == -1 {
				first = i
				continue
			}
			return id[:first], id[first+1 : i]
		}
	}
	return id, ""
}

// sortSummaries orders newest creation first; ties break on run id so
// repeated listings are stable.
func sortSummaries(runs []RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt != runs[j].CreatedAt {
			return runs[i].CreatedAt > runs[j].CreatedAt
		}
		return runs[i].RunID < runs[j].RunID
	})
}
