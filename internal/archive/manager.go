package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
	"github.com/harunnryd/kiroku/internal/runid"
	"github.com/harunnryd/kiroku/internal/store"
)

// Options configures archival behavior.
type Options struct {
	// Prefix is prepended to every object key, mirroring the local
	// layout under it.
	Prefix string
	// ConsolidateOnArchive runs the consolidator before uploading so a
	// single events.jsonl travels instead of many small files.
	ConsolidateOnArchive bool
	// CleanupLocal deletes the local events/ subtree and events.jsonl
	// after at least one file was successfully archived. metadata.json
	// and state.json are never deleted locally.
	CleanupLocal bool
}

// Manager uploads run artifacts to object storage and restores them.
type Manager struct {
	objects      ObjectStore
	validator    *runid.Validator
	consolidator *store.Consolidator
	opts         Options
}

// ArchiveOutcome reports which files made it to object storage. On a
// partial failure it accompanies an ErrArchive so retries can be scoped
// to the remainder.
type ArchiveOutcome struct {
	S3Path        string
	FilesArchived []string
	SizeBytes     int64
}

// RestoreOutcome reports a completed restore.
type RestoreOutcome struct {
	LocalPath     string
	FilesRestored []string
}

// ArchivedRun is one discovered run in object storage.
type ArchivedRun struct {
	RunID  string `json:"run_id"`
	S3Path string `json:"s3_path"`
}

// NewManager creates an archive manager.
func NewManager(objects ObjectStore, validator *runid.Validator, consolidator *store.Consolidator, opts Options) *Manager {
	return &Manager{
		objects:      objects,
		validator:    validator,
		consolidator: consolidator,
		opts:         opts,
	}
}

// Archive uploads metadata.json, state.json, and either the
// consolidated events.jsonl or the individual event files. Uploads are
// tracked independently: one failure does not abort the others, and the
// outcome lists exactly which files succeeded.
func (m *Manager) Archive(ctx context.Context, id string) (*ArchiveOutcome, error) {
	rid, runDir, err := m.validator.ResolvePath(id)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return nil, kerrors.NotFound(fmt.Sprintf("run %s", id))
	}

	if m.opts.ConsolidateOnArchive {
		if _, err := m.consolidator.Consolidate(id); err != nil {
			slog.Warn("Consolidation before archive failed, syncing individual event files",
				"run", id, "error", err)
		}
	}

	runPrefix := store.S3RunPrefix(m.opts.Prefix, rid)
	outcome := &ArchiveOutcome{S3Path: runPrefix}
	var failures []string

	upload := func(localPath, key string) {
		size, err := m.uploadFile(ctx, localPath, key)
		if err != nil {
			slog.Error("Archive upload failed", "run", id, "key", key, "error", err)
			failures = append(failures, path.Base(key))
			return
		}
		outcome.FilesArchived = append(outcome.FilesArchived, strings.TrimPrefix(key, runPrefix))
		outcome.SizeBytes += size
	}

	upload(store.MetadataPath(runDir), runPrefix+store.MetadataFile)
	upload(store.StatePath(runDir), runPrefix+store.StateFile)

	consolidated := store.ConsolidatedPath(runDir)
	if _, err := os.Stat(consolidated); err == nil {
		upload(consolidated, runPrefix+store.ConsolidatedFile)
	} else {
		// Fallback: sync the individual event files.
		entries, err := os.ReadDir(store.EventsDir(runDir))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			failures = append(failures, store.EventsDirName)
		}
		for _, entry := range entries {
			if _, _, ok := store.ParseEventFileName(entry.Name()); !ok {
				continue
			}
			upload(filepath.Join(store.EventsDir(runDir), entry.Name()),
				runPrefix+store.EventsDirName+"/"+entry.Name())
		}
	}

	if m.opts.CleanupLocal && len(outcome.FilesArchived) > 0 {
		m.cleanupLocal(id, runDir)
	}

	if len(failures) > 0 {
		return outcome, kerrors.Archive(fmt.Sprintf("run %s: %d of %d files failed (%s)",
			id, len(failures), len(failures)+len(outcome.FilesArchived), strings.Join(failures, ", ")))
	}

	slog.Info("Run archived", "run", id, "files", len(outcome.FilesArchived), "bytes", outcome.SizeBytes)
	return outcome, nil
}

func (m *Manager) uploadFile(ctx context.Context, localPath, key string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	contentType := "application/json"
	if strings.HasSuffix(key, ".jsonl") {
		contentType = "application/x-ndjson"
	}

	if err := m.objects.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// cleanupLocal removes the events subtree and the consolidated file.
// Never metadata.json or state.json.
func (m *Manager) cleanupLocal(id, runDir string) {
	if err := os.RemoveAll(store.EventsDir(runDir)); err != nil {
		slog.Error("Failed to remove local events directory", "run", id, "error", err)
	}
	if err := os.Remove(store.ConsolidatedPath(runDir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Failed to remove local consolidated file", "run", id, "error", err)
	}
	slog.Info("Local event files cleaned up after archive", "run", id)
}

// Restore syncs all objects under the run's prefix back to the local
// run directory. If a consolidated events.jsonl came down and the local
// events/ directory is empty, the JSONL is expanded back into
// individual per-event files, so restored runs are indistinguishable
// from never-archived ones to the reader.
func (m *Manager) Restore(ctx context.Context, id string) (*RestoreOutcome, error) {
	rid, runDir, err := m.validator.ResolvePath(id)
	if err != nil {
		return nil, err
	}

	runPrefix := store.S3RunPrefix(m.opts.Prefix, rid)
	objects, err := m.objects.ListObjects(ctx, runPrefix)
	if err != nil {
		return nil, kerrors.Archive(fmt.Sprintf("list %s: %v", runPrefix, err))
	}
	if len(objects) == 0 {
		return nil, kerrors.NotFound(fmt.Sprintf("no archived objects for run %s", id))
	}

	outcome := &RestoreOutcome{LocalPath: runDir}
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, runPrefix)
		local, ok := safeJoin(runDir, rel)
		if !ok {
			slog.Warn("Skipping archived object escaping run directory", "key", obj.Key)
			continue
		}
		if err := m.downloadFile(ctx, obj.Key, local); err != nil {
			return outcome, kerrors.Archive(fmt.Sprintf("restore %s: %v", obj.Key, err))
		}
		outcome.FilesRestored = append(outcome.FilesRestored, rel)
	}

	if err := m.expandConsolidated(runDir); err != nil {
		return outcome, err
	}

	slog.Info("Run restored", "run", id, "files", len(outcome.FilesRestored))
	return outcome, nil
}

func (m *Manager) downloadFile(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}

	body, err := m.objects.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// expandConsolidated rebuilds per-event files from events.jsonl using
// the same {id}-{type}.json naming the event store writes.
func (m *Manager) expandConsolidated(runDir string) error {
	consolidated := store.ConsolidatedPath(runDir)
	f, err := os.Open(consolidated)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return kerrors.Wrap(err, "open consolidated file")
	}
	defer f.Close()

	eventsDir := store.EventsDir(runDir)
	if entries, err := os.ReadDir(eventsDir); err == nil && len(entries) > 0 {
		// Individual event files already present; nothing to expand.
		return nil
	}
	if err := os.MkdirAll(eventsDir, 0755); err != nil {
		return kerrors.Wrap(err, "create events directory")
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	expanded := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var header struct {
			EventID int             `json:"event_id"`
			Type    store.EventType `json:"type"`
		}
		if err := json.Unmarshal(line, &header); err != nil || header.EventID <= 0 || !header.Type.Valid() {
			slog.Warn("Skipping malformed consolidated line during expansion", "dir", runDir)
			continue
		}

		// The raw line is the original marshaled record; writing it
		// back verbatim keeps restored files byte-equivalent.
		name := store.EventFileName(header.EventID, header.Type)
		if err := os.WriteFile(filepath.Join(eventsDir, name), line, 0644); err != nil {
			return kerrors.Wrap(err, "expand consolidated event")
		}
		expanded++
	}
	if err := scanner.Err(); err != nil {
		return kerrors.Wrap(err, "scan consolidated file")
	}

	if expanded > 0 {
		slog.Info("Expanded consolidated events", "dir", runDir, "events", expanded)
	}
	return nil
}

// ListArchived walks object-storage common prefixes and reports every
// discovered run whose prefix satisfies the run id grammar. Filters
// narrow the walk itself, not just the results.
func (m *Manager) ListArchived(ctx context.Context, filters store.ListFilters) ([]ArchivedRun, error) {
	base := strings.TrimSuffix(m.opts.Prefix, "/")
	if base != "" {
		base += "/"
	}

	var orgs []string
	if filters.Org != "" {
		if !runid.ValidSegment(filters.Org) {
			return nil, kerrors.Validation(fmt.Sprintf("invalid org filter %q", filters.Org))
		}
		orgs = []string{base + filters.Org + "/"}
	} else {
		prefixes, err := m.objects.ListPrefixes(ctx, base)
		if err != nil {
			return nil, kerrors.Archive(fmt.Sprintf("list orgs: %v", err))
		}
		for _, p := range prefixes {
			if runid.ValidSegment(lastSegment(p)) {
				orgs = append(orgs, p)
			}
		}
	}

	var runs []ArchivedRun
	for _, orgPrefix := range orgs {
		var projects []string
		if filters.Project != "" {
			if !runid.ValidSegment(filters.Project) {
				return nil, kerrors.Validation(fmt.Sprintf("invalid project filter %q", filters.Project))
			}
			projects = []string{orgPrefix + filters.Project + "/"}
		} else {
			prefixes, err := m.objects.ListPrefixes(ctx, orgPrefix)
			if err != nil {
				return nil, kerrors.Archive(fmt.Sprintf("list projects: %v", err))
			}
			for _, p := range prefixes {
				if runid.ValidSegment(lastSegment(p)) {
					projects = append(projects, p)
				}
			}
		}

		for _, projectPrefix := range projects {
			uuids, err := m.objects.ListPrefixes(ctx, projectPrefix)
			if err != nil {
				return nil, kerrors.Archive(fmt.Sprintf("list runs: %v", err))
			}
			for _, p := range uuids {
				uid := lastSegment(p)
				if !runid.ValidUUID(uid) {
					continue
				}
				id := strings.TrimSuffix(strings.TrimPrefix(p, base), "/")
				if _, err := m.validator.Parse(id); err != nil {
					continue
				}
				runs = append(runs, ArchivedRun{RunID: id, S3Path: p})
			}
		}
	}

	return runs, nil
}

func lastSegment(prefix string) string {
	trimmed := strings.TrimSuffix(prefix, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// safeJoin resolves rel under dir and rejects anything escaping it.
func safeJoin(dir, rel string) (string, bool) {
	joined := filepath.Clean(filepath.Join(dir, filepath.FromSlash(rel)))
	if joined != dir && !strings.HasPrefix(joined, dir+string(filepath.Separator)) {
		return "", false
	}
	if joined == dir {
		return "", false
	}
	return joined, true
}
