// Package service is the plain-data boundary the store exposes to a
// protocol layer. Every operation returns a result carrying a status
// discriminator and an optional error string; no error values cross
// this boundary.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"github.com/harunnryd/kiroku/internal/archive"
	kerrors "github.com/harunnryd/kiroku/internal/errors"
	"github.com/harunnryd/kiroku/internal/runid"
	"github.com/harunnryd/kiroku/internal/store"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Service wires the store components behind the boundary operations.
// Archiver may be nil when no object storage is configured; the archive
// operations then report an error result instead of panicking.
type Service struct {
	validator    *runid.Validator
	events       *store.EventStore
	states       *store.StateStore
	reader       *store.Reader
	consolidator *store.Consolidator
	index        *store.Index
	archiver     *archive.Manager
	mapper       *kerrors.DefaultErrorMapper
}

// New assembles a service from its components.
func New(
	validator *runid.Validator,
	events *store.EventStore,
	states *store.StateStore,
	reader *store.Reader,
	consolidator *store.Consolidator,
	index *store.Index,
	archiver *archive.Manager,
) *Service {
	return &Service{
		validator:    validator,
		events:       events,
		states:       states,
		reader:       reader,
		consolidator: consolidator,
		index:        index,
		archiver:     archiver,
		mapper:       kerrors.NewDefaultErrorMapper(),
	}
}

type resultBase struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"error_kind,omitempty"`
}

func (s *Service) failure(err error) resultBase {
	mapped := s.mapper.MapError(err)
	return resultBase{
		Status: StatusError,
		Error:  mapped.Error(),
		Kind:   s.mapper.Category(mapped),
	}
}

func success() resultBase {
	return resultBase{Status: StatusSuccess}
}

// InitResult reports run initialization.
type InitResult struct {
	resultBase
	RunID string `json:"run_id,omitempty"`
	Path  string `json:"path,omitempty"`
}

// InitRun creates the run directory, metadata.json, state.json, and the
// events/ subdirectory. Initializing an existing run is a conflict.
func (s *Service) InitRun(id, workID, origin string) InitResult {
	rid, runDir, err := s.validator.ResolvePath(id)
	if err != nil {
		return InitResult{resultBase: s.failure(err)}
	}

	if _, err := os.Stat(store.MetadataPath(runDir)); err == nil {
		return InitResult{resultBase: s.failure(fmt.Errorf("run %s already exists: %w", id, kerrors.ErrConflict))}
	}

	if err := os.MkdirAll(store.EventsDir(runDir), 0755); err != nil {
		return InitResult{resultBase: s.failure(err)}
	}

	now := store.FormatTimestamp(time.Now())
	meta := store.Metadata{
		Org:       rid.Org,
		Project:   rid.Project,
		WorkID:    workID,
		CreatedAt: now,
		Origin:    origin,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return InitResult{resultBase: s.failure(err)}
	}
	if err := atomic.WriteFile(store.MetadataPath(runDir), bytes.NewReader(metaData)); err != nil {
		return InitResult{resultBase: s.failure(err)}
	}

	state := store.State{
		Status:    "initialized",
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.states.Write(runDir, &state); err != nil {
		return InitResult{resultBase: s.failure(err)}
	}

	return InitResult{resultBase: success(), RunID: rid.String(), Path: runDir}
}

// EmitResult reports an emit. StateUpdated is false when the event file
// landed but the state summary is stale (a partial write); the event
// must not be resubmitted in that case.
type EmitResult struct {
	resultBase
	EventID      int    `json:"event_id,omitempty"`
	Path         string `json:"path,omitempty"`
	StateUpdated bool   `json:"state_updated"`
}

// EmitEvent appends one event to the run's log.
func (s *Service) EmitEvent(id string, in store.EventInput) EmitResult {
	emitted, err := s.events.Emit(id, in)
	if err != nil {
		if emitted != nil && kerrors.IsCategory(err, kerrors.ErrPartialWrite) {
			// Event durable, summary stale. Report the write, flag it.
			base := s.failure(err)
			base.Status = StatusSuccess
			return EmitResult{
				resultBase:   base,
				EventID:      emitted.EventID,
				Path:         emitted.Path,
				StateUpdated: false,
			}
		}
		return EmitResult{resultBase: s.failure(err)}
	}

	return EmitResult{
		resultBase:   success(),
		EventID:      emitted.EventID,
		Path:         emitted.Path,
		StateUpdated: true,
	}
}

// RunResult reports a point lookup.
type RunResult struct {
	resultBase
	Run *store.RunInfo `json:"run,omitempty"`
}

// GetRun returns a run's metadata and state, optionally with its event
// count (obtained by listing, not reading, the event files).
func (s *Service) GetRun(id string, includeEvents bool) RunResult {
	info, err := s.reader.GetRun(id, includeEvents)
	if err != nil {
		return RunResult{resultBase: s.failure(err)}
	}
	return RunResult{resultBase: success(), Run: info}
}

// ListResult reports a run listing.
type ListResult struct {
	resultBase
	Runs []store.RunSummary `json:"runs"`
}

// ListRuns lists run summaries newest-first, truncated to limit.
func (s *Service) ListRuns(filters store.ListFilters, limit int) ListResult {
	runs, err := s.index.List(filters, limit)
	if err != nil {
		return ListResult{resultBase: s.failure(err)}
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	return ListResult{resultBase: success(), Runs: runs}
}

// ConsolidateResult reports a consolidation.
type ConsolidateResult struct {
	resultBase
	EventsConsolidated int    `json:"events_consolidated"`
	EventsSkipped      int    `json:"events_skipped,omitempty"`
	OutputPath         string `json:"output_path,omitempty"`
	SizeBytes          int64  `json:"size_bytes,omitempty"`
}

// ConsolidateEvents compacts the run's events into events.jsonl.
func (s *Service) ConsolidateEvents(id string) ConsolidateResult {
	out, err := s.consolidator.Consolidate(id)
	if err != nil {
		return ConsolidateResult{resultBase: s.failure(err)}
	}
	return ConsolidateResult{
		resultBase:         success(),
		EventsConsolidated: out.Count,
		EventsSkipped:      out.Skipped,
		OutputPath:         out.OutputPath,
		SizeBytes:          out.SizeBytes,
	}
}

// ArchiveResult reports an archive operation. FilesArchived lists the
// uploads that succeeded even when Status is error, so retries can be
// scoped to the remainder.
type ArchiveResult struct {
	resultBase
	S3Path        string   `json:"s3_path,omitempty"`
	FilesArchived []string `json:"files_archived,omitempty"`
	SizeBytes     int64    `json:"size_bytes,omitempty"`
}

// ArchiveRun uploads the run's artifacts to object storage.
func (s *Service) ArchiveRun(ctx context.Context, id string) ArchiveResult {
	if s.archiver == nil {
		return ArchiveResult{resultBase: s.failure(kerrors.Archive("object storage is not configured"))}
	}

	out, err := s.archiver.Archive(ctx, id)
	if err != nil {
		res := ArchiveResult{resultBase: s.failure(err)}
		if out != nil {
			res.S3Path = out.S3Path
			res.FilesArchived = out.FilesArchived
			res.SizeBytes = out.SizeBytes
		}
		return res
	}
	return ArchiveResult{
		resultBase:    success(),
		S3Path:        out.S3Path,
		FilesArchived: out.FilesArchived,
		SizeBytes:     out.SizeBytes,
	}
}

// RestoreResult reports a restore operation.
type RestoreResult struct {
	resultBase
	LocalPath     string   `json:"local_path,omitempty"`
	FilesRestored []string `json:"files_restored,omitempty"`
}

// RestoreRun syncs a run's archived objects back to local storage.
func (s *Service) RestoreRun(ctx context.Context, id string) RestoreResult {
	if s.archiver == nil {
		return RestoreResult{resultBase: s.failure(kerrors.Archive("object storage is not configured"))}
	}

	out, err := s.archiver.Restore(ctx, id)
	if err != nil {
		res := RestoreResult{resultBase: s.failure(err)}
		if out != nil {
			res.LocalPath = out.LocalPath
			res.FilesRestored = out.FilesRestored
		}
		return res
	}
	return RestoreResult{
		resultBase:    success(),
		LocalPath:     out.LocalPath,
		FilesRestored: out.FilesRestored,
	}
}

// ArchivedListResult reports discovered archived runs.
type ArchivedListResult struct {
	resultBase
	Runs []archive.ArchivedRun `json:"runs"`
}

// ListArchived walks object storage for archived runs.
func (s *Service) ListArchived(ctx context.Context, filters store.ListFilters) ArchivedListResult {
	if s.archiver == nil {
		return ArchivedListResult{resultBase: s.failure(kerrors.Archive("object storage is not configured"))}
	}

	runs, err := s.archiver.ListArchived(ctx, filters)
	if err != nil {
		return ArchivedListResult{resultBase: s.failure(err)}
	}
	if runs == nil {
		runs = []archive.ArchivedRun{}
	}
	return ArchivedListResult{resultBase: success(), Runs: runs}
}

// IndexResult reports an index rebuild.
type IndexResult struct {
	resultBase
	Runs int `json:"runs"`
}

// RebuildIndex regenerates the runs index from a full walk.
func (s *Service) RebuildIndex() IndexResult {
	n, err := s.index.Rebuild()
	if err != nil {
		return IndexResult{resultBase: s.failure(err)}
	}
	return IndexResult{resultBase: success(), Runs: n}
}
