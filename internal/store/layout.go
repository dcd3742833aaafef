package store

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/harunnryd/kiroku/internal/runid"
)

// Fixed on-disk layout, shared by the local store and the S3 mirror:
//
//	{base}/{org}/{project}/{uuid}/metadata.json
//	{base}/{org}/{project}/{uuid}/state.json
//	{base}/{org}/{project}/{uuid}/events/.next-id
//	{base}/{org}/{project}/{uuid}/events/{id:03d}-{type}.json
//	{base}/{org}/{project}/{uuid}/events.jsonl
//	{base}/.runs-index.json
const (
	MetadataFile     = "metadata.json"
	StateFile        = "state.json"
	EventsDirName    = "events"
	CounterFile      = ".next-id"
	ConsolidatedFile = "events.jsonl"
	IndexFile        = ".runs-index.json"
	IndexLockFile    = ".runs-index.lock"
)

// MetadataPath returns the metadata.json path for a run directory.
func MetadataPath(runDir string) string {
	return filepath.Join(runDir, MetadataFile)
}

// StatePath returns the state.json path for a run directory.
func StatePath(runDir string) string {
	return filepath.Join(runDir, StateFile)
}

// EventsDir returns the events/ directory for a run directory.
func EventsDir(runDir string) string {
	return filepath.Join(runDir, EventsDirName)
}

// CounterPath returns the sequence counter path for a run directory.
func CounterPath(runDir string) string {
	return filepath.Join(EventsDir(runDir), CounterFile)
}

// ConsolidatedPath returns the events.jsonl path for a run directory.
func ConsolidatedPath(runDir string) string {
	return filepath.Join(runDir, ConsolidatedFile)
}

// IndexPath returns the runs index path under the base directory.
func IndexPath(baseDir string) string {
	return filepath.Join(baseDir, IndexFile)
}

// IndexLockPath returns the index rebuild lock path under the base directory.
func IndexLockPath(baseDir string) string {
	return filepath.Join(baseDir, IndexLockFile)
}

// EventFileName encodes an event id and type so that directory listing
// order equals emission order without parsing file contents. Ids are
// zero-padded to three digits; larger ids keep their natural width and
// readers sort numerically.
func EventFileName(id int, typ EventType) string {
	return fmt.Sprintf("%03d-%s.json", id, typ)
}

var eventFileRe = regexp.MustCompile(`^(\d+)-([a-z_]+)\.json$`)

// ParseEventFileName extracts the id and type from an event file name.
// The second return is false for names outside the event naming scheme
// (the counter file, temp files, stray artifacts).
func ParseEventFileName(name string) (int, EventType, bool) {
	m := eventFileRe.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, EventType(m[2]), true
}

// S3RunPrefix mirrors the local layout under the configured object
// prefix. The returned prefix always ends with "/".
func S3RunPrefix(prefix string, rid runid.RunID) string {
	p := strings.TrimSuffix(prefix, "/")
	if p != "" {
		p += "/"
	}
	return p + rid.Org + "/" + rid.Project + "/" + rid.UUID + "/"
}
