package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
)

// Consolidator compacts a run's event files into one newline-delimited
// JSON file for transport or cold storage. The source files are left
// untouched; only ArchiveManager's cleanup ever removes them.
type Consolidator struct {
	reader *Reader
}

// Consolidated reports the outcome of a consolidation.
type Consolidated struct {
	Count      int
	Skipped    int
	OutputPath string
	SizeBytes  int64
}

// NewConsolidator creates a consolidator over the given reader.
func NewConsolidator(reader *Reader) *Consolidator {
	return &Consolidator{reader: reader}
}

// Consolidate streams the run's events one at a time into a temp file
// and atomically renames it to events.jsonl in the run directory. An
// empty event set yields a zero-length file and count 0, not an error.
func (c *Consolidator) Consolidate(id string) (*Consolidated, error) {
	_, runDir, err := c.reader.validator.ResolvePath(id)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return nil, kerrors.NotFound(fmt.Sprintf("run %s", id))
	}

	it, err := c.reader.eventsInDir(runDir)
	if err != nil {
		return nil, err
	}

	tempPath := filepath.Join(runDir, fmt.Sprintf(".%s.%s.tmp", ConsolidatedFile, ulid.Make().String()))
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, kerrors.Wrap(err, "create consolidation temp")
	}

	count := 0
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		line, err := json.Marshal(ev)
		if err != nil {
			f.Close()
			os.Remove(tempPath)
			return nil, kerrors.Internal(fmt.Sprintf("marshal event %d: %v", ev.EventID, err))
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tempPath)
			return nil, kerrors.Wrap(err, "write consolidated line")
		}
		count++
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return nil, kerrors.Wrap(err, "sync consolidated file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return nil, kerrors.Wrap(err, "close consolidated file")
	}

	outputPath := ConsolidatedPath(runDir)
	if err := atomic.ReplaceFile(tempPath, outputPath); err != nil {
		os.Remove(tempPath)
		return nil, kerrors.Wrap(err, "publish consolidated file")
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, kerrors.Wrap(err, "stat consolidated file")
	}

	if skipped := it.Skipped(); skipped > 0 {
		slog.Warn("Consolidation skipped malformed event files", "run", id, "skipped", skipped)
	}
	slog.Info("Run consolidated", "run", id, "events", count, "bytes", info.Size())

	return &Consolidated{
		Count:      count,
		Skipped:    it.Skipped(),
		OutputPath: outputPath,
		SizeBytes:  info.Size(),
	}, nil
}
