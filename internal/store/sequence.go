package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
)

// Allocator hands out monotonically increasing, gapless event ids per
// run, safe across concurrent OS processes sharing only the filesystem.
//
// The counter file (events/.next-id) holds the id to assign on the next
// call. Allocation claims the counter by renaming it to a unique claim
// name: rename of a given inode succeeds for exactly one caller, so the
// claim is the linearization point. The winner reads the value, writes
// the incremented value to a fresh exclusive-create temp, renames it
// back over the counter path, and returns the pre-increment value.
// Losers observe the counter missing and retry with bounded exponential
// backoff. No advisory locks, no coordination service.
type Allocator struct {
	maxAttempts int
	backoff     time.Duration
}

// claimStaleAfter is how old an orphaned claim file must be before a
// recovering caller may assume its owner crashed and rebuild the
// counter from the event files. Live owners hold claims for
// microseconds; anything this old is wreckage.
const claimStaleAfter = 10 * time.Second

const (
	claimSuffix = ".claim"
	tempSuffix  = ".tmp"
)

// NewAllocator creates an allocator with the given retry budget.
// Non-positive arguments fall back to safe defaults.
func NewAllocator(maxAttempts int, backoff time.Duration) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if backoff <= 0 {
		backoff = 5 * time.Millisecond
	}
	return &Allocator{maxAttempts: maxAttempts, backoff: backoff}
}

// NextID allocates the next event id for the run directory. The
// returned id is unique across all concurrent callers; the stored
// counter is always one greater than the returned value once the call
// succeeds. Exhausting the retry budget is a terminal AllocationError.
func (a *Allocator) NextID(runDir string) (int, error) {
	eventsDir := EventsDir(runDir)
	counterPath := CounterPath(runDir)

	sleep := a.backoff
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(sleep)
			if sleep < time.Second {
				sleep *= 2
			}
		}

		claimPath := filepath.Join(eventsDir, fmt.Sprintf("%s.%s%s", CounterFile, ulid.Make().String(), claimSuffix))
		err := os.Rename(counterPath, claimPath)
		if errors.Is(err, fs.ErrNotExist) {
			// Counter absent: fresh run, a writer mid-allocation, or a
			// crashed writer. Seed it and go around.
			if seedErr := a.seedCounter(eventsDir, counterPath); seedErr != nil {
				return 0, seedErr
			}
			continue
		}
		if err != nil {
			return 0, kerrors.Wrap(err, "claim sequence counter")
		}

		id, err := a.commit(eventsDir, counterPath, claimPath)
		if err != nil {
			// Put the token back so other writers are not stalled until
			// the staleness window expires.
			if restoreErr := os.Rename(claimPath, counterPath); restoreErr != nil {
				slog.Warn("Failed to restore sequence counter after commit error",
					"path", counterPath, "error", restoreErr)
			}
			return 0, err
		}
		return id, nil
	}

	return 0, kerrors.Allocation(fmt.Sprintf("sequence allocator gave up after %d attempts for %s", a.maxAttempts, runDir))
}

// commit reads the claimed counter value, durably writes the
// incremented value back to the counter path, and removes the claim.
func (a *Allocator) commit(eventsDir, counterPath, claimPath string) (int, error) {
	data, err := os.ReadFile(claimPath)
	if err != nil {
		return 0, kerrors.Wrap(err, "read claimed counter")
	}

	current, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || current <= 0 {
		// Corrupt counter content. Rebuild from the event files, which
		// are the ground truth for assigned ids.
		current, err = nextFromEvents(eventsDir)
		if err != nil {
			return 0, err
		}
		slog.Warn("Sequence counter was corrupt, rebuilt from event files",
			"dir", eventsDir, "next", current)
	}

	tempPath := filepath.Join(eventsDir, fmt.Sprintf("%s.%s%s", CounterFile, ulid.Make().String(), tempSuffix))
	if err := writeExclusive(tempPath, strconv.Itoa(current+1)); err != nil {
		return 0, kerrors.Wrap(err, "write counter temp")
	}
	if err := os.Rename(tempPath, counterPath); err != nil {
		os.Remove(tempPath)
		return 0, kerrors.Wrap(err, "publish sequence counter")
	}
	if err := os.Remove(claimPath); err != nil {
		slog.Warn("Failed to remove counter claim file", "path", claimPath, "error", err)
	}

	return current, nil
}

// seedCounter recreates a missing counter file. If a fresh claim file
// exists, a live writer owns the token and will restore the counter
// itself, so seeding just yields to it. Stale claims are removed and
// the next value is recovered by scanning the event files.
func (a *Allocator) seedCounter(eventsDir, counterPath string) error {
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return kerrors.NotFound(fmt.Sprintf("events directory %s", eventsDir))
		}
		return kerrors.Wrap(err, "scan events directory")
	}

	now := time.Now()
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), claimSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < claimStaleAfter {
			// A live allocation is in flight; back off and retry.
			return nil
		}
		stale := filepath.Join(eventsDir, entry.Name())
		if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove stale counter claim", "path", stale, "error", err)
		} else {
			slog.Warn("Removed stale counter claim", "path", stale)
		}
	}

	next, err := nextFromEvents(eventsDir)
	if err != nil {
		return err
	}

	err = writeExclusive(counterPath, strconv.Itoa(next))
	if errors.Is(err, fs.ErrExist) {
		// Another caller seeded first; their value is just as good.
		return nil
	}
	if err != nil {
		return kerrors.Wrap(err, "seed sequence counter")
	}
	return nil
}

// nextFromEvents returns the next id to assign based on the highest
// event id already on disk. An empty directory yields 1.
func nextFromEvents(eventsDir string) (int, error) {
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		return 0, kerrors.Wrap(err, "scan events directory")
	}

	max := 0
	for _, entry := range entries {
		if id, _, ok := ParseEventFileName(entry.Name()); ok && id > max {
			max = id
		}
	}
	return max + 1, nil
}

// writeExclusive creates path with O_EXCL, writes content, and fsyncs.
// It fails with fs.ErrExist if the path already exists.
func writeExclusive(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
