package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process advisory lock used to serialize index
// rebuilds. It is never part of the emit path: event writes coordinate
// through rename atomicity alone.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
}

type FileLockConfig struct {
	Timeout  time.Duration
	Retry    time.Duration
	MaxRetry int
}

func DefaultFileLockConfig() FileLockConfig {
	return FileLockConfig{
		Timeout:  10 * time.Second,
		Retry:    50 * time.Millisecond,
		MaxRetry: 200,
	}
}

// AcquireFileLock takes the lock at path, retrying until the config's
// budget runs out.
func AcquireFileLock(path string, cfg FileLockConfig) (*FileLock, error) {
	if cfg.Timeout <= 0 || cfg.Retry <= 0 || cfg.MaxRetry <= 0 {
		cfg = DefaultFileLockConfig()
	}

	fl := flock.New(path)
	deadline := time.Now().Add(cfg.Timeout)

	for i := 0; i < cfg.MaxRetry; i++ {
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to attempt lock: %w", err)
		}
		if locked {
			return &FileLock{fileLock: fl, lockPath: path, acquiredAt: time.Now()}, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(cfg.Retry)
	}

	return nil, fmt.Errorf("lock %s is held by another process (timeout after %v)", path, cfg.Timeout)
}

func (l *FileLock) Unlock() {
	if l.fileLock == nil {
		return
	}
	if err := l.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "path", l.lockPath, "error", err)
	} else {
		slog.Debug("File lock released",
			"path", l.lockPath,
			"held_duration_ms", time.Since(l.acquiredAt).Milliseconds(),
		)
	}
	l.fileLock = nil
}
