package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/harunnryd/kiroku/internal/archive"
	"github.com/harunnryd/kiroku/internal/config"
	"github.com/harunnryd/kiroku/internal/runid"
	"github.com/harunnryd/kiroku/internal/service"
	"github.com/harunnryd/kiroku/internal/store"
)

// buildService assembles the boundary service from loaded config.
// The archive manager is only attached when an endpoint is configured.
func buildService(cfg *config.Config) (*service.Service, error) {
	validator, err := runid.NewValidator(cfg.Store.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	backoff, err := config.DurationOrDefault(cfg.Store.AllocBackoff, config.DefaultStoreAllocBackoff)
	if err != nil {
		return nil, err
	}
	lockTimeout, err := config.DurationOrDefault(cfg.Store.IndexLockTimeout, config.DefaultIndexLockTimeout)
	if err != nil {
		return nil, err
	}
	lockRetry, err := config.DurationOrDefault(cfg.Store.IndexLockRetry, config.DefaultIndexLockRetry)
	if err != nil {
		return nil, err
	}

	alloc := store.NewAllocator(cfg.Store.AllocMaxAttempts, backoff)
	states := store.NewStateStore()
	events := store.NewEventStore(validator, alloc, states, cfg.Store.User, cfg.Store.Source)
	reader := store.NewReader(validator, states)
	consolidator := store.NewConsolidator(reader)
	index := store.NewIndex(validator.BaseDir(), states, store.FileLockConfig{
		Timeout:  lockTimeout,
		Retry:    lockRetry,
		MaxRetry: cfg.Store.IndexLockMaxRetry,
	})

	var archiver *archive.Manager
	if cfg.Archive.Endpoint != "" {
		client, err := archive.NewClient(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to configure object storage: %w", err)
		}
		archiver = archive.NewManager(client, validator, consolidator, archive.Options{
			Prefix:               cfg.Archive.Prefix,
			ConsolidateOnArchive: cfg.Archive.ConsolidateOnArchive,
			CleanupLocal:         cfg.Archive.CleanupLocal,
		})
	}

	return service.New(validator, events, states, reader, consolidator, index, archiver), nil
}

// printResult renders a boundary result as JSON on stdout and converts
// an error status into a non-zero exit.
func printResult(result any, status, errMsg string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))

	if status != service.StatusSuccess {
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}
