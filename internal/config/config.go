package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/kiroku/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Log         LogConfig         `koanf:"log"`
	Store       StoreConfig       `koanf:"store"`
	Archive     ArchiveConfig     `koanf:"archive"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StoreConfig struct {
	BasePath          string `koanf:"base_path"`
	User              string `koanf:"user"`
	Source            string `koanf:"source"`
	AllocMaxAttempts  int    `koanf:"alloc_max_attempts"`
	AllocBackoff      string `koanf:"alloc_backoff"`
	IndexLockTimeout  string `koanf:"index_lock_timeout"`
	IndexLockRetry    string `koanf:"index_lock_retry"`
	IndexLockMaxRetry int    `koanf:"index_lock_max_retry"`
}

type ArchiveConfig struct {
	Endpoint             string `koanf:"endpoint"`
	AccessKey            string `koanf:"access_key"`
	SecretKey            string `koanf:"secret_key"`
	Bucket               string `koanf:"bucket"`
	Prefix               string `koanf:"prefix"`
	Region               string `koanf:"region"`
	UseSSL               bool   `koanf:"use_ssl"`
	ConsolidateOnArchive bool   `koanf:"consolidate_on_archive"`
	CleanupLocal         bool   `koanf:"cleanup_local"`
}

type MaintenanceConfig struct {
	IndexRebuildSchedule string `koanf:"index_rebuild_schedule"`
	AutoArchiveSchedule  string `koanf:"auto_archive_schedule"`
	AutoArchiveEnabled   bool   `koanf:"auto_archive_enabled"`
	AutoArchiveMinAge    string `koanf:"auto_archive_min_age"`
}

const (
	DefaultLogLevel = "info"

	DefaultStoreUser             = "system"
	DefaultStoreSource           = "kiroku"
	DefaultStoreAllocMaxAttempts = 10
	DefaultStoreAllocBackoff     = "5ms"
	DefaultIndexLockTimeout      = "10s"
	DefaultIndexLockRetry        = "50ms"
	DefaultIndexLockMaxRetry     = 200

	DefaultArchiveBucket = "kiroku-runs"
	DefaultArchiveRegion = "us-east-1"

	DefaultMaintenanceIndexRebuildSchedule = "@every 5m"
	DefaultMaintenanceAutoArchiveSchedule  = "@every 1h"
	DefaultMaintenanceAutoArchiveMinAge    = "24h"
)

// DefaultBasePath returns ~/.kiroku/runs for the current user.
func DefaultBasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".kiroku", "runs")
	}
	return filepath.Join(home, ".kiroku", "runs")
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"log.level":                          DefaultLogLevel,
		"store.base_path":                    DefaultBasePath(),
		"store.user":                         DefaultStoreUser,
		"store.source":                       DefaultStoreSource,
		"store.alloc_max_attempts":           DefaultStoreAllocMaxAttempts,
		"store.alloc_backoff":                DefaultStoreAllocBackoff,
		"store.index_lock_timeout":           DefaultIndexLockTimeout,
		"store.index_lock_retry":             DefaultIndexLockRetry,
		"store.index_lock_max_retry":         DefaultIndexLockMaxRetry,
		"archive.bucket":                     DefaultArchiveBucket,
		"archive.region":                     DefaultArchiveRegion,
		"archive.use_ssl":                    true,
		"archive.consolidate_on_archive":     true,
		"archive.cleanup_local":              false,
		"maintenance.index_rebuild_schedule": DefaultMaintenanceIndexRebuildSchedule,
		"maintenance.auto_archive_schedule":  DefaultMaintenanceAutoArchiveSchedule,
		"maintenance.auto_archive_enabled":   false,
		"maintenance.auto_archive_min_age":   DefaultMaintenanceAutoArchiveMinAge,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".kiroku", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("KIROKU_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KIROKU_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	expanded, err := pathutil.Expand(cfg.Store.BasePath)
	if err != nil {
		return nil, err
	}
	if expanded != "" {
		cfg.Store.BasePath = expanded
	}

	return &cfg, nil
}
