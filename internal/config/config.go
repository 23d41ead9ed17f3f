// Package config loads graphmem configuration from file and environment.
//
// Configuration is resolved by viper in this order: explicit flags (bound by
// the CLI), GRAPHMEM_* environment variables, then .graphmem/config.yaml,
// then built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// WorkDirName is the graphmem working directory created by `gm init`.
const WorkDirName = ".graphmem"

// Config holds the resolved graphmem configuration.
type Config struct {
	// WorkDir is the .graphmem working directory.
	WorkDir string `mapstructure:"work_dir"`

	// ChunksDir and LinksDir hold the record JSON files.
	ChunksDir string `mapstructure:"chunks_dir"`
	LinksDir  string `mapstructure:"links_dir"`

	// DBPath is the SQLite query cache location.
	DBPath string `mapstructure:"db_path"`

	// DashboardPort is the websocket dashboard listen port.
	DashboardPort int `mapstructure:"dashboard_port"`

	// Daemon intervals.
	ReindexInterval   time.Duration `mapstructure:"reindex_interval"`
	DebounceInterval  time.Duration `mapstructure:"debounce_interval"`
	CloudSyncInterval time.Duration `mapstructure:"cloud_sync_interval"`

	// CloudDir, when set, is mirrored into ChunksDir by the cloud reconciler.
	CloudDir string `mapstructure:"cloud_dir"`

	// LogFile, when set, receives daemon logs with rotation.
	LogFile string `mapstructure:"log_file"`
}

// Load resolves configuration rooted at the given working directory.
// An empty workDir means FindWorkDir is used, falling back to ./.graphmem.
func Load(workDir string) (*Config, error) {
	if workDir == "" {
		workDir = FindWorkDir()
		if workDir == "" {
			workDir = WorkDirName
		}
	}

	v := viper.New()
	v.SetDefault("work_dir", workDir)
	v.SetDefault("chunks_dir", filepath.Join(workDir, "chunks"))
	v.SetDefault("links_dir", filepath.Join(workDir, "links"))
	v.SetDefault("db_path", filepath.Join(workDir, "graph.db"))
	v.SetDefault("dashboard_port", 8080)
	v.SetDefault("reindex_interval", 5*time.Second)
	v.SetDefault("debounce_interval", 100*time.Millisecond)
	v.SetDefault("cloud_sync_interval", 30*time.Second)
	v.SetDefault("cloud_dir", "")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("GRAPHMEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(workDir)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// FindWorkDir walks up from the current directory looking for .graphmem.
// Returns "" when no working directory is found.
func FindWorkDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, WorkDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Init creates the working directory layout under the given root.
func Init(root string) (*Config, error) {
	workDir := filepath.Join(root, WorkDirName)

	for _, dir := range []string{workDir, filepath.Join(workDir, "chunks"), filepath.Join(workDir, "links")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return Load(workDir)
}
