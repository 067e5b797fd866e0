// Package config loads and validates the radar configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/civicwatch/radar/internal/errors"
)

// Config is the complete radar configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Diff       DiffConfig       `yaml:"diff" json:"diff"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Engine     EngineConfig     `yaml:"engine" json:"engine"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig locates persisted state. All paths default to subtrees of
// ~/.radar.
type PathsConfig struct {
	// IndexDir holds the vector blob, metadata records, lexical index, and
	// directory lock.
	IndexDir string `yaml:"index_dir" json:"index_dir"`

	// SnapshotDB is the SQLite snapshot archive.
	SnapshotDB string `yaml:"snapshot_db" json:"snapshot_db"`

	// CheckpointFile maps source IDs to last indexed hashes.
	CheckpointFile string `yaml:"checkpoint_file" json:"checkpoint_file"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "ollama" (default) or "static".
	// RADAR_EMBEDDER overrides this at runtime.
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name (default: nomic-embed-text).
	Model string `yaml:"model" json:"model"`

	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string `yaml:"host" json:"host"`

	// Dimensions is the embedding vector dimension (default: 384).
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is texts per backend request (1-512, default: 32).
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Timeout bounds one backend batch call (default: 60s).
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the embedding LRU capacity (default: 2000).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// DiffConfig holds the semantic differ's thresholds.
type DiffConfig struct {
	// MinSimilarity is the floor below which sentences are unrelated
	// (0.0-1.0, default: 0.35).
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`

	// IdenticalThreshold marks aligned pairs as unchanged at or above this
	// score (0.0-1.0, default: 0.92). Must exceed MinSimilarity.
	IdenticalThreshold float64 `yaml:"identical_threshold" json:"identical_threshold"`
}

// SearchConfig configures the search surface.
type SearchConfig struct {
	// TopK is the default result count (default: 10).
	TopK int `yaml:"top_k" json:"top_k"`
}

// EngineConfig tunes the processing cycle.
type EngineConfig struct {
	// Workers bounds how many sources index in parallel (default: NumCPU).
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `yaml:"level" json:"level"`

	// FilePath is the log file; empty logs to stderr only.
	FilePath string `yaml:"file_path" json:"file_path"`
}

// DefaultDataDir returns the radar state directory, ~/.radar.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".radar")
	}
	return filepath.Join(home, ".radar")
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Paths: PathsConfig{
			IndexDir:       filepath.Join(dataDir, "index"),
			SnapshotDB:     filepath.Join(dataDir, "snapshots.db"),
			CheckpointFile: filepath.Join(dataDir, "checkpoint.json"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Host:       "http://localhost:11434",
			Dimensions: 384,
			BatchSize:  32,
			Timeout:    60 * time.Second,
			CacheSize:  2000,
		},
		Diff: DiffConfig{
			MinSimilarity:      0.35,
			IdenticalThreshold: 0.92,
		},
		Search: SearchConfig{
			TopK: 10,
		},
		Engine: EngineConfig{
			Workers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration with increasing precedence: defaults, then the
// YAML file at path (skipped when path is empty or missing), then
// environment variables. The final configuration is validated; invalid
// values fail fast rather than silently clamping.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges non-zero values from a YAML file over the defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // defaults apply
	}
	if err != nil {
		return errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Paths.IndexDir != "" {
		c.Paths.IndexDir = other.Paths.IndexDir
	}
	if other.Paths.SnapshotDB != "" {
		c.Paths.SnapshotDB = other.Paths.SnapshotDB
	}
	if other.Paths.CheckpointFile != "" {
		c.Paths.CheckpointFile = other.Paths.CheckpointFile
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Diff.MinSimilarity != 0 {
		c.Diff.MinSimilarity = other.Diff.MinSimilarity
	}
	if other.Diff.IdenticalThreshold != 0 {
		c.Diff.IdenticalThreshold = other.Diff.IdenticalThreshold
	}

	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Engine.Workers != 0 {
		c.Engine.Workers = other.Engine.Workers
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
}

// applyEnvOverrides applies RADAR_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RADAR_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RADAR_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("RADAR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RADAR_DATA_DIR"); v != "" {
		c.Paths.IndexDir = filepath.Join(v, "index")
		c.Paths.SnapshotDB = filepath.Join(v, "snapshots.db")
		c.Paths.CheckpointFile = filepath.Join(v, "checkpoint.json")
	}
}

// Validate checks the final configuration. Every violation is a descriptive
// startup error, never a silent clamp.
func (c *Config) Validate() error {
	if c.Paths.IndexDir == "" {
		return errors.ConfigError("paths.index_dir must not be empty", nil)
	}

	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return errors.ConfigError(
			fmt.Sprintf("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider), nil)
	}

	if c.Embeddings.Dimensions <= 0 {
		return errors.ConfigError(
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}
	if c.Embeddings.BatchSize < 1 || c.Embeddings.BatchSize > 512 {
		return errors.ConfigError(
			fmt.Sprintf("embeddings.batch_size must be between 1 and 512, got %d", c.Embeddings.BatchSize), nil)
	}
	if c.Embeddings.Timeout <= 0 {
		return errors.ConfigError(
			fmt.Sprintf("embeddings.timeout must be positive, got %s", c.Embeddings.Timeout), nil)
	}
	if c.Embeddings.CacheSize < 0 {
		return errors.ConfigError(
			fmt.Sprintf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize), nil)
	}

	if c.Diff.MinSimilarity < 0 || c.Diff.MinSimilarity > 1 {
		return errors.ConfigError(
			fmt.Sprintf("diff.min_similarity must be between 0 and 1, got %f", c.Diff.MinSimilarity), nil)
	}
	if c.Diff.IdenticalThreshold < 0 || c.Diff.IdenticalThreshold > 1 {
		return errors.ConfigError(
			fmt.Sprintf("diff.identical_threshold must be between 0 and 1, got %f", c.Diff.IdenticalThreshold), nil)
	}
	if c.Diff.MinSimilarity >= c.Diff.IdenticalThreshold {
		return errors.ConfigError(
			fmt.Sprintf("diff.min_similarity (%f) must be below diff.identical_threshold (%f)",
				c.Diff.MinSimilarity, c.Diff.IdenticalThreshold), nil)
	}

	if c.Search.TopK <= 0 {
		return errors.ConfigError(
			fmt.Sprintf("search.top_k must be positive, got %d", c.Search.TopK), nil)
	}
	if c.Engine.Workers < 1 {
		return errors.ConfigError(
			fmt.Sprintf("engine.workers must be at least 1, got %d", c.Engine.Workers), nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return errors.ConfigError(
			fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level), nil)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.ConfigError("failed to marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to write config file %s", path), err)
	}
	return nil
}
