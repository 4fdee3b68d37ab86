// Package config provides configuration loading and structs for the ruiji server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Store      StoreConfig      `yaml:"store"`
	AWS        AWSConfig        `yaml:"aws"`
	Blob       BlobConfig       `yaml:"blob"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Images     ImagesConfig     `yaml:"images"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Watch      WatchConfig      `yaml:"watch"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds the catalog database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// StoreConfig selects the embedding store: "sqlite" (shares the catalog database),
// "memory" (optionally snapshotted to SnapshotPath) or "redis".
type StoreConfig struct {
	Type         string      `yaml:"type"`
	SnapshotPath string      `yaml:"snapshot_path"`
	Redis        RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis embedding store settings.
type RedisConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	Database  int           `yaml:"database"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AWSConfig holds settings shared by the Bedrock and S3 clients.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// BlobConfig selects where image bytes live: "s3" or "disk".
type BlobConfig struct {
	Type       string        `yaml:"type"`
	Bucket     string        `yaml:"bucket"`
	PathStyle  bool          `yaml:"path_style"`
	Path       string        `yaml:"path"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// EmbeddingConfig selects the embedding generator: "bedrock", "onnx" or "mock".
type EmbeddingConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	Dimensions      int    `yaml:"dimensions"`
	TextModelPath   string `yaml:"text_model_path"`
	VisionModelPath string `yaml:"vision_model_path"`
	LibraryPath     string `yaml:"library_path"`
	CacheSize       int    `yaml:"cache_size"`
}

// ImagesConfig holds image generation settings. Generator is "bedrock" or "mock".
type ImagesConfig struct {
	Generator     string  `yaml:"generator"`
	Model         string  `yaml:"model"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	CfgScale      float64 `yaml:"cfg_scale"`
	Quality       string  `yaml:"quality"`
	EmbedOnCreate bool    `yaml:"embed_on_create"`
}

// SimilarityConfig tunes the ranker. BatchSize is clamped to 1..100.
type SimilarityConfig struct {
	BatchSize   int `yaml:"batch_size"`
	TopK        int `yaml:"top_k"`
	Parallelism int `yaml:"parallelism"`
}

// WatchConfig holds inbox directory settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault returns whether metrics are served; defaults to true when unset.
func (m *MetricsConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// Summary returns the settings reported by the status command.
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"store_type":           c.Store.Type,
		"blob_type":            c.Blob.Type,
		"embedding_provider":   c.Embedding.Provider,
		"embedding_dimensions": c.Embedding.Dimensions,
		"batch_size":           c.Similarity.BatchSize,
		"top_k":                c.Similarity.TopK,
		"database_path":        c.Storage.DatabasePath,
	}
}

// LocalDataPaths returns the on-disk locations other than the catalog database that hold
// service data: the memory-store snapshot and, for the disk blob store, its root.
func (c *Config) LocalDataPaths() []string {
	var paths []string
	if c.Store.Type == "memory" && c.Store.SnapshotPath != "" {
		paths = append(paths, c.Store.SnapshotPath)
	}
	if c.Blob.Type == "disk" && c.Blob.Path != "" {
		paths = append(paths, c.Blob.Path)
	}
	return paths
}

// Load reads and parses the config file at path, applies environment overrides, expands
// paths, and applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Store.SnapshotPath = expandPath(cfg.Store.SnapshotPath, configDir)
	cfg.Blob.Path = expandPath(cfg.Blob.Path, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.VisionModelPath = expandPath(cfg.Embedding.VisionModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SaveWatchDirectories replaces watch.directories in the config file at path and leaves the
// rest of the file as written. Environment overrides and defaults applied by Load are not
// written back. A missing file is created.
func SaveWatchDirectories(path string, dirs []string) error {
	raw := map[string]interface{}{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if raw == nil {
			raw = map[string]interface{}{}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read config: %w", err)
	}

	watch, _ := raw["watch"].(map[string]interface{})
	if watch == nil {
		watch = map[string]interface{}{}
	}
	if dirs == nil {
		dirs = []string{}
	}
	watch["directories"] = dirs
	raw["watch"] = watch

	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths and ":memory:" are
// returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
