package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Feature store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Feature store compression modes (json backend only).
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Object storage drivers.
const (
	DriverMinIO = "minio"
	DriverS3    = "s3"
)

// Paths contains directory and file locations.
type Paths struct {
	DataDir         string `toml:"data_dir"`
	FeatureStoreDir string `toml:"feature_store_dir"`
	TrackingDB      string `toml:"tracking_db"`
	LogDir          string `toml:"log_dir"`
	ArtifactsDir    string `toml:"artifacts_dir"`
}

// FeatureStore selects how the feature table is persisted.
type FeatureStore struct {
	Backend     string `toml:"backend"`     // "json" or "sqlite"
	Compression string `toml:"compression"` // "none" or "zstd"
	FileLock    bool   `toml:"file_lock"`
}

// Dataset describes where training images come from.
type Dataset struct {
	BaseURL        string   `toml:"base_url"`
	Classes        []string `toml:"classes"`
	ImagesPerClass int      `toml:"images_per_class"`
	Concurrency    int      `toml:"concurrency"`
	RequestTimeout int      `toml:"request_timeout"`
}

// ObjectStorage contains S3-compatible storage settings for model artifacts.
type ObjectStorage struct {
	Enabled       bool   `toml:"enabled"`
	Driver        string `toml:"driver"` // "minio" or "s3"
	Endpoint      string `toml:"endpoint"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	Prefix        string `toml:"prefix"`
	PresignExpiry int    `toml:"presign_expiry"`
}

// Training contains the experiment identity used by the feature pipeline.
type Training struct {
	Experiment             string `toml:"experiment"`
	ModelName              string `toml:"model_name"`
	FeatureSamplesPerClass int    `toml:"feature_samples_per_class"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains ntfy settings for pipeline run notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnSuccess      bool   `toml:"on_success"`
	OnFailure      bool   `toml:"on_failure"`
}

// Config encapsulates all configuration values for greenr.
//
// Configuration sections by subsystem:
//   - Paths: data, feature store, tracking and log locations
//   - FeatureStore: persistence backend for extracted features
//   - Dataset: image source for the downloader
//   - ObjectStorage: MinIO/S3 settings for model artifacts
//   - Training: experiment and model naming
//   - Logging: log format, level, and retention
//   - Notifications: ntfy topic and which run outcomes to announce
type Config struct {
	Paths         Paths         `toml:"paths"`
	FeatureStore  FeatureStore  `toml:"feature_store"`
	Dataset       Dataset       `toml:"dataset"`
	ObjectStorage ObjectStorage `toml:"object_storage"`
	Training      Training      `toml:"training"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/greenr/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("greenr.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories greenr writes into. The tracking
// database directory is created so SQLite can open the file.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.FeatureStoreDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.TrackingDB),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogPath returns the main log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "greenr.log")
}

// PipelineLockPath returns the lock file that serializes pipeline runs.
func (c *Config) PipelineLockPath() string {
	return filepath.Join(c.Paths.LogDir, "pipeline.lock")
}

// DownloadTimeout returns the per-request dataset download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Dataset.RequestTimeout) * time.Second
}

// NotificationTimeout returns the ntfy request timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// PresignExpiry returns how long presigned artifact URLs stay valid.
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.ObjectStorage.PresignExpiry) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
