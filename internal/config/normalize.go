package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeatureStore()
	c.normalizeDataset()
	c.normalizeObjectStorage()
	c.normalizeTraining()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.feature_store_dir", &c.Paths.FeatureStoreDir, defaultFeatureStoreDir},
		{"paths.tracking_db", &c.Paths.TrackingDB, defaultTrackingDB},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.artifacts_dir", &c.Paths.ArtifactsDir, defaultArtifactsDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeFeatureStore() {
	c.FeatureStore.Backend = strings.ToLower(strings.TrimSpace(c.FeatureStore.Backend))
	if c.FeatureStore.Backend == "" {
		c.FeatureStore.Backend = defaultFeatureBackend
	}
	c.FeatureStore.Compression = strings.ToLower(strings.TrimSpace(c.FeatureStore.Compression))
	if c.FeatureStore.Compression == "" {
		c.FeatureStore.Compression = defaultCompression
	}
}

func (c *Config) normalizeDataset() {
	c.Dataset.BaseURL = strings.TrimRight(strings.TrimSpace(c.Dataset.BaseURL), "/")
	if c.Dataset.BaseURL == "" {
		c.Dataset.BaseURL = defaultDatasetBaseURL
	}
	classes := make([]string, 0, len(c.Dataset.Classes))
	seen := make(map[string]struct{}, len(c.Dataset.Classes))
	for _, class := range c.Dataset.Classes {
		trimmed := strings.TrimSpace(class)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		classes = append(classes, trimmed)
	}
	if len(classes) == 0 {
		classes = append(classes, DefaultClasses...)
	}
	c.Dataset.Classes = classes
	if c.Dataset.Concurrency <= 0 {
		c.Dataset.Concurrency = defaultDownloadConcurrency
	}
	if c.Dataset.RequestTimeout <= 0 {
		c.Dataset.RequestTimeout = defaultDownloadTimeout
	}
}

func (c *Config) normalizeObjectStorage() {
	s := &c.ObjectStorage
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = defaultStorageDriver
	}
	if value, ok := os.LookupEnv("MINIO_ENDPOINT"); ok && strings.TrimSpace(value) != "" {
		s.Endpoint = value
	}
	if value, ok := os.LookupEnv("MINIO_ACCESS_KEY"); ok && strings.TrimSpace(value) != "" {
		s.AccessKey = value
	}
	if value, ok := os.LookupEnv("MINIO_SECRET_KEY"); ok && strings.TrimSpace(value) != "" {
		s.SecretKey = value
	}
	if value, ok := os.LookupEnv("MINIO_BUCKET"); ok && strings.TrimSpace(value) != "" {
		s.Bucket = value
	}
	s.Endpoint = strings.TrimRight(strings.TrimSpace(s.Endpoint), "/")
	s.AccessKey = strings.TrimSpace(s.AccessKey)
	s.SecretKey = strings.TrimSpace(s.SecretKey)
	s.Bucket = strings.TrimSpace(s.Bucket)
	s.Region = strings.TrimSpace(s.Region)
	if s.Region == "" {
		s.Region = defaultStorageRegion
	}
	s.Prefix = strings.Trim(strings.TrimSpace(s.Prefix), "/")
	if s.PresignExpiry <= 0 {
		s.PresignExpiry = defaultPresignExpiry
	}
}

func (c *Config) normalizeTraining() {
	c.Training.Experiment = strings.TrimSpace(c.Training.Experiment)
	if c.Training.Experiment == "" {
		c.Training.Experiment = defaultExperiment
	}
	c.Training.ModelName = strings.TrimSpace(c.Training.ModelName)
	if c.Training.ModelName == "" {
		c.Training.ModelName = defaultModelName
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}
