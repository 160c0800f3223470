package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeatureStore(); err != nil {
		return err
	}
	if err := c.validateDataset(); err != nil {
		return err
	}
	if err := c.validateObjectStorage(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateFeatureStore() error {
	switch c.FeatureStore.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("feature_store.backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.FeatureStore.Backend)
	}
	switch c.FeatureStore.Compression {
	case CompressionNone:
	case CompressionZstd:
		if c.FeatureStore.Backend != BackendJSON {
			return errors.New("feature_store.compression = \"zstd\" is only supported by the json backend")
		}
	default:
		return fmt.Errorf("feature_store.compression must be %q or %q, got %q", CompressionNone, CompressionZstd, c.FeatureStore.Compression)
	}
	return nil
}

func (c *Config) validateDataset() error {
	parsed, err := url.Parse(c.Dataset.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("dataset.base_url must be an absolute URL, got %q", c.Dataset.BaseURL)
	}
	if err := ensurePositiveMap(map[string]int{
		"dataset.images_per_class": c.Dataset.ImagesPerClass,
		"dataset.concurrency":      c.Dataset.Concurrency,
		"dataset.request_timeout":  c.Dataset.RequestTimeout,
	}); err != nil {
		return err
	}
	for _, class := range c.Dataset.Classes {
		if strings.ContainsAny(class, `/\`) || class == "." || class == ".." {
			return fmt.Errorf("dataset.classes entry %q must be a plain directory name", class)
		}
	}
	return nil
}

func (c *Config) validateObjectStorage() error {
	s := c.ObjectStorage
	switch s.Driver {
	case DriverMinIO, DriverS3:
	default:
		return fmt.Errorf("object_storage.driver must be %q or %q, got %q", DriverMinIO, DriverS3, s.Driver)
	}
	if !s.Enabled {
		return nil
	}
	if s.Bucket == "" {
		return errors.New("object_storage.bucket must be set when object_storage.enabled is true")
	}
	if s.Driver == DriverMinIO {
		if s.Endpoint == "" {
			return errors.New("object_storage.endpoint must be set for the minio driver")
		}
		if s.AccessKey == "" || s.SecretKey == "" {
			return errors.New("object_storage.access_key and secret_key must be set for the minio driver (or set MINIO_ACCESS_KEY/MINIO_SECRET_KEY)")
		}
	}
	if s.Endpoint != "" {
		parsed, err := url.Parse(s.Endpoint)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("object_storage.endpoint must include a scheme and host, got %q", s.Endpoint)
		}
	}
	return nil
}

func (c *Config) validateTraining() error {
	if c.Training.FeatureSamplesPerClass < 0 {
		return errors.New("training.feature_samples_per_class must be >= 0")
	}
	if strings.ContainsAny(c.Training.ModelName, `/\`) {
		return fmt.Errorf("training.model_name %q must not contain path separators", c.Training.ModelName)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
