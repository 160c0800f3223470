package config

const (
	defaultDataDir              = "~/.local/share/greenr/data"
	defaultFeatureStoreDir      = "~/.local/share/greenr/feature_store"
	defaultTrackingDB           = "~/.local/share/greenr/tracking.db"
	defaultLogDir               = "~/.local/share/greenr/logs"
	defaultArtifactsDir         = "~/.local/share/greenr/models"
	defaultFeatureBackend       = BackendJSON
	defaultCompression          = CompressionNone
	defaultDatasetBaseURL       = "https://raw.githubusercontent.com/btphan95/greenr-airflow/refs/heads/master/data"
	defaultImagesPerClass       = 200
	defaultDownloadConcurrency  = 8
	defaultDownloadTimeout      = 30
	defaultStorageDriver        = DriverMinIO
	defaultStorageEndpoint      = "http://localhost:9000"
	defaultStorageAccessKey     = "minioadmin"
	defaultStorageSecretKey     = "minioadmin"
	defaultStorageBucket        = "mlops-models"
	defaultStorageRegion        = "us-east-1"
	defaultPresignExpiry        = 3600
	defaultExperiment           = "dandelion_vs_grass"
	defaultModelName            = "dandelion_vs_grass_classifier"
	defaultFeatureSamplesPerCls = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultNtfyRequestTimeout   = 10
)

// DefaultClasses are the two categories of the bundled dataset.
var DefaultClasses = []string{"dandelion", "grass"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:         defaultDataDir,
			FeatureStoreDir: defaultFeatureStoreDir,
			TrackingDB:      defaultTrackingDB,
			LogDir:          defaultLogDir,
			ArtifactsDir:    defaultArtifactsDir,
		},
		FeatureStore: FeatureStore{
			Backend:     defaultFeatureBackend,
			Compression: defaultCompression,
			FileLock:    true,
		},
		Dataset: Dataset{
			BaseURL:        defaultDatasetBaseURL,
			Classes:        append([]string(nil), DefaultClasses...),
			ImagesPerClass: defaultImagesPerClass,
			Concurrency:    defaultDownloadConcurrency,
			RequestTimeout: defaultDownloadTimeout,
		},
		ObjectStorage: ObjectStorage{
			Driver:        defaultStorageDriver,
			Endpoint:      defaultStorageEndpoint,
			AccessKey:     defaultStorageAccessKey,
			SecretKey:     defaultStorageSecretKey,
			Bucket:        defaultStorageBucket,
			Region:        defaultStorageRegion,
			PresignExpiry: defaultPresignExpiry,
		},
		Training: Training{
			Experiment:             defaultExperiment,
			ModelName:              defaultModelName,
			FeatureSamplesPerClass: defaultFeatureSamplesPerCls,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			OnSuccess:      true,
			OnFailure:      true,
		},
	}
}
