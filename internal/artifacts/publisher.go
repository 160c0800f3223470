package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"greenr/internal/logging"
	"greenr/internal/objectstore"
)

// Published describes an uploaded model.
type Published struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	Files  int    `json:"files"`
}

// URI returns the s3:// location of the published model.
func (p Published) URI() string {
	return fmt.Sprintf("s3://%s/%s", p.Bucket, p.Prefix)
}

// Publisher uploads model directories under a common root prefix.
type Publisher struct {
	Client objectstore.Client
	// Prefix is prepended to every key; empty means the bucket root.
	Prefix string
	Logger *slog.Logger
}

// NewPublisher returns a Publisher for client.
func NewPublisher(client objectstore.Client, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		Client: client,
		Prefix: prefix,
		Logger: logging.NewComponentLogger(logger, "artifacts"),
	}
}

// ModelPrefix returns <prefix>/models/<name>[/<id>].
func (p *Publisher) ModelPrefix(modelName, modelID string) string {
	return objectstore.JoinKey(p.Prefix, "models", modelName, modelID)
}

// PublishModel uploads modelDir to models/<modelName>/<modelID>.
func (p *Publisher) PublishModel(ctx context.Context, modelDir, modelName, modelID string) (Published, error) {
	if err := validateSegment("model name", modelName); err != nil {
		return Published{}, err
	}
	if err := validateSegment("model id", modelID); err != nil {
		return Published{}, err
	}

	prefix := p.ModelPrefix(modelName, modelID)
	count, err := objectstore.UploadDirectory(ctx, p.Client, modelDir, prefix)
	if err != nil {
		logging.WarnWithContext(p.logger(), "model upload failed", "model_publish_failed",
			logging.String("model_dir", modelDir),
			logging.String("prefix", prefix),
			logging.Int("uploaded", count),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check object_storage settings and bucket permissions"),
			logging.String(logging.FieldImpact, "model is only partially published"),
		)
		return Published{}, fmt.Errorf("publish model: %w", err)
	}
	if count == 0 {
		return Published{}, fmt.Errorf("publish model: %s contains no files", modelDir)
	}

	published := Published{Bucket: p.Client.Bucket(), Prefix: prefix, Files: count}
	p.logger().Info("model published",
		logging.EventType("model_published"),
		logging.String("uri", published.URI()),
		logging.Int("files", count),
	)
	return published, nil
}

// ListModels lists the published objects of modelName. An empty name lists
// every model.
func (p *Publisher) ListModels(ctx context.Context, modelName string) ([]objectstore.ObjectInfo, error) {
	prefix := p.ModelPrefix(modelName, "") + "/"
	return p.Client.List(ctx, prefix)
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}

func validateSegment(name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return errors.New(name + " must be a single path segment")
	}
	return nil
}
