package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"greenr/internal/artifacts"
	"greenr/internal/config"
	"greenr/internal/featurestore"
	"greenr/internal/logging"
	"greenr/internal/objectstore"
	"greenr/internal/tracking"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	closers []io.Closer
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// loggerValue builds the application logger on first use and prunes expired
// run logs.
func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			logger, _ = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		}
		if logger == nil {
			logger = logging.NewNop()
		}
		c.logger = logger
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
			Dir:        runLogDir(cfg),
			Pattern:    "*.log",
			KeepLatest: runLogsAlwaysKept,
		})
	})
	return c.logger
}

// runLogsAlwaysKept keeps the most recent run logs readable via `runs logs`
// even after retention_days has passed.
const runLogsAlwaysKept = 10

func (c *commandContext) openFeatureStore() (*featurestore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := featurestore.OpenDir(cfg.Paths.FeatureStoreDir, cfg.FeatureStore, c.loggerValue())
	if err != nil {
		return nil, fmt.Errorf("open feature store: %w", err)
	}
	c.closers = append(c.closers, store)
	return store, nil
}

func (c *commandContext) openTracker() (*tracking.Tracker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	tracker, err := tracking.Open(cfg.Paths.TrackingDB, c.loggerValue())
	if err != nil {
		return nil, fmt.Errorf("open tracking database: %w", err)
	}
	c.closers = append(c.closers, tracker)
	return tracker, nil
}

func (c *commandContext) openObjectStore(ctx context.Context) (objectstore.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return artifacts.OpenStore(ctx, cfg.ObjectStorage)
}

func (c *commandContext) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
	c.closers = nil
}

func runLogDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "runs")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
