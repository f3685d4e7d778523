package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jvs-project/rcopy/internal/copier"
	"github.com/jvs-project/rcopy/pkg/config"
	"github.com/jvs-project/rcopy/pkg/fsutil"
	"github.com/jvs-project/rcopy/pkg/logging"
	"github.com/jvs-project/rcopy/pkg/metrics"
)

// session bundles what a command needs to talk to rsync.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Registry
	copier  *copier.Copier
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	name := cfg.Logging.Level
	if logLevel != "" {
		name = logLevel
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, level, cfg.Logging.Format), nil
}

// openSession loads the configuration and builds a copier from it.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	var reg *metrics.Registry
	if cfg.Metrics.Enabled || metricsFile != "" {
		reg = metrics.NewRegistry()
	}
	c, err := copier.FromConfig(cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, metrics: reg, copier: c}, nil
}

// close flushes the logger and writes metrics when requested.
func (s *session) close() {
	_ = s.logger.Sync()
	if s.metrics == nil || metricsFile == "" {
		return
	}
	if err := writeMetrics(s.metrics, metricsFile); err != nil {
		fmtErr("write metrics: %v", err)
	}
}

// writeMetrics replaces path atomically so a textfile collector never reads
// a partial exposition.
func writeMetrics(reg *metrics.Registry, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := reg.WriteText(&buf); err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, buf.Bytes(), 0644)
}
