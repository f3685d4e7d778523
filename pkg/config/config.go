// Package config provides configuration file support for rcopy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/jvs-project/rcopy/pkg/errclass"
	"github.com/jvs-project/rcopy/pkg/fsutil"
)

// DefaultFileName is looked up in the working directory when no --config
// flag is given.
const DefaultFileName = "rcopy.yaml"

// Config represents the rcopy configuration.
type Config struct {
	RsyncExecutable       string             `yaml:"rsync_executable"`
	SSHExecutable         string             `yaml:"ssh_executable,omitempty"`
	PasswordFile          string             `yaml:"password_file,omitempty"` // rsync daemon module authentication
	DeleteBeforeOverwrite bool               `yaml:"delete_before_overwrite"`
	ExtraFlags            []string           `yaml:"extra_flags,omitempty"`
	ExtraFlagsLine        string             `yaml:"extra_flags_line,omitempty"` // shell-quoted, appended after extra_flags
	ProbeTimeout          string             `yaml:"probe_timeout"`
	VersionTimeout        string             `yaml:"version_timeout"`
	MinimumVersion        string             `yaml:"minimum_version"`
	RemoteHosts           []RemoteHostConfig `yaml:"remote_hosts,omitempty"`
	Logging               LoggingConfig      `yaml:"logging"`
	Metrics               MetricsConfig      `yaml:"metrics"`
}

// RemoteHostConfig names a peer checked by `rcopy doctor` and CheckRemote.
type RemoteHostConfig struct {
	Host            string `yaml:"host"`
	RsyncExecutable string `yaml:"rsync_executable,omitempty"` // located with `type -p rsync` if empty
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the metrics registry.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		RsyncExecutable: "rsync",
		SSHExecutable:   "ssh",
		ProbeTimeout:    "30s",
		VersionTimeout:  "5s",
		MinimumVersion:  "2.6.0",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks values that are parsed lazily elsewhere.
func (c *Config) Validate() error {
	if c.RsyncExecutable == "" {
		return errclass.ErrConfigInvalid.WithMessage("rsync_executable must not be empty")
	}
	if _, err := c.ProbeDeadline(); err != nil {
		return err
	}
	if _, err := c.VersionDeadline(); err != nil {
		return err
	}
	if _, err := c.Flags(); err != nil {
		return err
	}
	for i, h := range c.RemoteHosts {
		if h.Host == "" {
			return errclass.ErrConfigInvalid.WithMessagef("remote_hosts[%d]: host must not be empty", i)
		}
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// ProbeDeadline returns probe_timeout as a duration.
func (c *Config) ProbeDeadline() (time.Duration, error) {
	return parseDuration("probe_timeout", c.ProbeTimeout, 30*time.Second)
}

// VersionDeadline returns version_timeout as a duration.
func (c *Config) VersionDeadline() (time.Duration, error) {
	return parseDuration("version_timeout", c.VersionTimeout, 5*time.Second)
}

// Flags returns extra_flags followed by the split extra_flags_line.
func (c *Config) Flags() ([]string, error) {
	flags := append([]string(nil), c.ExtraFlags...)
	if strings.TrimSpace(c.ExtraFlagsLine) == "" {
		return flags, nil
	}
	parts, err := shlex.Split(c.ExtraFlagsLine)
	if err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("extra_flags_line: %v", err)
	}
	return append(flags, parts...), nil
}

// RemoteRsync returns the configured remote rsync path per host.
func (c *Config) RemoteRsync() map[string]string {
	out := make(map[string]string, len(c.RemoteHosts))
	for _, h := range c.RemoteHosts {
		if h.RsyncExecutable != "" {
			out[h.Host] = h.RsyncExecutable
		}
	}
	return out
}

// Hosts returns the configured remote host names.
func (c *Config) Hosts() []string {
	out := make([]string, 0, len(c.RemoteHosts))
	for _, h := range c.RemoteHosts {
		out = append(out, h.Host)
	}
	return out
}

func parseDuration(key, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, errclass.ErrConfigInvalid.WithMessagef("%s: invalid duration %q", key, value)
	}
	return d, nil
}

// Keys lists the keys accepted by Get and Set.
var Keys = []string{
	"rsync_executable",
	"ssh_executable",
	"password_file",
	"delete_before_overwrite",
	"extra_flags_line",
	"probe_timeout",
	"version_timeout",
	"minimum_version",
	"logging.level",
	"logging.format",
	"metrics.enabled",
}

// Get returns the string form of a scalar configuration value.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "rsync_executable":
		return c.RsyncExecutable, nil
	case "ssh_executable":
		return c.SSHExecutable, nil
	case "password_file":
		return c.PasswordFile, nil
	case "delete_before_overwrite":
		return strconv.FormatBool(c.DeleteBeforeOverwrite), nil
	case "extra_flags_line":
		return c.ExtraFlagsLine, nil
	case "probe_timeout":
		return c.ProbeTimeout, nil
	case "version_timeout":
		return c.VersionTimeout, nil
	case "minimum_version":
		return c.MinimumVersion, nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "metrics.enabled":
		return strconv.FormatBool(c.Metrics.Enabled), nil
	}
	return "", errclass.ErrConfigInvalid.WithMessagef("unknown key %q", key)
}

// Set assigns a scalar configuration value and re-validates.
func (c *Config) Set(key, value string) error {
	next := *c
	switch key {
	case "rsync_executable":
		next.RsyncExecutable = value
	case "ssh_executable":
		next.SSHExecutable = value
	case "password_file":
		next.PasswordFile = value
	case "delete_before_overwrite":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		next.DeleteBeforeOverwrite = b
	case "extra_flags_line":
		next.ExtraFlagsLine = value
	case "probe_timeout":
		next.ProbeTimeout = value
	case "version_timeout":
		next.VersionTimeout = value
	case "minimum_version":
		next.MinimumVersion = value
	case "logging.level":
		next.Logging.Level = value
	case "logging.format":
		next.Logging.Format = value
	case "metrics.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		next.Metrics.Enabled = b
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown key %q", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
