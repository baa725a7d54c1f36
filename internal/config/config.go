// Package config loads the overlayctl configuration file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Overlay OverlayConfig `yaml:"overlay"`
	Plugins PluginsConfig `yaml:"plugins"`
	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Exclusion sources.
const (
	SourceInline   = "inline"
	SourceFile     = "file"
	SourceRegistry = "registry"
)

// OverlayConfig selects where the exclusion lists come from.
type OverlayConfig struct {
	Source string `yaml:"source"`
	// File is the YAML exclusion file for source "file".
	File string `yaml:"file"`
	// Vendor names the registry key HKCU\Software\<vendor>\overlay.
	Vendor string `yaml:"vendor"`

	// Inline lists, keyed like the other sources (blacklist,
	// launchersexclude, ...), used by source "inline".
	Lists map[string][]string `yaml:"lists"`
	Mode  *int                `yaml:"mode"`
}

type PluginsConfig struct {
	Dir                string `yaml:"dir"`
	FetchInterval      string `yaml:"fetch_interval"`
	TryLockInterval    string `yaml:"trylock_interval"`
	MaxTryLockInterval string `yaml:"max_trylock_interval"`
	SeenCapacity       int    `yaml:"seen_capacity"`
}

// Journal backends.
const (
	JournalNone   = "none"
	JournalJSONL  = "jsonl"
	JournalSQLite = "sqlite"
)

type JournalConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	MaxSize    string `yaml:"max_size"` // jsonl rotation threshold, e.g. 16MiB
	MaxBackups int    `yaml:"max_backups"`
	// Mirror is an optional jsonl file receiving a copy of every event.
	Mirror string `yaml:"mirror"`
	// Poses also journals poses, not only lock transitions.
	Poses bool `yaml:"poses"`
	// PoseEvery keeps one pose in every PoseEvery per plugin.
	PoseEvery int `yaml:"pose_every"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// envOverrides are applied by Load on top of the file.
type envOverrides struct {
	LogLevel     string `env:"OVERLAY_LOG_LEVEL"`
	LogFormat    string `env:"OVERLAY_LOG_FORMAT"`
	ConfigSource string `env:"OVERLAY_CONFIG_SOURCE"`
	MetricsAddr  string `env:"OVERLAY_METRICS_ADDR"`
	PluginDir    string `env:"OVERLAY_PLUGIN_DIR"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes loads configuration from bytes without applying environment
// overrides. This is intended for testing where env vars should not interfere.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	_ = applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Overlay.Source == "" {
		cfg.Overlay.Source = SourceInline
		if runtime.GOOS == "windows" {
			cfg.Overlay.Source = SourceRegistry
		}
	}
	if cfg.Overlay.Vendor == "" {
		cfg.Overlay.Vendor = "GameOverlay"
	}

	if cfg.Plugins.FetchInterval == "" {
		cfg.Plugins.FetchInterval = "20ms"
	}
	if cfg.Plugins.TryLockInterval == "" {
		cfg.Plugins.TryLockInterval = "1s"
	}
	if cfg.Plugins.MaxTryLockInterval == "" {
		cfg.Plugins.MaxTryLockInterval = "10s"
	}
	if cfg.Plugins.SeenCapacity == 0 {
		cfg.Plugins.SeenCapacity = 4096
	}

	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = JournalNone
	}
	if cfg.Journal.MaxSize == "" {
		cfg.Journal.MaxSize = "16MiB"
	}
	if cfg.Journal.MaxBackups == 0 {
		cfg.Journal.MaxBackups = 3
	}
	if cfg.Journal.PoseEvery == 0 {
		cfg.Journal.PoseEvery = 1
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9464"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	if o.ConfigSource != "" {
		cfg.Overlay.Source = o.ConfigSource
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
		cfg.Metrics.Enabled = true
	}
	if o.PluginDir != "" {
		cfg.Plugins.Dir = o.PluginDir
	}
	return nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", cfg.Logging.Format)
	}

	switch cfg.Overlay.Source {
	case SourceInline, SourceRegistry:
	case SourceFile:
		if cfg.Overlay.File == "" {
			return fmt.Errorf("overlay.file is required for source %q", SourceFile)
		}
	default:
		return fmt.Errorf("invalid overlay.source %q", cfg.Overlay.Source)
	}

	for name, v := range map[string]string{
		"plugins.fetch_interval":       cfg.Plugins.FetchInterval,
		"plugins.trylock_interval":     cfg.Plugins.TryLockInterval,
		"plugins.max_trylock_interval": cfg.Plugins.MaxTryLockInterval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.Plugins.SeenCapacity < 0 {
		return fmt.Errorf("plugins.seen_capacity must be >= 0")
	}

	switch cfg.Journal.Backend {
	case JournalNone:
	case JournalJSONL, JournalSQLite:
		if cfg.Journal.Path == "" {
			return fmt.Errorf("journal.path is required for backend %q", cfg.Journal.Backend)
		}
	default:
		return fmt.Errorf("invalid journal.backend %q", cfg.Journal.Backend)
	}
	if _, err := ParseByteSize(cfg.Journal.MaxSize); err != nil {
		return fmt.Errorf("invalid journal.max_size: %w", err)
	}
	if cfg.Journal.PoseEvery < 0 {
		return fmt.Errorf("journal.pose_every must be >= 0, got %d", cfg.Journal.PoseEvery)
	}
	return nil
}

// Intervals returns the parsed plugin host cadences.
func (p PluginsConfig) Intervals() (fetch, tryLock, maxTryLock time.Duration) {
	fetch, _ = time.ParseDuration(p.FetchInterval)
	tryLock, _ = time.ParseDuration(p.TryLockInterval)
	maxTryLock, _ = time.ParseDuration(p.MaxTryLockInterval)
	return fetch, tryLock, maxTryLock
}

// MaxSizeMB returns the rotation threshold rounded up to whole MiB.
func (j JournalConfig) MaxSizeMB() int {
	n, err := ParseByteSize(j.MaxSize)
	if err != nil || n <= 0 {
		return 0
	}
	return int((n + (1<<20 - 1)) >> 20)
}

// PoseSampling is the pose sampling interval for the journal, 0 when poses
// are not journaled.
func (j JournalConfig) PoseSampling() int {
	if !j.Poses {
		return 0
	}
	return j.PoseEvery
}
