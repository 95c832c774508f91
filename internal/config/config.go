package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Krishna8167/modelcache"
	"github.com/Krishna8167/modelcache/visibility"
)

// Config holds modelcache tool configuration.
type Config struct {
	Assets     AssetsConfig     `yaml:"assets"`
	Cache      CacheConfig      `yaml:"cache"`
	Visibility VisibilityConfig `yaml:"visibility"`
	Render     RenderConfig     `yaml:"render"`
	Watch      WatchConfig      `yaml:"watch"`
	Memory     MemoryConfig     `yaml:"memory"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AssetsConfig says where model files come from. BaseURL wins over Root
// when both are set.
type AssetsConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// CacheConfig configures the model cache. Empty values mean unbounded.
type CacheConfig struct {
	MaxBytes        string `yaml:"max_bytes"` // "256 MB", "1GiB"
	IdleTTL         string `yaml:"idle_ttl"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// VisibilityConfig configures visibility gating.
type VisibilityConfig struct {
	Enabled       bool      `yaml:"enabled"`
	Enter         float64   `yaml:"enter"`
	Exit          float64   `yaml:"exit"`
	AssumeVisible bool      `yaml:"assume_visible"`
	Thresholds    []float64 `yaml:"thresholds"`
	RootMargin    string    `yaml:"root_margin"`
}

// RenderConfig configures the frame loop.
type RenderConfig struct {
	FPS int `yaml:"fps"`
}

// WatchConfig configures hot reload.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// MemoryConfig configures memory sampling.
type MemoryConfig struct {
	Interval string `yaml:"interval"`
	Samples  int    `yaml:"samples"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	vis := visibility.DefaultConfig()
	return &Config{
		Assets: AssetsConfig{
			Root:    ".",
			Timeout: "30s",
		},
		Cache: CacheConfig{
			CleanupInterval: "1m",
		},
		Visibility: VisibilityConfig{
			Enabled:       vis.Supported,
			Enter:         vis.Enter,
			Exit:          vis.Exit,
			AssumeVisible: vis.AssumeVisible,
			Thresholds:    append([]float64(nil), visibility.DefaultThresholds...),
			RootMargin:    "0px",
		},
		Render: RenderConfig{
			FPS: 60,
		},
		Watch: WatchConfig{
			Debounce: "200ms",
		},
		Memory: MemoryConfig{
			Interval: "5s",
			Samples:  50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if lvl := os.Getenv("MODELCACHE_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = strings.ToLower(lvl)
	}
	if root := os.Getenv("MODELCACHE_ASSET_ROOT"); root != "" {
		c.Assets.Root = root
	}
}

// Validate checks ranges and that every string value parses.
func (c *Config) Validate() error {
	if _, err := parseDuration("assets.timeout", c.Assets.Timeout); err != nil {
		return err
	}
	if _, err := c.MaxBytes(); err != nil {
		return err
	}
	if _, err := parseDuration("cache.idle_ttl", c.Cache.IdleTTL); err != nil {
		return err
	}
	if _, err := parseDuration("cache.cleanup_interval", c.Cache.CleanupInterval); err != nil {
		return err
	}
	if _, err := parseDuration("watch.debounce", c.Watch.Debounce); err != nil {
		return err
	}
	if _, err := parseDuration("memory.interval", c.Memory.Interval); err != nil {
		return err
	}
	if c.Memory.Samples < 0 {
		return fmt.Errorf("memory.samples must not be negative, got %d", c.Memory.Samples)
	}

	v := c.Visibility
	if v.Enter <= 0 || v.Enter > 1 {
		return fmt.Errorf("visibility.enter must be in (0,1], got %v", v.Enter)
	}
	if v.Exit < 0 || v.Exit > v.Enter {
		return fmt.Errorf("visibility.exit must be in [0,enter], got %v", v.Exit)
	}
	for _, t := range v.Thresholds {
		if t < 0 || t > 1 {
			return fmt.Errorf("visibility.thresholds: %v out of [0,1]", t)
		}
	}
	if _, err := visibility.ParseRootMargin(v.RootMargin); err != nil {
		return fmt.Errorf("visibility.root_margin: %w", err)
	}

	if c.Render.FPS <= 0 || c.Render.FPS > 1000 {
		return fmt.Errorf("render.fps must be in [1,1000], got %d", c.Render.FPS)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// MaxBytes parses cache.max_bytes. Empty means unbounded (0).
func (c *Config) MaxBytes() (int64, error) {
	if c.Cache.MaxBytes == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Cache.MaxBytes)
	if err != nil {
		return 0, fmt.Errorf("cache.max_bytes: %w", err)
	}
	return int64(n), nil
}

// GetTimeout returns the asset fetch timeout.
func (c *Config) GetTimeout() time.Duration {
	d, _ := parseDuration("", c.Assets.Timeout)
	return d
}

// GetDebounce returns the hot-reload debounce window.
func (c *Config) GetDebounce() time.Duration {
	d, _ := parseDuration("", c.Watch.Debounce)
	return d
}

// GetSampleInterval returns the memory sampling interval.
func (c *Config) GetSampleInterval() time.Duration {
	d, _ := parseDuration("", c.Memory.Interval)
	return d
}

// CacheOptions translates the cache section into modelcache options.
func (c *Config) CacheOptions(logger *zap.Logger) []modelcache.Option {
	opts := []modelcache.Option{modelcache.WithLogger(logger)}
	if n, err := c.MaxBytes(); err == nil && n > 0 {
		opts = append(opts, modelcache.WithMaxBytes(n))
	}
	if d, _ := parseDuration("", c.Cache.IdleTTL); d > 0 {
		opts = append(opts, modelcache.WithIdleTTL(d))
	}
	if d, _ := parseDuration("", c.Cache.CleanupInterval); d > 0 {
		opts = append(opts, modelcache.WithCleanupInterval(d))
	}
	return opts
}

// MonitorConfig translates the visibility section.
func (c *Config) MonitorConfig() visibility.Config {
	return visibility.Config{
		Supported:     c.Visibility.Enabled,
		Enter:         c.Visibility.Enter,
		Exit:          c.Visibility.Exit,
		AssumeVisible: c.Visibility.AssumeVisible,
	}
}

// NewLogger builds a zap logger from the logging section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", field, s)
	}
	return d, nil
}
