package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory and next
// to the executable.
const FileName = "ufwinspector.yml"

// Config is the root configuration.
type Config struct {
	UFWInspector UFWInspectorConfig `yaml:"ufwinspector"`
}

// UFWInspectorConfig is the project configuration.
type UFWInspectorConfig struct {
	Input    InputConfig    `yaml:"input"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Resolver ResolverConfig `yaml:"resolver"`
	ISP      ISPConfig      `yaml:"isp"`
	Rules    RulesConfig    `yaml:"rules"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig selects where log lines come from.
type InputConfig struct {
	Files []string    `yaml:"files"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls the Redis list input. It is used only when Key is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	PageSize int64  `yaml:"page_size"`
}

// AnalysisConfig controls the pipeline.
type AnalysisConfig struct {
	GroupByEventType bool          `yaml:"group_by_event_type"`
	Workers          int           `yaml:"workers"`
	ChunkSize        int           `yaml:"chunk_size"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	MaxEntries       int           `yaml:"max_entries"`
}

// ResolverConfig controls reverse DNS.
type ResolverConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Server        string        `yaml:"server"`
}

// ISPConfig controls ISP lookups for addresses without a domain name.
type ISPConfig struct {
	Enabled       bool              `yaml:"enabled"`
	URL           string            `yaml:"url"`
	Timeout       time.Duration     `yaml:"timeout"`
	RatePerSecond float64           `yaml:"rate_per_second"`
	Burst         int               `yaml:"burst"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// RulesConfig controls Sigma rule tagging.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.UFWInspector.Resolver.Enabled = true
	cfg.UFWInspector.ISP.Enabled = true
	cfg.UFWInspector.Logging.Enabled = true
	cfg.UFWInspector.Logging.Console = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values. Booleans are left as loaded.
func ApplyDefaults(cfg *Config) {
	c := &cfg.UFWInspector

	if len(c.Input.Files) == 0 {
		c.Input.Files = []string{"/var/log/ufw.log"}
	}
	if c.Input.Redis.Addr == "" {
		c.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Input.Redis.PageSize <= 0 {
		c.Input.Redis.PageSize = 1000
	}

	if c.Analysis.Workers <= 0 {
		c.Analysis.Workers = 4
	}
	if c.Analysis.ChunkSize <= 0 {
		c.Analysis.ChunkSize = 2048
	}
	if c.Analysis.MaxEntries < 0 {
		c.Analysis.MaxEntries = 0
	}

	if c.Resolver.Timeout <= 0 {
		c.Resolver.Timeout = 2 * time.Second
	}
	if c.Resolver.MaxConcurrent <= 0 {
		c.Resolver.MaxConcurrent = 16
	}

	if c.ISP.URL == "" {
		c.ISP.URL = "https://ipinfo.io"
	}
	if c.ISP.Timeout <= 0 {
		c.ISP.Timeout = 3 * time.Second
	}
	if c.ISP.RatePerSecond <= 0 {
		c.ISP.RatePerSecond = 1
	}
	if c.ISP.Burst <= 0 {
		c.ISP.Burst = 1
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Load reads the config at path, falling back to defaults when the file
// does not exist.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Save writes cfg to path, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// UserConfigPath returns ~/.config/ufwinspector/config.yml, or "" when the
// user config directory is unknown.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ufwinspector", "config.yml")
}

// ErrConfigNotFound is returned when an explicitly requested config file
// does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// FindConfigFile returns configArg when set, failing if it does not exist.
// Otherwise it returns the first existing file among ./ufwinspector.yml,
// the user config path and the executable's directory, or FileName when
// none exists.
func FindConfigFile(configArg string) (string, error) {
	if configArg != "" {
		if _, err := os.Stat(configArg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrConfigNotFound, configArg)
			}
			return "", fmt.Errorf("stat config %s: %w", configArg, err)
		}
		return configArg, nil
	}

	candidates := []string{FileName, UserConfigPath()}
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), FileName))
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return FileName, nil
}
