package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/releasecheck/internal/checks"
)

const (
	defaultPort            = "8080"
	defaultRateLimitRPS    = 25.0
	defaultRateLimitBurst  = 50
	defaultMaxRequestBytes = 1 << 20
)

// ErrRepoRootNotFound is returned when no repository root holding the release configs can be located.
var ErrRepoRootNotFound = errors.New("unable to locate repository root")

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	RepoRoot      string
	Files         checks.Files
	ForbiddenFlag string
	Force         bool

	LogLevel  string
	LogFormat string

	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxRequestBytes      int64

	WatchCooldown time.Duration
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	RepoRoot             string        `yaml:"repo_root"`
	Files                yamlFiles     `yaml:"files"`
	ForbiddenFlag        string        `yaml:"forbidden_flag"`
	Force                *bool         `yaml:"force"`
	LogLevel             string        `yaml:"log_level"`
	LogFormat            string        `yaml:"log_format"`
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	MaxRequestBytes      int64         `yaml:"max_request_bytes"`
	WatchCooldown        string        `yaml:"watch_cooldown"`
}

type yamlFiles struct {
	Training  string `yaml:"training"`
	Inference string `yaml:"inference"`
	Patches   string `yaml:"patches"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	RepoRoot       *string
	Force          *bool
	LogLevel       *string
	LogFormat      *string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Files:                checks.DefaultFiles(),
		ForbiddenFlag:        checks.DefaultForbiddenFlag,
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		MaxRequestBytes:      defaultMaxRequestBytes,
		WatchCooldown:        500 * time.Millisecond,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.RepoRoot != "" {
		cfg.RepoRoot = yamlCfg.RepoRoot
	}

	if yamlCfg.Files.Training != "" {
		cfg.Files.Training = yamlCfg.Files.Training
	}
	if yamlCfg.Files.Inference != "" {
		cfg.Files.Inference = yamlCfg.Files.Inference
	}
	if yamlCfg.Files.Patches != "" {
		cfg.Files.Patches = yamlCfg.Files.Patches
	}

	if yamlCfg.ForbiddenFlag != "" {
		cfg.ForbiddenFlag = yamlCfg.ForbiddenFlag
	}
	if yamlCfg.Force != nil {
		cfg.Force = *yamlCfg.Force
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogFormat != "" {
		cfg.LogFormat = yamlCfg.LogFormat
	}
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
		{"watch_cooldown", yamlCfg.WatchCooldown, &cfg.WatchCooldown},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.field = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}
	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}
	if yamlCfg.MaxRequestBytes > 0 {
		cfg.MaxRequestBytes = yamlCfg.MaxRequestBytes
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if root := strings.TrimSpace(os.Getenv("RELEASECHECK_ROOT")); root != "" {
		cfg.RepoRoot = root
	}

	if raw := strings.TrimSpace(os.Getenv("RELEASECHECK_FORCE")); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid RELEASECHECK_FORCE %q: %w", raw, err)
		}
		cfg.Force = force
	}

	if level := strings.TrimSpace(os.Getenv("RELEASECHECK_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.RepoRoot != nil && *overrides.RepoRoot != "" {
		cfg.RepoRoot = *overrides.RepoRoot
	}

	if overrides.Force != nil {
		cfg.Force = *overrides.Force
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.LogFormat != nil && *overrides.LogFormat != "" {
		cfg.LogFormat = *overrides.LogFormat
	}

	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Files.Training == "" || cfg.Files.Inference == "" || cfg.Files.Patches == "" {
		return fmt.Errorf("training, inference and patches file names must all be set")
	}
	seen := make(map[string]struct{}, 3)
	for _, name := range cfg.Files.All() {
		clean := filepath.Clean(name)
		if _, dup := seen[clean]; dup {
			return fmt.Errorf("file name %q is configured more than once", name)
		}
		seen[clean] = struct{}{}
	}
	if cfg.ForbiddenFlag == "" {
		return fmt.Errorf("forbidden flag cannot be empty")
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", cfg.LogFormat)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxRequestBytes <= 0 {
		return fmt.Errorf("max request bytes must be positive")
	}
	if cfg.WatchCooldown < 0 {
		return fmt.Errorf("watch cooldown must be >= 0")
	}
	return nil
}

// ResolveRepoRoot returns the absolute repository directory. An explicit
// RepoRoot wins; otherwise the working directory and its parents are
// searched for the training config file.
func (c Config) ResolveRepoRoot() (string, error) {
	if c.RepoRoot != "" {
		abs, err := filepath.Abs(c.RepoRoot)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", c.RepoRoot, err)
		}
		return abs, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findRepoRoot(dir, c.Files.Training)
}

// findRepoRoot walks up from dir until marker exists in the directory.
func findRepoRoot(dir, marker string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%w: no parent directory contains %s", ErrRepoRootNotFound, marker)
}
