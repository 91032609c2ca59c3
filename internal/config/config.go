package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ArtifactFormat selects the on-disk encoding of coverage artifacts
type ArtifactFormat string

const (
	FormatMsgpack ArtifactFormat = "msgpack"
	FormatJSON    ArtifactFormat = "json"
)

// KillPolicy selects how the reaching-definitions solver decides that a
// definition redefines another one
type KillPolicy string

const (
	// KillByName treats any definition with the same variable name as a redefinition.
	KillByName KillPolicy = "name"
	// KillByIdentity additionally requires the same owner and descriptor.
	KillByIdentity KillPolicy = "identity"
)

// Config holds all configuration for dfcov
type Config struct {
	// ClassesDir is where the disassembled class documents are read from
	ClassesDir string `yaml:"classes_dir" env:"DFCOV_CLASSES_DIR"`

	// OutputDir is where coverage artifacts are written
	OutputDir string `yaml:"output_dir" env:"DFCOV_OUTPUT_DIR"`

	// ArtifactFormat is msgpack or json
	ArtifactFormat ArtifactFormat `yaml:"artifact_format" env:"DFCOV_ARTIFACT_FORMAT"`

	// Parallel bounds the number of classes analyzed or loaded at once
	Parallel int `yaml:"parallel" env:"DFCOV_PARALLEL"`

	// KillPolicy controls redefinition matching in the solver
	KillPolicy KillPolicy `yaml:"kill_policy" env:"DFCOV_KILL_POLICY"`

	// Exclude lists glob patterns of class documents to skip
	Exclude []string `yaml:"exclude,omitempty" env:"DFCOV_EXCLUDE"`

	// Logging
	LogLevel      string `yaml:"log_level" env:"DFCOV_LOG_LEVEL"`
	LogFile       string `yaml:"log_file,omitempty" env:"DFCOV_LOG_FILE"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" env:"DFCOV_LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `yaml:"log_max_backups" env:"DFCOV_LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `yaml:"log_max_age_days" env:"DFCOV_LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `yaml:"log_compress" env:"DFCOV_LOG_COMPRESS"`
	Verbose       bool   `yaml:"verbose" env:"DFCOV_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ClassesDir:     "build/dfcov/classes",
		OutputDir:      "build/dfcov/coverage",
		ArtifactFormat: FormatMsgpack,
		Parallel:       runtime.NumCPU(),
		KillPolicy:     KillByName,
		LogLevel:       "info",
		LogMaxSizeMB:   10,
		LogMaxBackups:  3,
		LogMaxAgeDays:  28,
		LogCompress:    false,
		Verbose:        false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.dfcov/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dfcov/config.yaml"
	}
	return filepath.Join(home, ".dfcov", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.dfcov/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".dfcov", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.dfcov/config.yaml)
// 3. Global config (~/.dfcov/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DFCOV_CLASSES_DIR"); v != "" {
		cfg.ClassesDir = v
	}
	if v := os.Getenv("DFCOV_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("DFCOV_ARTIFACT_FORMAT"); v != "" {
		cfg.ArtifactFormat = ArtifactFormat(strings.ToLower(v))
	}
	if v := os.Getenv("DFCOV_PARALLEL"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Parallel = i
		}
	}
	if v := os.Getenv("DFCOV_KILL_POLICY"); v != "" {
		cfg.KillPolicy = KillPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("DFCOV_EXCLUDE"); v != "" {
		cfg.Exclude = splitList(v)
	}
	if v := os.Getenv("DFCOV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DFCOV_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("DFCOV_LOG_MAX_SIZE_MB"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.LogMaxSizeMB = i
		}
	}
	if v := os.Getenv("DFCOV_LOG_MAX_BACKUPS"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.LogMaxBackups = i
		}
	}
	if v := os.Getenv("DFCOV_LOG_MAX_AGE_DAYS"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.LogMaxAgeDays = i
		}
	}
	if v := os.Getenv("DFCOV_LOG_COMPRESS"); v != "" {
		cfg.LogCompress = parseBool(v)
	}
	if v := os.Getenv("DFCOV_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.ArtifactFormat {
	case FormatMsgpack, FormatJSON:
	default:
		return fmt.Errorf("invalid artifact_format: %s (must be 'msgpack' or 'json')", c.ArtifactFormat)
	}

	switch c.KillPolicy {
	case KillByName, KillByIdentity:
	default:
		return fmt.Errorf("invalid kill_policy: %s (must be 'name' or 'identity')", c.KillPolicy)
	}

	if c.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must be non-negative")
	}

	for _, pattern := range c.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	return nil
}

// splitList splits a comma separated environment value
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}
