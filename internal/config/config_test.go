package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"ClassesDir", cfg.ClassesDir, "build/dfcov/classes"},
		{"OutputDir", cfg.OutputDir, "build/dfcov/coverage"},
		{"ArtifactFormat", cfg.ArtifactFormat, FormatMsgpack},
		{"Parallel", cfg.Parallel, runtime.NumCPU()},
		{"KillPolicy", cfg.KillPolicy, KillByName},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogMaxSizeMB", cfg.LogMaxSizeMB, 10},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "json format", mutate: func(c *Config) { c.ArtifactFormat = FormatJSON }},
		{name: "identity kill policy", mutate: func(c *Config) { c.KillPolicy = KillByIdentity }},
		{
			name:        "invalid format",
			mutate:      func(c *Config) { c.ArtifactFormat = "xml" },
			errContains: "invalid artifact_format",
		},
		{
			name:        "invalid kill policy",
			mutate:      func(c *Config) { c.KillPolicy = "owner" },
			errContains: "invalid kill_policy",
		},
		{
			name:        "zero parallel",
			mutate:      func(c *Config) { c.Parallel = 0 },
			errContains: "parallel must be positive",
		},
		{
			name:        "missing output dir",
			mutate:      func(c *Config) { c.OutputDir = "" },
			errContains: "output_dir is required",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.LogLevel = "trace" },
			errContains: "invalid log_level",
		},
		{
			name:        "negative rotation",
			mutate:      func(c *Config) { c.LogMaxBackups = -1 },
			errContains: "non-negative",
		},
		{
			name:        "bad exclude pattern",
			mutate:      func(c *Config) { c.Exclude = []string{"["} },
			errContains: "invalid exclude pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.errContains)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		checkCfg    func(*testing.T, *Config)
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
classes_dir: out/classes
output_dir: out/coverage
artifact_format: json
parallel: 3
kill_policy: identity
exclude:
  - "*Test*.yaml"
log_level: debug
verbose: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.ClassesDir != "out/classes" {
					t.Errorf("ClassesDir = %v, want out/classes", cfg.ClassesDir)
				}
				if cfg.ArtifactFormat != FormatJSON {
					t.Errorf("ArtifactFormat = %v, want json", cfg.ArtifactFormat)
				}
				if cfg.Parallel != 3 {
					t.Errorf("Parallel = %v, want 3", cfg.Parallel)
				}
				if cfg.KillPolicy != KillByIdentity {
					t.Errorf("KillPolicy = %v, want identity", cfg.KillPolicy)
				}
				if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "*Test*.yaml" {
					t.Errorf("Exclude = %v", cfg.Exclude)
				}
				if !cfg.Verbose {
					t.Error("Verbose = false, want true")
				}
			},
		},
		{
			name:       "env overrides file",
			configYAML: "parallel: 2\nartifact_format: json\n",
			envVars: map[string]string{
				"DFCOV_PARALLEL":        "7",
				"DFCOV_ARTIFACT_FORMAT": "MSGPACK",
				"DFCOV_EXCLUDE":         "a.yaml, b.yaml",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Parallel != 7 {
					t.Errorf("Parallel = %v, want 7", cfg.Parallel)
				}
				if cfg.ArtifactFormat != FormatMsgpack {
					t.Errorf("ArtifactFormat = %v, want msgpack", cfg.ArtifactFormat)
				}
				if len(cfg.Exclude) != 2 || cfg.Exclude[1] != "b.yaml" {
					t.Errorf("Exclude = %v, want [a.yaml b.yaml]", cfg.Exclude)
				}
			},
		},
		{
			name:        "invalid yaml",
			configYAML:  "parallel: [",
			errContains: "failed to parse config file",
		},
		{
			name:        "invalid values",
			configYAML:  "kill_policy: fuzzy\n",
			errContains: "invalid kill_policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := LoadFromFile(path)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("LoadFromFile() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromFile() unexpected error: %v", err)
			}
			tt.checkCfg(t, cfg)
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("LoadFromFile() error = %v, want read error", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DFCOV_CLASSES_DIR", "/tmp/classes")
	t.Setenv("DFCOV_OUTPUT_DIR", "/tmp/cov")
	t.Setenv("DFCOV_KILL_POLICY", "IDENTITY")
	t.Setenv("DFCOV_LOG_FILE", "/tmp/dfcov.log")
	t.Setenv("DFCOV_LOG_COMPRESS", "yes")
	t.Setenv("DFCOV_VERBOSE", "1")
	t.Setenv("DFCOV_PARALLEL", "not-a-number")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.ClassesDir != "/tmp/classes" || cfg.OutputDir != "/tmp/cov" {
		t.Errorf("dirs = %q %q", cfg.ClassesDir, cfg.OutputDir)
	}
	if cfg.KillPolicy != KillByIdentity {
		t.Errorf("KillPolicy = %v, want identity", cfg.KillPolicy)
	}
	if cfg.LogFile != "/tmp/dfcov.log" || !cfg.LogCompress {
		t.Errorf("log settings = %q %v", cfg.LogFile, cfg.LogCompress)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
	if cfg.Parallel != runtime.NumCPU() {
		t.Errorf("Parallel = %d, want default kept on bad input", cfg.Parallel)
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"42", 42},
		{"0", 0},
		{"abc", -1},
		{"", -1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseInt(tt.in); got != tt.want {
				t.Errorf("parseInt(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")

	cfg := DefaultConfig()
	cfg.ArtifactFormat = FormatJSON
	cfg.Exclude = []string{"*Generated*"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.ArtifactFormat != FormatJSON {
		t.Errorf("ArtifactFormat = %v, want json", loaded.ArtifactFormat)
	}
	if len(loaded.Exclude) != 1 || loaded.Exclude[0] != "*Generated*" {
		t.Errorf("Exclude = %v", loaded.Exclude)
	}
}
