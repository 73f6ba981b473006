package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/vtrace/internal/fingerprint"
	"github.com/ehrlich-b/vtrace/internal/logger"
	"github.com/ehrlich-b/vtrace/internal/patch"
)

const (
	BackendYAML   = "yaml"
	BackendSQLite = "sqlite"
)

// Config represents the project configuration in .vtrace/config.yaml.
type Config struct {
	TraceDir string        `yaml:"trace_dir"`
	Store    StoreConfig   `yaml:"store"`
	Patch    PatchConfig   `yaml:"patch"`
	Hash     HashConfig    `yaml:"hash"`
	Logging  LoggingConfig `yaml:"logging"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`        // "yaml" (default) or "sqlite"
	Path    string `yaml:"path,omitempty"` // sqlite database file
}

type PatchConfig struct {
	// Format is recorded into new sessions: "legacy" or "positional".
	Format string `yaml:"format"`
}

type HashConfig struct {
	Algorithm string `yaml:"algorithm"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		TraceDir: DirName,
		Store:    StoreConfig{Backend: BackendYAML, Path: filepath.Join(DirName, "vtrace.db")},
		Patch:    PatchConfig{Format: string(patch.FormatLegacy)},
		Hash:     HashConfig{Algorithm: string(fingerprint.SHA256)},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path on top of the defaults. A missing
// file is not an error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadProject finds the project root from the working directory, loads
// its config and resolves relative paths against the root.
func LoadProject() (*Config, string, error) {
	root, err := GetProjectDir()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(ConfigPath(root))
	if err != nil {
		return nil, "", err
	}
	cfg.resolve(root)
	return cfg, root, nil
}

// Override with environment variables if present
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("VTRACE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("VTRACE_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := getenv("VTRACE_PATCH_FORMAT"); v != "" {
		c.Patch.Format = v
	}
}

func (c *Config) resolve(root string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	c.TraceDir = abs(c.TraceDir)
	c.Store.Path = abs(c.Store.Path)
	c.Logging.File = abs(c.Logging.File)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.TraceDir == "" {
		return fmt.Errorf("trace_dir is required")
	}
	switch c.Store.Backend {
	case BackendYAML:
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'yaml' or 'sqlite', got %q", c.Store.Backend)
	}
	if _, err := patch.ParseFormat(c.Patch.Format); err != nil {
		return fmt.Errorf("patch.format: %w", err)
	}
	if _, err := fingerprint.ParseAlgorithm(c.Hash.Algorithm); err != nil {
		return fmt.Errorf("hash.algorithm: %w", err)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// Save writes c to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
