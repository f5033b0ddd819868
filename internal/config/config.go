package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.envsync/envsync.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version     int               `yaml:"version"`
	DataDir     string            `yaml:"data_dir,omitempty"`
	ObjectStore ObjectStoreConfig `yaml:"object_store,omitempty"`
	Load        LoadConfig        `yaml:"load,omitempty"`
	Migrations  MigrationConfig   `yaml:"migrations,omitempty"`
	Logging     LogConfig         `yaml:"logging,omitempty"`
}

// ObjectStoreConfig defines where cached data files are kept remotely.
type ObjectStoreConfig struct {
	Prefix string `yaml:"prefix,omitempty"` // default pyetl
	Region string `yaml:"region,omitempty"` // default us-east-1
}

// LoadConfig bounds the retry loops of the bulk loader.
type LoadConfig struct {
	MaxRetries              int `yaml:"max_retries,omitempty"`               // default 10
	PurgeMaxRetries         int `yaml:"purge_max_retries,omitempty"`         // default 25
	EnableConstraintRetries int `yaml:"enable_constraint_retries,omitempty"` // default 5
	ChunkSize               int `yaml:"chunk_size,omitempty"`                // default 10000
}

// MigrationConfig holds defaults for create-migrations.
type MigrationConfig struct {
	Folder          string `yaml:"folder,omitempty"`           // default migrations
	StartingVersion string `yaml:"starting_version,omitempty"` // default 1.0.0
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.envsync/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file from the given path. A missing file
// at the default location yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if v := os.Getenv("LOCAL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.DataDir = ExpandHome(c.DataDir)
	if c.ObjectStore.Prefix == "" {
		c.ObjectStore.Prefix = "pyetl"
	}
	if c.ObjectStore.Region == "" {
		c.ObjectStore.Region = "us-east-1"
	}
	if c.Load.MaxRetries == 0 {
		c.Load.MaxRetries = 10
	}
	if c.Load.PurgeMaxRetries == 0 {
		c.Load.PurgeMaxRetries = 25
	}
	if c.Load.EnableConstraintRetries == 0 {
		c.Load.EnableConstraintRetries = 5
	}
	if c.Load.ChunkSize == 0 {
		c.Load.ChunkSize = 10000
	}
	if c.Migrations.Folder == "" {
		c.Migrations.Folder = "migrations"
	}
	if c.Migrations.StartingVersion == "" {
		c.Migrations.StartingVersion = "1.0.0"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.envsync/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
