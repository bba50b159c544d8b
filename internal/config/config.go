package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// BatchConfig controls the occurrence pre-fill job.
type BatchConfig struct {
	// Cron is a cron-style schedule string (e.g. "0 3 * * *").
	Cron string `yaml:"cron" json:"cron"`

	// HorizonDays is how far ahead occurrences are pre-filled.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone instances are presented in on outward
	// surfaces (the ICS feed). Recurrence arithmetic itself is always done
	// on nominal calendar dates.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// MaxWindowDays caps expansion windows for never-ending rules.
	MaxWindowDays int `yaml:"max_window_days" json:"max_window_days"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	Batch BatchConfig `yaml:"batch" json:"batch"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		Timezone:      "UTC",
		DBPath:        "famcal.db",
		MaxWindowDays: 1100,
		LogLevel:      "info",
		Batch: BatchConfig{
			Cron:        "0 3 * * *",
			HorizonDays: 30,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs from older versions still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DBPath == "" {
		c.DBPath = "famcal.db"
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = 1100
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Batch.Cron == "" {
		c.Batch.Cron = "0 3 * * *"
	}
	if c.Batch.HorizonDays <= 0 {
		c.Batch.HorizonDays = 30
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (parent
// directory created as needed, 0600 perms) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg alongside the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically: temp file in the same
// directory, fsync, chmod 0600, rename over the target.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".famcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
