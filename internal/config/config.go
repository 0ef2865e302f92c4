// Package config loads arbor.yaml (or arbor.json) project settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the project directory when no path is given.
const DefaultFile = "arbor.yaml"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config is the project configuration.
type Config struct {
	LogLevel string     `yaml:"log_level" json:"log_level"`
	Store    Store      `yaml:"store" json:"store"`
	History  History    `yaml:"history" json:"history"`
	Security Security   `yaml:"security" json:"security"`
	HTTP     HTTP       `yaml:"http" json:"http"`
	Lock     LockConfig `yaml:"lock" json:"lock"`
}

// Store selects the persistence backend. Options are driver specific and
// decoded with DecodeOptions.
type Store struct {
	Driver  string         `yaml:"driver" json:"driver"`
	Options map[string]any `yaml:"options" json:"options"`
}

// History holds the engine limits.
type History struct {
	MaxNodes   int  `yaml:"max_nodes" json:"max_nodes"`
	QuotaBytes int  `yaml:"quota_bytes" json:"quota_bytes"`
	Autosave   bool `yaml:"autosave" json:"autosave"`
	Strict     bool `yaml:"strict" json:"strict"`
}

// Security configures the storage middlewares.
type Security struct {
	// EncryptionKeyEnv names the environment variable holding a base64
	// AES-256 key. Empty disables encryption at rest.
	EncryptionKeyEnv string `yaml:"encryption_key_env" json:"encryption_key_env"`
	// FallbackKeyEnvs name variables holding retired keys, for rotation.
	FallbackKeyEnvs []string `yaml:"fallback_key_envs" json:"fallback_key_envs"`
	// RedactPatterns masks settings and entity attributes whose keys match.
	RedactPatterns []string `yaml:"redact_patterns" json:"redact_patterns"`
}

// HTTP configures the serve command.
type HTTP struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LockConfig configures distributed locking (Redis driver only).
type LockConfig struct {
	Distributed bool          `yaml:"distributed" json:"distributed"`
	TTL         time.Duration `yaml:"ttl" json:"ttl"`
}

// FileOptions are the options of the file driver.
type FileOptions struct {
	Dir string `mapstructure:"dir"`
}

// RedisOptions are the options of the redis driver.
type RedisOptions struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SQLiteOptions are the options of the sqlite driver.
type SQLiteOptions struct {
	Path string `mapstructure:"path"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel: "info",
		Store:    Store{Driver: DriverFile, Options: map[string]any{}},
		History:  History{MaxNodes: 500, Autosave: true},
		HTTP:     HTTP{Addr: ":8080"},
		Lock:     LockConfig{TTL: 30 * time.Second},
	}
}

// Load reads path (YAML or JSON by extension) on top of Default.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and negative limits.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverRedis, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.History.MaxNodes < 0 {
		return fmt.Errorf("history.max_nodes must not be negative")
	}
	if c.History.QuotaBytes < 0 {
		return fmt.Errorf("history.quota_bytes must not be negative")
	}
	if c.Lock.Distributed && c.Store.Driver != DriverRedis {
		return fmt.Errorf("distributed locking requires the redis driver")
	}
	return nil
}

// DecodeOptions decodes the driver options into out (one of the *Options
// structs). Durations may be given as strings ("10m").
func (s Store) DecodeOptions(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(s.Options); err != nil {
		return fmt.Errorf("invalid %s store options: %w", s.Driver, err)
	}
	return nil
}
