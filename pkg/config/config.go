package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/kvquery/kvquery/internal/ratelimit"
)

// Config represents the complete application configuration.
type Config struct {
	Profile   string           `mapstructure:"profile"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Search    SearchConfig     `mapstructure:"search"`
	RestAPI   RestAPIConfig    `mapstructure:"rest_api"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
}

// StorageConfig selects and configures the storage adapter backing the
// engine. Kind selects which internal/storage implementation is
// connected at startup.
type StorageConfig struct {
	Kind           string        `mapstructure:"kind"` // "memory" or "sqlite"
	Path           string        `mapstructure:"path"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	MaxBackups     int           `mapstructure:"max_backups"`
}

// CacheConfig holds per-table result cache configuration.
type CacheConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxEntriesPerTable int  `mapstructure:"max_entries_per_table"`
}

// SearchConfig holds tokenizer and fuzzy-matching defaults applied as a
// fallback when a table's schema.SearchColumn doesn't set its own Mode.
type SearchConfig struct {
	DefaultMode string `mapstructure:"default_mode"` // raw, stem, metaphone, stem+metaphone

	// DefaultFuzziness is a 0-1 dial controlling how permissive fuzzy
	// search(...) matching is; internal/selector scales it into the
	// word-level edit-distance bound fuzzy index lookups use.
	DefaultFuzziness float64 `mapstructure:"default_fuzziness"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AutoPort bool   `mapstructure:"auto_port"`
	Port     int    `mapstructure:"port"`
	Host     string `mapstructure:"host"`
	CORS     bool   `mapstructure:"cors"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with the engine's default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".kvquery")

	return &Config{
		Profile: "default",
		Storage: StorageConfig{
			Kind:           "sqlite",
			Path:           filepath.Join(configDir, "kvquery.db"),
			BackupInterval: 24 * time.Hour,
			MaxBackups:     7,
		},
		Cache: CacheConfig{
			Enabled:            true,
			MaxEntriesPerTable: 500,
		},
		Search: SearchConfig{
			DefaultMode:      "stem",
			DefaultFuzziness: 0.8,
		},
		RestAPI: RestAPIConfig{
			Enabled:  true,
			AutoPort: true,
			Port:     3002,
			Host:     "localhost",
			CORS:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: *ratelimit.DefaultConfig(),
	}
}

// LoadFrom loads configuration from the exact file at path, with no
// search-path fallback, for callers that pass an explicit --config flag.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %q: %w", path, err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. ~/.kvquery/config.yaml (user home)
//  3. /etc/kvquery/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".kvquery"))
	v.AddConfigPath("/etc/kvquery")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values in Viper.
func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".kvquery")

	v.SetDefault("profile", "default")
	v.SetDefault("storage.kind", "sqlite")
	v.SetDefault("storage.path", filepath.Join(configDir, "kvquery.db"))
	v.SetDefault("storage.backup_interval", "24h")
	v.SetDefault("storage.max_backups", 7)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries_per_table", 500)

	v.SetDefault("search.default_mode", "stem")
	v.SetDefault("search.default_fuzziness", 0.8)

	v.SetDefault("rest_api.enabled", true)
	v.SetDefault("rest_api.auto_port", true)
	v.SetDefault("rest_api.port", 3002)
	v.SetDefault("rest_api.host", "localhost")
	v.SetDefault("rest_api.cors", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	def := ratelimit.DefaultConfig()
	v.SetDefault("rate_limit.enabled", def.Enabled)
	v.SetDefault("rate_limit.global.requests_per_second", def.Global.RequestsPerSecond)
	v.SetDefault("rate_limit.global.burst_size", def.Global.BurstSize)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.Kind != "memory" && c.Storage.Kind != "sqlite" {
		return fmt.Errorf("storage.kind must be 'memory' or 'sqlite'")
	}
	if c.Storage.Kind == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage.kind is 'sqlite'")
	}
	if c.Storage.MaxBackups < 0 {
		return fmt.Errorf("storage.max_backups must be >= 0")
	}

	if c.Cache.MaxEntriesPerTable < 0 {
		return fmt.Errorf("cache.max_entries_per_table must be >= 0")
	}

	validModes := map[string]bool{"raw": true, "stem": true, "metaphone": true, "stem+metaphone": true}
	if !validModes[c.Search.DefaultMode] {
		return fmt.Errorf("search.default_mode must be one of: raw, stem, metaphone, stem+metaphone")
	}
	if c.Search.DefaultFuzziness < 0 || c.Search.DefaultFuzziness > 1 {
		return fmt.Errorf("search.default_fuzziness must be between 0 and 1")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureConfigDir creates the storage directory if it doesn't exist.
func (c *Config) EnsureConfigDir() error {
	if c.Storage.Kind != "sqlite" {
		return nil
	}
	configDir := filepath.Dir(c.Storage.Path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".kvquery")
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "kvquery.db")
}
