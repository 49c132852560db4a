// Package config loads application configuration with viper.
//
// Values come from, in increasing priority: defaults, config.toml, a .env
// file, KD_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. KD_API_KEY.
const EnvPrefix = "KD"

// Config holds all configuration for the application.
type Config struct {
	DataDir string       `mapstructure:"data_dir"`
	API     APIConfig    `mapstructure:"api"`
	Log     LogConfig    `mapstructure:"log"`
	Daemon  DaemonConfig `mapstructure:"daemon"`
	Events  EventsConfig `mapstructure:"events"`
}

// APIConfig holds the WaniKani client configuration.
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Revision string        `mapstructure:"revision"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// Key overrides the key stored in the learner's settings when set.
	Key string `mapstructure:"key"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DaemonConfig holds background sync configuration.
type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// EventsConfig holds the event server configuration.
type EventsConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// CachePath is the SQLite record cache.
func (c *Config) CachePath() string { return filepath.Join(c.DataDir, "cache.db") }

// MarksPath is the bookmark database.
func (c *Config) MarksPath() string { return filepath.Join(c.DataDir, "marks.db") }

// SettingsPath is the learner's settings file.
func (c *Config) SettingsPath() string { return filepath.Join(c.DataDir, "settings.toml") }

// New returns a viper instance with defaults, config search paths and
// environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if home := os.Getenv(EnvPrefix + "_HOME"); home != "" {
		v.AddConfigPath(home)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "kanjideck"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// ConfigFile, when set, replaces the search paths.
	ConfigFile string
	// EnvFile is loaded into the environment first; a missing file is
	// ignored. Defaults to ".env".
	EnvFile string
}

// Load reads configuration into a Config.
func Load(v *viper.Viper, opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading env file %s: %w", envFile, err)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.Daemon.Interval <= 0 {
		return nil, fmt.Errorf("daemon.interval must be positive (got %s)", cfg.Daemon.Interval)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")

	v.SetDefault("api.base_url", "https://api.wanikani.com/v2")
	v.SetDefault("api.revision", "20170710")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("daemon.interval", 15*time.Minute)

	v.SetDefault("events.host", "127.0.0.1")
	v.SetDefault("events.port", 8787)
}

func defaultDataDir() string {
	if home := os.Getenv(EnvPrefix + "_HOME"); home != "" {
		return home
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "kanjideck")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "kanjideck")
	}
	return ".kanjideck"
}
