// Package config loads agrosync settings from an optional YAML file, a .env
// file and AGROSYNC_ environment variables, in increasing priority.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/media"
)

// EnvPrefix prefixes every environment override, e.g. AGROSYNC_REMOTE_BASE_URL.
const EnvPrefix = "AGROSYNC"

// Config holds all agrosync settings.
type Config struct {
	DataDir string       `mapstructure:"data_dir"`
	Remote  RemoteConfig `mapstructure:"remote"`
	Log     LogConfig    `mapstructure:"log"`
	Photo   PhotoConfig  `mapstructure:"photo"`
	Sync    SyncConfig   `mapstructure:"sync"`
}

// RemoteConfig configures the backend client.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// PhotoConfig configures listing photo compression.
type PhotoConfig struct {
	MaxDimension int `mapstructure:"max_dimension"`
	Quality      int `mapstructure:"quality"`
}

// SyncConfig configures the background scheduler.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "agrosync")
	}
	return ".agrosync"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", "")
	v.SetDefault("photo.max_dimension", media.DefaultMaxDimension)
	v.SetDefault("photo.quality", media.DefaultQuality)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.timeout", 5*time.Minute)
}

// Load reads configuration. configFile may be empty, in which case
// agrosync.yaml is looked up in the working directory and the data
// directory; a missing file is not an error. A .env file in the working
// directory is loaded first without overriding the real environment.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrInvalid, "failed to load .env", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.ErrInvalid, "failed to read config file", err)
		}
	} else {
		v.SetConfigName("agrosync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.Wrap(errors.ErrInvalid, "failed to read config file", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New(errors.ErrInvalid, "data_dir must not be empty")
	}
	if c.Remote.Timeout < 0 {
		return errors.New(errors.ErrInvalid, "remote.timeout must not be negative")
	}
	if c.Photo.Quality < 0 || c.Photo.Quality > 100 {
		return errors.New(errors.ErrInvalid, "photo.quality must be between 1 and 100")
	}
	return nil
}
