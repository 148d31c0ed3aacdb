package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/tuannm99/novastore/internal/btree"
	"github.com/tuannm99/novastore/internal/storage"
)

const EnvPrefix = "NOVASTORE"

var ErrBadConfig = errors.New("config: invalid value")

type Config struct {
	Storage struct {
		Workdir    string `mapstructure:"workdir"`
		PageSize   int    `mapstructure:"page_size"`
		CachePages int    `mapstructure:"cache_pages"`
	} `mapstructure:"storage"`

	Index struct {
		// Order 0 derives the order from the page size and key width.
		Order int `mapstructure:"order"`
	} `mapstructure:"index"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// NewViper returns a viper instance with every default set and environment
// overrides enabled: storage.page_size is read from NOVASTORE_STORAGE_PAGE_SIZE.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.page_size", 4096)
	v.SetDefault("storage.cache_pages", 128)
	v.SetDefault("index.order", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the YAML file at path, if any, on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Storage.Workdir == "" {
		return fmt.Errorf("%w: storage.workdir is empty", ErrBadConfig)
	}
	if c.Storage.PageSize < storage.MinPageCapacity {
		return fmt.Errorf("%w: storage.page_size %d < %d", ErrBadConfig, c.Storage.PageSize, storage.MinPageCapacity)
	}
	if c.Storage.CachePages <= 0 {
		return fmt.Errorf("%w: storage.cache_pages %d", ErrBadConfig, c.Storage.CachePages)
	}
	if c.Index.Order != 0 && c.Index.Order < btree.MinOrder {
		return fmt.Errorf("%w: index.order %d", ErrBadConfig, c.Index.Order)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrBadConfig, c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrBadConfig, s)
	}
	return l, nil
}

// SetupLogger installs the default slog logger writing to w.
func (c *Config) SetupLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if c.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
