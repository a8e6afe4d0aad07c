// Package config loads service configuration from defaults, an optional YAML
// file, TRGOVINA_ environment variables and command-line overrides, in that
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/erazemk/trgovina/internal/model"
)

// EnvPrefix prefixes environment overrides. Nested keys use "__",
// e.g. TRGOVINA_SERVER__ADDR or TRGOVINA_ORDERS__ALLOW_NEGATIVE_STOCK.
const EnvPrefix = "TRGOVINA_"

// Cart backends.
const (
	CartMemory = "memory"
	CartRedis  = "redis"
)

type Config struct {
	Server struct {
		Addr            string        `koanf:"addr"`
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"server"`

	DB struct {
		Path string `koanf:"path"`
	} `koanf:"db"`

	Log struct {
		Level      string `koanf:"level"`
		Path       string `koanf:"path"`
		MaxSizeMB  int    `koanf:"max_size_mb"`
		MaxBackups int    `koanf:"max_backups"`
		MaxAgeDays int    `koanf:"max_age_days"`
	} `koanf:"log"`

	Admin struct {
		Email string `koanf:"email"`
		Name  string `koanf:"name"`
	} `koanf:"admin"`

	Orders struct {
		AllowNegativeStock bool `koanf:"allow_negative_stock"`
	} `koanf:"orders"`

	Cart struct {
		Backend string        `koanf:"backend"`
		TTL     time.Duration `koanf:"ttl"`
	} `koanf:"cart"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Uploads struct {
		MaxImageBytes     int64 `koanf:"max_image_bytes"`
		MaxImageDimension int   `koanf:"max_image_dimension"`
	} `koanf:"uploads"`
}

// Defaults are applied before any other source.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":                 ":8080",
		"server.read_timeout":         15 * time.Second,
		"server.write_timeout":        30 * time.Second,
		"server.shutdown_timeout":     10 * time.Second,
		"db.path":                     "trgovina.sqlite3",
		"log.level":                   "info",
		"log.path":                    "",
		"log.max_size_mb":             50,
		"log.max_backups":             3,
		"log.max_age_days":            28,
		"admin.email":                 "admin@trgovina.local",
		"admin.name":                  "Administrator",
		"orders.allow_negative_stock": false,
		"cart.backend":                CartMemory,
		"cart.ttl":                    7 * 24 * time.Hour,
		"redis.addr":                  "localhost:6379",
		"redis.password":              "",
		"redis.db":                    0,
		"uploads.max_image_bytes":     5 << 20,
		"uploads.max_image_dimension": 1024,
	}
}

// Load builds the configuration. path may be empty to skip the config file.
// overrides are dotted keys (e.g. "server.addr") applied last.
func Load(path string, overrides map[string]any) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return Config{}, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr required")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	if err := model.ValidateEmail(c.Admin.Email); err != nil {
		return fmt.Errorf("admin.email: %w", err)
	}
	switch c.Cart.Backend {
	case CartMemory:
	case CartRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr required for the redis cart backend")
		}
	default:
		return fmt.Errorf("cart.backend %q must be %q or %q", c.Cart.Backend, CartMemory, CartRedis)
	}
	if c.Uploads.MaxImageBytes <= 0 {
		return fmt.Errorf("uploads.max_image_bytes must be positive")
	}
	return nil
}
