// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultPort is used when neither the config file nor PORT set one.
const DefaultPort = 10000

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Models ModelsConfig `yaml:"models"`
}

type ModelsConfig struct {
	Wheat          ModelSource   `yaml:"wheat"`
	Car            ModelSource   `yaml:"car"`
	CacheSize      int           `yaml:"cache_size"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
	Watch          bool          `yaml:"watch"`
}

// ModelSource names where an artifact may live. Paths are tried first, in
// order, then File is probed under the standard artifact directories.
type ModelSource struct {
	Paths []string `yaml:"paths"`
	File  string   `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Http.Port = DefaultPort
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Http.MaxBodyBytes = 1 << 20
	cfg.Log.Level = "info"
	cfg.Database.Path = "data/predictions.db"
	cfg.Models.Wheat.File = "seed_pipeline.json"
	cfg.Models.Car.File = "used_car_price_model.json"
	cfg.Models.CacheSize = 1024
	cfg.Models.ReloadInterval = 10 * time.Second
	cfg.Models.Watch = true
	return cfg
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// Locate looks for config.yaml in the working directory, then one level up
// so the binary can also be started from cmd/.
func Locate(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	parent := filepath.Join("..", name)
	if _, err := os.Stat(parent); err == nil {
		return parent
	}
	return name
}

func (c *Config) applyEnv() error {
	port := os.Getenv("PORT")
	if port == "" {
		return nil
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid PORT %q", port)
	}
	c.Http.Port = p
	return nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Http.Port <= 0 {
		c.Http.Port = def.Http.Port
	}
	if c.Http.Timeout <= 0 {
		c.Http.Timeout = def.Http.Timeout
	}
	if len(c.Http.AllowedOrigins) == 0 {
		c.Http.AllowedOrigins = def.Http.AllowedOrigins
	}
	if c.Http.MaxBodyBytes <= 0 {
		c.Http.MaxBodyBytes = def.Http.MaxBodyBytes
	}
	if c.Models.Wheat.File == "" {
		c.Models.Wheat.File = def.Models.Wheat.File
	}
	if c.Models.Car.File == "" {
		c.Models.Car.File = def.Models.Car.File
	}
	if c.Models.CacheSize <= 0 {
		c.Models.CacheSize = def.Models.CacheSize
	}
	if c.Models.ReloadInterval <= 0 {
		c.Models.ReloadInterval = def.Models.ReloadInterval
	}
}
