// Package config loads the device host's YAML configuration, layering
// lookup the way the teacher's own config loader does: an explicit path
// wins, then an environment variable, then a dotfile in the working
// directory, then a built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envPathVar     = "DEVICEHOST_CONFIG"
	defaultDotfile = ".devicehost.yaml"

	MinMaxAge = 30 * time.Second
	MaxMaxAge = 1800 * time.Second
)

// Config is the per-device-host configuration (spec.md §6).
type Config struct {
	PathToDeviceDescription      string   `yaml:"pathToDeviceDescription"`
	CacheControlMaxAge           int      `yaml:"cacheControlMaxAge"`
	NetworkInterfaces            []string `yaml:"networkInterfaces"`
	IndividualAdvertisementCount int      `yaml:"individualAdvertisementCount"`
	ThreadPoolSize               int      `yaml:"threadPoolSize"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the built-in configuration used when no file is found
// anywhere in the lookup chain.
func Default() Config {
	return Config{
		CacheControlMaxAge:           1800,
		IndividualAdvertisementCount: 2,
		ThreadPoolSize:               0,
		LogLevel:                     "info",
		LogFormat:                    "text",
	}
}

// Load resolves a configuration file using, in order: explicitPath (if
// non-empty), the DEVICEHOST_CONFIG environment variable, ./.devicehost.yaml
// in the current directory, falling back to Default() if none exist.
func Load(explicitPath string) (Config, error) {
	for _, candidate := range []string{explicitPath, os.Getenv(envPathVar), defaultDotfile} {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err != nil {
			if explicitPath != "" && candidate == explicitPath {
				return Config{}, fmt.Errorf("config: %s: %w", candidate, err)
			}
			continue
		}
		return loadFile(candidate)
	}
	return Default(), nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.PathToDeviceDescription != "" && !filepath.IsAbs(cfg.PathToDeviceDescription) {
		cfg.PathToDeviceDescription = filepath.Join(filepath.Dir(path), cfg.PathToDeviceDescription)
	}
	return cfg, cfg.Validate()
}

// Validate clamps and checks the loaded values, per spec.md §6's bounds.
func (c *Config) Validate() error {
	if c.CacheControlMaxAge == 0 {
		c.CacheControlMaxAge = int(MaxMaxAge / time.Second)
	}
	switch {
	case c.CacheControlMaxAge < int(MinMaxAge/time.Second):
		c.CacheControlMaxAge = int(MinMaxAge / time.Second)
	case c.CacheControlMaxAge > int(MaxMaxAge/time.Second):
		c.CacheControlMaxAge = int(MaxMaxAge / time.Second)
	}
	if c.IndividualAdvertisementCount <= 0 {
		c.IndividualAdvertisementCount = 2
	}
	return nil
}

// MaxAge returns the configured cache-control lifetime as a time.Duration.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.CacheControlMaxAge) * time.Second
}
