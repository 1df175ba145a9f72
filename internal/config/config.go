package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"orderlake/internal/normalize"
)

type Config struct {
	Bronze struct {
		Location string `yaml:"location"`
	} `yaml:"bronze"`
	Silver struct {
		Location string `yaml:"location"`
	} `yaml:"silver"`
	Gold struct {
		Location string `yaml:"location"`
	} `yaml:"gold"`
	// TimestampFormats is the ordered accepted-format list; first match wins.
	TimestampFormats []string `yaml:"timestampFormats"`
	// Timezone is the IANA reference zone for dt derivation. Required:
	// dt must never depend on the machine a run lands on.
	Timezone   string `yaml:"timezone"`
	Quarantine struct {
		Dir      string  `yaml:"dir"`
		MaxRatio float64 `yaml:"maxRatio"`
	} `yaml:"quarantine"`
	Store struct {
		Backend   string `yaml:"backend"` // fs|pebble
		PebbleDir string `yaml:"pebbleDir"`
	} `yaml:"store"`
	Kafka struct {
		Bootstrap       string `yaml:"bootstrap"`
		QuarantineTopic string `yaml:"quarantineTopic"`
		ManifestTopic   string `yaml:"manifestTopic"`
	} `yaml:"kafka"`
	Aggregate struct {
		Chunks int `yaml:"chunks"`
	} `yaml:"aggregate"`
	ManifestDir string `yaml:"manifestDir"`
}

// Default returns the configuration before any file is applied.
func Default() Config {
	var c Config
	c.TimestampFormats = append([]string(nil), normalize.DefaultTimestampFormats...)
	c.Quarantine.Dir = "./quarantine"
	c.Quarantine.MaxRatio = 0.2
	c.Store.Backend = "fs"
	c.Aggregate.Chunks = 4
	c.ManifestDir = "./manifests"
	return c
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Bronze.Location == "" || c.Silver.Location == "" || c.Gold.Location == "" {
		return fmt.Errorf("config: bronze, silver and gold locations are required")
	}
	if len(c.TimestampFormats) == 0 {
		return fmt.Errorf("config: timestampFormats must not be empty")
	}
	if c.Timezone == "" {
		return fmt.Errorf("config: timezone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}
	if c.Quarantine.MaxRatio < 0 || c.Quarantine.MaxRatio > 1 {
		return fmt.Errorf("config: quarantine.maxRatio must be in [0,1], got %v", c.Quarantine.MaxRatio)
	}
	switch c.Store.Backend {
	case "fs":
	case "pebble":
		if c.Store.PebbleDir == "" {
			return fmt.Errorf("config: store.pebbleDir required for pebble backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Aggregate.Chunks <= 0 {
		return fmt.Errorf("config: aggregate.chunks must be > 0")
	}
	return nil
}

// Location resolves the configured reference zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
