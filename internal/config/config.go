// Package config loads the TOML configuration file shared by the serve
// and maintenance commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Ingest   IngestConfig   `toml:"ingest"`
	Prune    PruneConfig    `toml:"prune"`
	Log      LogConfig      `toml:"log"`
	Trees    []TreeConfig   `toml:"trees"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
}

type IngestConfig struct {
	MaxPly    int `toml:"max_ply"`
	MinRating int `toml:"min_rating"`
}

type PruneConfig struct {
	MaxDistance int `toml:"max_distance"`
	BatchSize   int `toml:"batch_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// TreeConfig names one opening tree database served by the API.
type TreeConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":2882"},
		Database: DatabaseConfig{BusyTimeoutMS: 5000},
		Ingest:   IngestConfig{MaxPly: 40, MinRating: 0},
		Prune:    PruneConfig{MaxDistance: 5, BatchSize: 1000},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads the config at path, falling back to defaults when path is
// empty or the file does not exist. Relative tree paths resolve against
// the config file's directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	dir := filepath.Dir(path)
	for i, t := range cfg.Trees {
		if t.Name == "" || t.Path == "" {
			return nil, fmt.Errorf("tree %d: name and path are required", i)
		}
		if !filepath.IsAbs(t.Path) {
			cfg.Trees[i].Path = filepath.Join(dir, t.Path)
		}
	}
	return cfg, nil
}
