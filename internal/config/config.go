// Package config loads the engine's root-directory and buffer-pool
// sizing (spec.md §6: "Root directory path per-OS, loaded from a
// configuration file hierarchy and overridable via environment
// variables"). Precedence, lowest to highest: compiled-in defaults, a
// YAML file, then RELCORE_* environment variables. Nothing under
// internal/ consults this package directly — only engine.New and the
// cmd/ entry points do, so the core storage packages stay free of any
// global settings singleton.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the engine's ambient settings.
type Config struct {
	// DataDir is the root directory under which every database's
	// directory of table files lives (spec.md §3.1 on-disk layout).
	DataDir string `yaml:"data_dir"`
	// BufferPoolFrames is the fixed frame capacity C of the process-wide
	// buffer pool (spec.md §4: "Fixed capacity C frames").
	BufferPoolFrames int `yaml:"buffer_pool_frames"`
	// LogLevel is a zerolog level name: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the compiled-in baseline configuration, the lowest
// precedence layer.
func Default() Config {
	return Config{
		DataDir:          "./relcore-data",
		BufferPoolFrames: 256,
		LogLevel:         "info",
	}
}

// envConfigPath names the environment variable that can point at an
// alternate YAML config file, overriding the default "./relcore.yaml".
const envConfigPath = "RELCORE_CONFIG"

const defaultConfigFile = "relcore.yaml"

// Load builds a Config by layering, in ascending precedence: Default(),
// a YAML file (from $RELCORE_CONFIG, or ./relcore.yaml if that file
// exists and RELCORE_CONFIG is unset), then RELCORE_* environment
// variables. A missing default config file is not an error; an
// explicitly named one that can't be read is.
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv(envConfigPath)
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	} else if explicit || !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("RELCORE_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("RELCORE_BUFFER_POOL_FRAMES"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BufferPoolFrames = n
		}
	}
	if v, ok := os.LookupEnv("RELCORE_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}
