// Package config resolves the scan engine's tunables from environment
// variables, with an optional YAML file supplying defaults that
// environment variables still override.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultPingsPerSec = 4800
	defaultControlPort = 8081
)

// Config is the fully resolved set of engine tunables.
type Config struct {
	PingsPerSec   int
	MaxActive     int
	ChunkPrefixV4 *int // nil disables chunking
	ControlPort   int
}

// fileConfig mirrors Config's YAML shape for an optional config file.
// Pointer fields distinguish "absent from file" from the zero value.
type fileConfig struct {
	PingsPerSec   *int `yaml:"pingsPerSec"`
	MaxActive     *int `yaml:"maxActive"`
	ChunkPrefixV4 *int `yaml:"chunkPrefixV4"`
	ControlPort   *int `yaml:"controlPort"`
}

// Load resolves Config from, in ascending priority: built-in defaults,
// an optional YAML file named by $MINESCAN_CONFIG (if set and
// readable), then environment variable overrides.
func Load() Config {
	cfg := Config{
		PingsPerSec: defaultPingsPerSec,
		ControlPort: defaultControlPort,
	}

	if path := os.Getenv("MINESCAN_CONFIG"); path != "" {
		if fc, err := loadFile(path); err != nil {
			log.Printf("config: failed to read %s: %v; using defaults", path, err)
		} else {
			applyFile(&cfg, fc)
		}
	}

	cfg.PingsPerSec = envInt("SCAN_PINGS_PER_SEC", cfg.PingsPerSec, 1, 0)
	cfg.MaxActive = envInt("SCAN_MAX_ACTIVE", cfg.MaxActive, 1, 0)
	cfg.ControlPort = envInt("SCANNER_CONTROL_PORT", cfg.ControlPort, 1, 65535)

	if raw := strings.TrimSpace(os.Getenv("SCAN_CHUNK_PREFIX_V4")); raw != "" {
		v, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			log.Printf("config: invalid SCAN_CHUNK_PREFIX_V4=%q; chunking disabled", raw)
		case v < 0 || v > 32:
			log.Printf("config: SCAN_CHUNK_PREFIX_V4=%d out of range [0,32]; chunking disabled", v)
		default:
			cfg.ChunkPrefixV4 = &v
		}
	}

	return cfg
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &fc, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.PingsPerSec != nil {
		cfg.PingsPerSec = *fc.PingsPerSec
	}
	if fc.MaxActive != nil {
		cfg.MaxActive = *fc.MaxActive
	}
	if fc.ChunkPrefixV4 != nil {
		cfg.ChunkPrefixV4 = fc.ChunkPrefixV4
	}
	if fc.ControlPort != nil {
		cfg.ControlPort = *fc.ControlPort
	}
}

// envInt reads name as an int, clamping to [min,max] when those bounds
// are non-zero (max=0 means unbounded above). An unset value falls back
// to def; an unparseable one falls back to def with a warning.
func envInt(name string, def, min, max int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid %s=%q; using default %d", name, raw, def)
		return def
	}
	if min != 0 && v < min {
		log.Printf("config: %s=%d below min %d; using %d", name, v, min, min)
		return min
	}
	if max != 0 && v > max {
		log.Printf("config: %s=%d above max %d; using %d", name, v, max, max)
		return max
	}
	return v
}
