// Package config loads the loader's optional YAML configuration file.
// Every field is optional; a field the file leaves unset keeps its
// Default() value, so the common case (no config file at all) changes
// nothing.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultBaseAddress is the load base assigned to the first image in
// load order (the deepest dependency; the root executable is loaded
// last), used when no override is configured.
const DefaultBaseAddress = 0x20000

// DefaultStackSize is the size in bytes of the anonymous stack mapped
// for the transferred-to program, used when no override is configured.
const DefaultStackSize = 10 * 1024 * 1024

// Config is the optional loader configuration file shape.
type Config struct {
	// SearchPaths is consulted after the system cache and after the
	// LD_LIBRARY_PATH directories when resolving a dependency by name.
	SearchPaths []string `yaml:"searchPaths"`
	// CacheFile overrides the default /etc/ld.so.cache path, mainly for
	// tests that want a synthetic cache.
	CacheFile string `yaml:"cacheFile"`
	// StackSize overrides DefaultStackSize, in bytes.
	StackSize uint64 `yaml:"stackSize"`
	// SameProcess selects the same-process execution strategy instead
	// of the default child-thread strategy.
	SameProcess bool `yaml:"sameProcess"`
}

// Default returns the configuration used when nothing is set: no extra search paths, the
// standard cache path, the spec's default stack size, child-thread
// execution.
func Default() Config {
	return Config{
		CacheFile: "/etc/ld.so.cache",
		StackSize: DefaultStackSize,
	}
}

// Load reads and parses the YAML config file at path. A missing file is
// not an error: Load returns Default() unchanged, matching the common
// case where no config was ever asked for.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(overlay.SearchPaths) > 0 {
		cfg.SearchPaths = overlay.SearchPaths
	}
	if overlay.CacheFile != "" {
		cfg.CacheFile = overlay.CacheFile
	}
	if overlay.StackSize != 0 {
		cfg.StackSize = overlay.StackSize
	}
	cfg.SameProcess = overlay.SameProcess
	return cfg, nil
}

// Resolve picks a config path from an explicit flag value, falling back
// to $LOADELF_CONFIG, and finally "" (no config file).
func Resolve(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("LOADELF_CONFIG")
}
