// Package config loads the pointers configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	configDir   = "pointers"
	configFile  = "config.yml"
	historyFile = ".pointers_history"

	DefaultResolverCacheSize = 4096
)

// Config defines all options available through the config file.
type Config struct {
	// PointerWidth forces the width in bytes of a target pointer (4 or 8).
	// Zero means take it from the ELF header.
	PointerWidth int `yaml:"pointer-width,omitempty" json:"pointer-width,omitempty" jsonschema:"title=Pointer width,description=Width in bytes of a target pointer; 0 takes it from the ELF header,enum=0,enum=4,enum=8"`
	// Endian forces the target byte order ("little" or "big").
	Endian string `yaml:"endian,omitempty" json:"endian,omitempty" jsonschema:"title=Byte order,description=Target byte order; empty takes it from the ELF header,enum=little,enum=big"`
	// HistoryFile is where the interactive session keeps its history.
	HistoryFile string `yaml:"history-file,omitempty" json:"history-file,omitempty" jsonschema:"title=History file,description=Path of the interactive session history"`
	// ResolverCacheSize bounds the number of memoized symbol lookups.
	ResolverCacheSize int `yaml:"resolver-cache-size,omitempty" json:"resolver-cache-size,omitempty" jsonschema:"title=Resolver cache size,description=Number of symbol lookups kept per session,minimum=1"`
	// Color selects output styling: auto, always or never.
	Color string `yaml:"color,omitempty" json:"color,omitempty" jsonschema:"title=Color,description=Output styling,enum=auto,enum=always,enum=never,default=auto"`
	// Listing prints the instructions carrying each pointer after show.
	Listing bool `yaml:"listing" json:"listing" jsonschema:"title=Listing,description=Print the carrying instructions after show"`
	// Debug enables debug logging.
	Debug bool `yaml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.fill()
	return c
}

func (c *Config) fill() {
	if c.ResolverCacheSize <= 0 {
		c.ResolverCacheSize = DefaultResolverCacheSize
	}
	if c.Color == "" {
		c.Color = "auto"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	switch {
	case c.HistoryFile == "":
		c.HistoryFile = filepath.Join(home, historyFile)
	case strings.HasPrefix(c.HistoryFile, "~/"):
		c.HistoryFile = filepath.Join(home, c.HistoryFile[2:])
	}
}

// Validate reports option values the tool cannot honor.
func (c *Config) Validate() error {
	switch c.PointerWidth {
	case 0, 4, 8:
	default:
		return fmt.Errorf("pointer-width must be 4 or 8, got %d", c.PointerWidth)
	}
	switch c.Endian {
	case "", "little", "big":
	default:
		return fmt.Errorf("endian must be little or big, got %q", c.Endian)
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("color must be auto, always or never, got %q", c.Color)
	}
	return nil
}

// Load reads the configuration at path. An empty path selects the default
// location, where a commented default file is created on first use.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := FilePath()
		if err != nil {
			slog.Debug("No config location", "error", err)
			return Default(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		if err := createDefault(path); err != nil {
			slog.Debug("Could not create default config", "path", path, "error", err)
		}
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.fill()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FilePath returns the default configuration file location.
func FilePath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDir, configFile), nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultFile), 0o600)
}

const defaultFile = `# Configuration file for pointers.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Width in bytes of a target pointer. Taken from the ELF header when unset.
# pointer-width: 8

# Target byte order, little or big. Taken from the ELF header when unset.
# endian: little

# Where the interactive session keeps its history.
# history-file: ~/.pointers_history

# Number of symbol lookups remembered per session.
# resolver-cache-size: 4096

# Output styling: auto, always or never.
# color: auto

# Print the instructions carrying each pointer after show.
listing: false

# Enable debug logging.
debug: false
`
