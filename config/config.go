// Package config loads the termstore configuration.
//
// Values are resolved in order of increasing precedence:
//
//  1. Built-in defaults (NewConfig)
//  2. YAML file (--config, or termstore.yaml in the working directory)
//  3. Environment variables (TERMSTORE_*)
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stevemurr/termstore/store"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "termstore.yaml"

// Config is the complete termstore configuration.
type Config struct {
	Version     int                `yaml:"version" json:"version"`
	Server      ServerConfig       `yaml:"server" json:"server"`
	Storage     StorageConfig      `yaml:"storage" json:"storage"`
	Log         LogConfig          `yaml:"log" json:"log"`
	Collections []CollectionConfig `yaml:"collections" json:"collections"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host           string   `yaml:"host" json:"host"`
	Port           int      `yaml:"port" json:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// StorageConfig selects and tunes the storage backend.
type StorageConfig struct {
	// Backend is one of memory, json, sqlite, sqlite-pure, bolt or remote.
	Backend string `yaml:"backend" json:"backend"`
	// DataDir holds the files of the persistent backends.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// RemoteURL is the base URL of another termstore when Backend is remote.
	RemoteURL string `yaml:"remote_url" json:"remote_url"`
	// CacheSize enables an LRU read cache per collection when positive.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// MatchConcurrency bounds parallel reads while resolving a match.
	MatchConcurrency int `yaml:"match_concurrency" json:"match_concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// CollectionConfig declares a collection with its optional schema and indexes.
type CollectionConfig struct {
	Name    string         `yaml:"name" json:"name"`
	Schema  map[string]any `yaml:"schema,omitempty" json:"schema,omitempty"`
	Indexes []IndexConfig  `yaml:"indexes,omitempty" json:"indexes,omitempty"`
}

// IndexConfig declares a term index. Terms are hashed in the order given.
type IndexConfig struct {
	Name  string   `yaml:"name" json:"name"`
	Terms []string `yaml:"terms" json:"terms"`
}

var (
	logLevels  = []string{"debug", "info", "warn", "warning", "error"}
	logFormats = []string{"auto", "json", "text"}
)

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Backend:          "memory",
			DataDir:          "./data",
			MatchConcurrency: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Collections: []CollectionConfig{
			{
				Name: "users",
				Indexes: []IndexConfig{
					{Name: "usersByEmail", Terms: []string{"email"}},
				},
			},
		},
	}
}

// Load builds the configuration from path, or from DefaultFile when path is
// empty and that file exists, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. Keys missing from the file
// keep their defaults; a collections list in the file replaces the default
// list as a whole.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TERMSTORE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("TERMSTORE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("TERMSTORE_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
	if v := os.Getenv("TERMSTORE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("TERMSTORE_STORE_BACKEND"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TERMSTORE_REMOTE_URL"); v != "" {
		c.Storage.RemoteURL = v
	}
	if v := os.Getenv("TERMSTORE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Storage.CacheSize = n
		}
	}
	if v := os.Getenv("TERMSTORE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TERMSTORE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks the configuration for values the engine cannot start with.
func (c *Config) Validate() error {
	if !slices.Contains(store.Backends, c.Storage.Backend) {
		return fmt.Errorf("storage.backend must be one of %s, got %q", strings.Join(store.Backends, ", "), c.Storage.Backend)
	}
	if c.Storage.Backend == "remote" && c.Storage.RemoteURL == "" {
		return errors.New("storage.remote_url is required for the remote backend")
	}
	if c.Storage.CacheSize < 0 {
		return fmt.Errorf("storage.cache_size must be non-negative, got %d", c.Storage.CacheSize)
	}
	if c.Storage.MatchConcurrency < 0 {
		return fmt.Errorf("storage.match_concurrency must be non-negative, got %d", c.Storage.MatchConcurrency)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("log.format must be one of %s, got %q", strings.Join(logFormats, ", "), c.Log.Format)
	}

	names := make(map[string]bool, len(c.Collections))
	for i, col := range c.Collections {
		if err := store.ValidateCollectionName(col.Name); err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}
		if names[col.Name] {
			return fmt.Errorf("collections[%d]: duplicate collection %q", i, col.Name)
		}
		names[col.Name] = true
		if err := col.validateIndexes(); err != nil {
			return fmt.Errorf("collection %s: %w", col.Name, err)
		}
	}
	return nil
}

func (c CollectionConfig) validateIndexes() error {
	names := make(map[string]bool, len(c.Indexes))
	for i, ix := range c.Indexes {
		if ix.Name == "" {
			return fmt.Errorf("indexes[%d]: name is required", i)
		}
		if names[ix.Name] {
			return fmt.Errorf("duplicate index %q", ix.Name)
		}
		names[ix.Name] = true
		if len(ix.Terms) == 0 {
			return fmt.Errorf("index %s: terms must not be empty", ix.Name)
		}
		seen := make(map[string]bool, len(ix.Terms))
		for _, term := range ix.Terms {
			if term == "" {
				return fmt.Errorf("index %s: empty term", ix.Name)
			}
			if seen[term] {
				return fmt.Errorf("index %s: duplicate term %q", ix.Name, term)
			}
			seen[term] = true
		}
	}
	return nil
}

// Collection returns the declaration named name.
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, true
		}
	}
	return CollectionConfig{}, false
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
