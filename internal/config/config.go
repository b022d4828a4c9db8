// Package config loads the YAML configuration of the quadkv command line tool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aleksaelezovic/quadkv/internal/index"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// Backend names
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// DefaultBatchSize is the number of quads the importer writes per batch
const DefaultBatchSize = 1000

// Config is the on-disk configuration
type Config struct {
	// Backend is one of badger, memory or sqlite.
	Backend string `yaml:"backend"`

	// Path is the Badger directory or the SQLite file. Ignored by memory.
	Path string `yaml:"path"`

	// DefaultGraphMode is "union" or "default".
	DefaultGraphMode string `yaml:"default_graph_mode"`

	// Indexes lists index names such as SPOG or GSPO. Empty means the
	// six default indexes.
	Indexes []string `yaml:"indexes,omitempty"`

	// Prefixes compacts IRIs in keys. Changing them after data has been
	// written makes the existing keys unreadable.
	Prefixes map[string]string `yaml:"prefixes,omitempty"`

	LogLevel  string `yaml:"log_level"`
	BatchSize int    `yaml:"batch_size"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Backend:          BackendBadger,
		Path:             "./quadkv_data",
		DefaultGraphMode: string(store.DefaultGraphUnion),
		LogLevel:         "info",
		BatchSize:        DefaultBatchSize,
	}
}

// Load reads and validates the file at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendBadger, BackendSQLite:
		if c.Path == "" {
			errs = append(errs, fmt.Errorf("backend %s needs a path", c.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, err := store.ParseDefaultGraphMode(c.DefaultGraphMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.IndexOrders(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	return errors.Join(errs...)
}

// IndexOrders parses the index names. A nil result selects the defaults.
func (c *Config) IndexOrders() ([][]rdf.Role, error) {
	if len(c.Indexes) == 0 {
		return nil, nil
	}
	orders := make([][]rdf.Role, 0, len(c.Indexes))
	for _, name := range c.Indexes {
		order, err := index.ParseOrder(name)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if _, err := index.NewSet(orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Level maps LogLevel onto a slog level
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
}

// StoreOptions translates the configuration into store options
func (c *Config) StoreOptions(logger *slog.Logger) ([]store.Option, error) {
	mode, err := store.ParseDefaultGraphMode(c.DefaultGraphMode)
	if err != nil {
		return nil, err
	}
	orders, err := c.IndexOrders()
	if err != nil {
		return nil, err
	}
	opts := []store.Option{
		store.WithLogger(logger),
		store.WithDefaultGraphMode(mode),
	}
	if orders != nil {
		opts = append(opts, store.WithIndexes(orders...))
	}
	if len(c.Prefixes) > 0 {
		opts = append(opts, store.WithPrefixMap(c.Prefixes))
	}
	return opts, nil
}
