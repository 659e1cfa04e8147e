package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	DatastoreMemory = "memory"
	DatastoreSQLite = "sqlite"
	DatastoreMongo  = "mongo"
)

// Config holds all configuration for the tracker server.
type Config struct {
	// Server
	Port         int
	CORSOrigins  string
	DrainTimeout time.Duration

	// Datastore backend type: "memory", "sqlite" or "mongo".
	DatastoreType string

	// SQLite database path. ":memory:" keeps everything in process.
	SQLitePath string

	// MongoDB
	MongoURI      string
	MongoDatabase string

	// RequireIndexes makes the datastore refuse range queries no composite
	// index serves, so missing indexes surface as fallbacks.
	RequireIndexes bool

	// ProvisionIndexes creates the composite indexes at startup.
	ProvisionIndexes bool

	// IndexManifest is an optional JSON index manifest provisioned in
	// addition to the built-in indexes.
	IndexManifest string

	// AutoProvision creates indexes that degraded queries needed, checked
	// every ProvisionInterval.
	AutoProvision     bool
	ProvisionInterval time.Duration

	// Logging
	LogLevel string

	// Prometheus
	MetricsEnabled bool

	// Seed a demo scenario at startup. Empty disables seeding.
	SeedScenario string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		CORSOrigins:       "*",
		DrainTimeout:      30 * time.Second,
		DatastoreType:     DatastoreSQLite,
		SQLitePath:        "./data/tracker.db",
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "tracker",
		ProvisionIndexes:  true,
		ProvisionInterval: time.Minute,
		LogLevel:          "info",
		MetricsEnabled:    true,
	}
}

// Validate checks values flags cannot constrain.
func (c *Config) Validate() error {
	switch c.DatastoreType {
	case DatastoreMemory, DatastoreSQLite, DatastoreMongo:
	default:
		return fmt.Errorf("unknown datastore type %q (want memory, sqlite or mongo)", c.DatastoreType)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AutoProvision && c.ProvisionInterval <= 0 {
		return fmt.Errorf("provision interval must be positive, got %s", c.ProvisionInterval)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// AllowedOrigins splits CORSOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
