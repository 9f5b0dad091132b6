package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/pkg/di"
	"github.com/goliatone/go-query-cache/querycache"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// Database drivers accepted in the config file.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// Config is the YAML document read by every command.
type Config struct {
	Cache    cache.Config   `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Query    QueryConfig    `yaml:"query"`
}

// DatabaseConfig selects the database the demo runs against.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// QueryConfig configures the query builder factory.
type QueryConfig struct {
	Connection       string        `yaml:"connection"`
	GlobalCache      bool          `yaml:"global_cache"`
	GlobalTTL        time.Duration `yaml:"global_ttl"`
	KeyHasher        string        `yaml:"key_hasher"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
}

// DefaultConfig runs against an in-memory SQLite database and the memory store.
func DefaultConfig() Config {
	return Config{
		Cache: cache.DefaultConfig(),
		Database: DatabaseConfig{
			Driver: DatabaseSQLite,
			DSN:    "file::memory:",
		},
		Query: QueryConfig{
			Connection: querycache.DefaultConnection,
			GlobalTTL:  querycache.DefaultGlobalTTL,
			KeyHasher:  "sha256",
		},
	}
}

// LoadConfig reads path over DefaultConfig. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return decodeConfig(f)
}

func decodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the cache section and the database driver.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case DatabaseSQLite, DatabasePostgres:
	default:
		return fmt.Errorf("database config: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database config: dsn is required")
	}
	if _, err := keyHasher(c.Query.KeyHasher); err != nil {
		return err
	}
	return nil
}

func keyHasher(name string) (querycache.KeyHasher, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return querycache.SHA256, nil
	case "xxhash":
		return querycache.XXHash, nil
	default:
		return nil, fmt.Errorf("query config: unknown key hasher %q", name)
	}
}

// OpenDB opens the configured database wrapped in bun.
func OpenDB(cfg DatabaseConfig) (*bun.DB, error) {
	switch cfg.Driver {
	case DatabaseSQLite:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// in-memory databases live on a single connection
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DatabasePostgres:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("database config: unsupported driver %q", cfg.Driver)
	}
}

// cliEnv carries the persistent flags to subcommands.
type cliEnv struct {
	configPath *string
	logLevel   *string
}

func (e *cliEnv) config() (Config, error) {
	return LoadConfig(*e.configPath)
}

func (e *cliEnv) logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(*e.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (e *cliEnv) container(cfg Config, logger *slog.Logger) (*di.Container, error) {
	hasher, err := keyHasher(cfg.Query.KeyHasher)
	if err != nil {
		return nil, err
	}
	return di.NewContainer(cfg.Cache,
		di.WithLogger(logger),
		di.WithKeyHasher(hasher),
		di.WithMetricsNamespace(cfg.Query.MetricsNamespace),
	)
}

func factoryOptions(cfg QueryConfig) []querycache.FactoryOption {
	return []querycache.FactoryOption{
		querycache.WithConnectionName(cfg.Connection),
		querycache.WithGlobalCache(cfg.GlobalCache, cfg.GlobalTTL),
	}
}
