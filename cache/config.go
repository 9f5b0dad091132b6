package cache

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Driver names registered by the default wiring.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config exposes store configuration options for consumers of the cache package.
type Config struct {
	DefaultDriver string       `yaml:"default_driver"`
	Memory        MemoryConfig `yaml:"memory"`
	Redis         *RedisConfig `yaml:"redis,omitempty"`
}

// MemoryConfig configures the in-process store.
// TTL caps the lifetime of every entry, including entries stored forever.
type MemoryConfig struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultDriver: DriverMemory,
		Memory:        DefaultMemoryConfig(),
	}
}

// DefaultMemoryConfig returns the defaults for the in-process store.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          256,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// DefaultRedisConfig returns the defaults for the redis store.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "query_cache:",
	}
}

// WithAddr sets the redis address.
func (c *RedisConfig) WithAddr(addr string) *RedisConfig {
	c.Addr = addr
	return c
}

// WithPassword sets the redis password.
func (c *RedisConfig) WithPassword(password string) *RedisConfig {
	c.Password = password
	return c
}

// WithDB sets the redis database number.
func (c *RedisConfig) WithDB(db int) *RedisConfig {
	c.DB = db
	return c
}

// WithKeyPrefix sets the prefix prepended to every redis key.
func (c *RedisConfig) WithKeyPrefix(prefix string) *RedisConfig {
	c.KeyPrefix = prefix
	return c
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.DefaultDriver, validation.Required),
		validation.Field(&c.Memory),
		validation.Field(&c.Redis),
	)
	if err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if c.DefaultDriver == DriverRedis && c.Redis == nil {
		return fmt.Errorf("cache config: default driver %q is not configured", DriverRedis)
	}
	return nil
}

// Validate checks the in-process store options.
func (c MemoryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// Validate checks the redis store options.
func (c RedisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
	)
}
