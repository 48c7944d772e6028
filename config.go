package leakybucket

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes one bucket. It is usually loaded from YAML:
//
//	rate: 1
//	capacity: 5
//	redis:
//	  addr: 127.0.0.1:6379
//	  key: user:42
type Config struct {
	// Rate is the number of units drained per second.
	Rate float64 `yaml:"rate"`

	// Capacity is the maximum backlog before requests are rejected.
	Capacity float64 `yaml:"capacity"`

	// Redis, when set, shares the bucket through a Redis server.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds connection settings for a shared bucket.
type RedisConfig struct {
	Network  string `yaml:"network,omitempty"`
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size,omitempty"`
	Key      string `yaml:"key"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}
	if cfg.Redis != nil {
		if cfg.Redis.Network == "" {
			cfg.Redis.Network = "tcp"
		}
		if cfg.Redis.PoolSize == 0 {
			cfg.Redis.PoolSize = 4
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the config describes a usable bucket.
func (c *Config) Validate() error {
	if err := validate(c.Rate, c.Capacity); err != nil {
		return err
	}
	if c.Redis != nil {
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis addr is required", ErrInvalidConfig)
		}
		if c.Redis.Key == "" {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidKey)
		}
		if c.Redis.PoolSize < 0 {
			return fmt.Errorf("%w: redis pool_size cannot be negative", ErrInvalidConfig)
		}
	}
	return nil
}

// DrainTime is how long a full bucket takes to empty.
func (c *Config) DrainTime() time.Duration {
	return time.Duration(c.Capacity / c.Rate * float64(time.Second))
}

// NewLimiter builds an in-process RateLimiter from the config.
func (c *Config) NewLimiter(opts ...Option) (*RateLimiter, error) {
	return New(c.Rate, c.Capacity, opts...)
}
