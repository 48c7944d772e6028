package leakybucket

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const redisPrefix = "leakybucket:"

// RedisBucket is a leaky bucket whose state lives in Redis, so every process
// holding a RedisBucket for the same key shares one bucket. Each step runs
// as a single Lua script, which Redis executes atomically.
type RedisBucket struct {
	rdb      Client
	key      string
	rate     float64
	capacity float64
	ttl      int64

	opts options
}

// NewRedisBucket returns a shared bucket stored under key.
// Rate and capacity follow the same rules as New.
func NewRedisBucket(rdb Client, key string, rate, capacity float64, opts ...Option) (*RedisBucket, error) {
	if rdb == nil {
		return nil, fmt.Errorf("%w: redis client cannot be nil", ErrInvalidConfig)
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	if err := validate(rate, capacity); err != nil {
		return nil, err
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	// The level stays below capacity+1; once that much has drained the
	// bucket is empty, so letting the key expire changes nothing.
	ttl := int64(math.Ceil((capacity+1)/rate)) + 1
	return &RedisBucket{
		rdb:      rdb,
		key:      redisPrefix + key,
		rate:     rate,
		capacity: capacity,
		ttl:      ttl,
		opts:     o,
	}, nil
}

// NewRedisBucketFromConfig builds a RedisBucket from a config with a Redis section.
func NewRedisBucketFromConfig(rdb Client, cfg *Config, opts ...Option) (*RedisBucket, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("%w: config has no redis section", ErrInvalidConfig)
	}
	return NewRedisBucket(rdb, cfg.Redis.Key, cfg.Rate, cfg.Capacity, opts...)
}

// AllowRequest reports whether one more request may proceed now.
// Errors come only from talking to Redis; the caller decides whether to fail
// open or closed.
func (b *RedisBucket) AllowRequest() (bool, error) {
	now := b.opts.clock.Now()
	var resp []interface{}

	err := b.rdb.EvalScript(
		&resp,
		leakScriptSrc,
		[]string{b.key},
		strconv.FormatFloat(b.rate, 'f', -1, 64),
		strconv.FormatFloat(b.capacity, 'f', -1, 64),
		strconv.FormatFloat(unixSeconds(now), 'f', -1, 64),
		strconv.FormatInt(b.ttl, 10),
	)
	if err != nil {
		return false, fmt.Errorf("run leak script for %s: %w", b.key, err)
	}
	if len(resp) != 2 {
		return false, fmt.Errorf("unexpected redis response, got %d items", len(resp))
	}

	allowed, err := strconv.ParseInt(fmt.Sprint(resp[0]), 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse allowed: %w", err)
	}
	level, err := parseFloat(resp[1])
	if err != nil {
		return false, fmt.Errorf("parse level: %w", err)
	}

	b.opts.logger.Debug().
		Str("key", b.key).
		Bool("allowed", allowed == 1).
		Float64("level", level).
		Float64("capacity", b.capacity).
		Msg("request checked")
	return allowed == 1, nil
}

// Level returns the fill level drained to the current clock reading. It does
// not modify the bucket. A missing key reads as an empty bucket.
func (b *RedisBucket) Level() (float64, error) {
	var raw []string
	if err := b.rdb.DoCmd(&raw, "HMGET", b.key, "level", "last"); err != nil {
		return 0, err
	}
	if len(raw) != 2 || raw[0] == "" {
		return 0, nil
	}
	level, err := strconv.ParseFloat(raw[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parse level: %w", err)
	}
	last, err := strconv.ParseFloat(raw[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse last: %w", err)
	}

	elapsed := unixSeconds(b.opts.clock.Now()) - last
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Max(0, level-elapsed*b.rate), nil
}

// Reset empties the bucket.
func (b *RedisBucket) Reset() error {
	return b.rdb.DoCmd(nil, "DEL", b.key)
}

// Key returns the Redis key holding the bucket.
func (b *RedisBucket) Key() string { return b.key }

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func parseFloat(raw interface{}) (float64, error) {
	s, err := normalizeString(raw)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

func normalizeString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", fmt.Errorf("unexpected type %T for normalizeString", v)
	}
}
