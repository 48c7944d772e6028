package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	xrate "golang.org/x/time/rate"

	leakybucket "github.com/sagarsuperuser/leakybucket"
)

// decideFunc is one admission decision against whichever bucket the demo built.
type decideFunc func() (bool, error)

// bucketHandle is the bucket the demo drives plus its Redis client, if any.
type bucketHandle struct {
	decide decideFunc
	client leakybucket.Client
}

// activeConns reports in-use Redis connections, or -1 for an in-process bucket.
func (h *bucketHandle) activeConns() int {
	if h.client == nil {
		return -1
	}
	return h.client.NumActiveConns()
}

func (h *bucketHandle) close(logger zerolog.Logger) {
	if h.client == nil {
		return
	}
	if err := h.client.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing redis client")
	}
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := &cli.Command{
		Name:  "demo",
		Usage: "issue requests against a leaky bucket at a fixed interval",
		Flags: []cli.Flag{
			&cli.FloatFlag{Name: "rate", Value: 1, Usage: "units leaked per second"},
			&cli.FloatFlag{Name: "capacity", Value: 5, Usage: "maximum fill level"},
			&cli.IntFlag{Name: "requests", Value: 10, Usage: "number of requests to issue"},
			&cli.DurationFlag{Name: "interval", Value: 500 * time.Millisecond, Usage: "pause between requests"},
			&cli.IntFlag{Name: "workers", Value: 1, Usage: "concurrent callers sharing the bucket"},
			&cli.StringFlag{Name: "config", Usage: "YAML config file; overrides rate, capacity and redis flags"},
			&cli.StringFlag{Name: "redis", Usage: "share the bucket through the Redis server at this address"},
			&cli.StringFlag{Name: "key", Value: "demo:leaky", Usage: "Redis key for a shared bucket"},
			&cli.BoolFlag{Name: "verbose", Usage: "log every decision"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("verbose") {
				logger = logger.Level(zerolog.DebugLevel)
			} else {
				logger = logger.Level(zerolog.InfoLevel)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			h, err := buildBucket(cfg, logger)
			if err != nil {
				return err
			}
			defer h.close(logger)
			return run(ctx, logger, h, int64(cmd.Int("requests")), int(cmd.Int("workers")), cmd.Duration("interval"))
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Fatal().Err(err).Msg("demo failed")
	}
}

func loadConfig(cmd *cli.Command) (*leakybucket.Config, error) {
	if path := cmd.String("config"); path != "" {
		return leakybucket.LoadConfig(path)
	}
	cfg := &leakybucket.Config{
		Rate:     cmd.Float("rate"),
		Capacity: cmd.Float("capacity"),
	}
	if addr := cmd.String("redis"); addr != "" {
		cfg.Redis = &leakybucket.RedisConfig{
			Network:  "tcp",
			Addr:     addr,
			PoolSize: 4,
			Key:      cmd.String("key"),
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildBucket(cfg *leakybucket.Config, logger zerolog.Logger) (*bucketHandle, error) {
	if cfg.Redis == nil {
		limiter, err := cfg.NewLimiter(leakybucket.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info().Str("bucket", limiter.String()).Msg("using in-process bucket")
		return &bucketHandle{decide: func() (bool, error) { return limiter.AllowRequest(), nil }}, nil
	}

	client, err := leakybucket.NewRadixClient(cfg.Redis.Network, cfg.Redis.Addr, cfg.Redis.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	h := &bucketHandle{client: client}
	bucket, err := leakybucket.NewRedisBucketFromConfig(client, cfg, leakybucket.WithLogger(logger))
	if err != nil {
		h.close(logger)
		return nil, err
	}
	// Clean slate.
	if err := bucket.Reset(); err != nil {
		h.close(logger)
		return nil, fmt.Errorf("reset: %w", err)
	}
	logger.Info().Str("key", bucket.Key()).Str("addr", cfg.Redis.Addr).Msg("using shared bucket")
	h.decide = bucket.AllowRequest
	return h, nil
}

func run(ctx context.Context, logger zerolog.Logger, h *bucketHandle, requests int64, workers int, interval time.Duration) error {
	if workers < 1 {
		workers = 1
	}
	// One request per interval across all workers.
	pace := xrate.NewLimiter(xrate.Every(interval), 1)

	var (
		next    atomic.Int64
		allowed atomic.Int64
	)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				n := next.Add(1)
				if n > requests {
					return nil
				}
				if err := pace.Wait(ctx); err != nil {
					return err
				}
				ok, err := h.decide()
				if err != nil {
					return fmt.Errorf("request %d: %w", n, err)
				}
				if ok {
					allowed.Add(1)
					fmt.Printf("#%d Request allowed\n", n)
				} else {
					fmt.Printf("#%d Request denied\n", n)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ev := logger.Info().Int64("allowed", allowed.Load()).Int64("denied", requests-allowed.Load())
	if n := h.activeConns(); n >= 0 {
		ev = ev.Int("redis_active_conns", n)
	}
	ev.Msg("done")
	return nil
}
