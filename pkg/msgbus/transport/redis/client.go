package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
)

var (
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")
	ErrParseConnString    = errors.New("failed to parse redis connection string")
	ErrNotReady           = errors.New("redis did not become ready")
)

// Config configures the client. Field tags match config.Settings so the
// struct can be parsed directly with caarlos0/env.
type Config struct {
	URL            string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"500ms"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Connect parses cfg.URL, creates a client and pings it until it answers
// or the attempts run out.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyConnectionURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrParseConnString, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client := redis.NewClient(opts)

	retry := bserrors.RetryConfig{
		MaxAttempts:    cfg.RetryAttempts,
		InitialBackoff: cfg.RetryInterval,
		BackoffFactor:  2,
		RetryableFunc:  func(error) bool { return true },
	}
	result := bserrors.WithRetryContext(ctx, retry, func(ctx context.Context) (string, error) {
		return client.Ping(ctx).Result()
	})
	if result.Err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrNotReady, result.Err)
	}
	return client, nil
}

// Healthcheck returns a ping func suitable for readiness checks.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis healthcheck: %w", err)
		}
		return nil
	}
}
