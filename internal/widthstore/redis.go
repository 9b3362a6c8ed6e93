package widthstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// DialTimeout bounds connection establishment and the initial ping.
	DialTimeout time.Duration
}

// Redis stores each key as a hash of column to width.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.DialTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Load(ctx context.Context, key string) (map[string]int, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load widths %s: %w", key, err)
	}

	out := make(map[string]int, len(raw))
	for col, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			// Skip values written by something else.
			continue
		}
		out[col] = n
	}
	return out, nil
}

func (r *Redis) Save(ctx context.Context, key string, widths map[string]int) error {
	if key == "" {
		return ErrInvalidKey
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(widths) > 0 {
		fields := make(map[string]any, len(widths))
		for col, w := range widths {
			fields[col] = w
		}
		pipe.HSet(ctx, key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save widths %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete widths %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
