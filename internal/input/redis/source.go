package redis

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const defaultPageSize = 1000

// Config configures the Redis list source.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	PageSize int64
}

// Source reads a snapshot of a Redis list holding raw log lines. Reading
// does not remove entries from the list.
type Source struct {
	client   *redis.Client
	addr     string
	key      string
	pageSize int64
}

// NewSource creates a Redis list source.
func NewSource(cfg Config) (*Source, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Source{
		client:   client,
		addr:     cfg.Addr,
		key:      cfg.Key,
		pageSize: cfg.PageSize,
	}, nil
}

// Name returns the source location.
func (s *Source) Name() string {
	return fmt.Sprintf("redis://%s/%s", s.addr, s.key)
}

// Lines reads the list as it was when the call started. Entries pushed
// during the read are not included.
func (s *Source) Lines(ctx context.Context) ([]string, error) {
	total, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis llen %s: %w", s.key, err)
	}

	lines := make([]string, 0, total)
	for start := int64(0); start < total; start += s.pageSize {
		stop := start + s.pageSize - 1
		if stop >= total {
			stop = total - 1
		}
		page, err := s.client.LRange(ctx, s.key, start, stop).Result()
		if err != nil {
			return lines, fmt.Errorf("redis lrange %s: %w", s.key, err)
		}
		lines = append(lines, page...)
		if int64(len(page)) < stop-start+1 {
			break
		}
	}
	return lines, nil
}

// Close closes the client.
func (s *Source) Close() error {
	return s.client.Close()
}
