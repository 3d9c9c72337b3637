package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient accepts either a redis:// URL or a bare host:port.
func NewRedisClient(ctx context.Context, conn string) (*redis.Client, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, fmt.Errorf("redis connection string is empty")
	}

	opts := &redis.Options{Addr: conn}
	if strings.Contains(conn, "://") {
		parsed, err := redis.ParseURL(conn)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
