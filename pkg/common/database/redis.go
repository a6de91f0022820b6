package database

import (
	"context"
	"fmt"
	"time"

	"github.com/labtrack/lims/pkg/common/config"
	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// NewRedis returns a client for the configured server. A failed ping is
// reported as an error so callers can fall back to running without a cache.
func NewRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Log.WithError(err).Error("Failed to connect to Redis")
		_ = client.Close()
		return nil, err
	}

	logger.Log.Info("Connected to Redis")
	return client, nil
}
