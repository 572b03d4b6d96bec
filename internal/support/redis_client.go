package support

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 3 * time.Second

var (
	redisMu     sync.Mutex
	redisClient *redis.Client
)

// RedisOptions builds client options from REDIS_URL and the optional
// REDIS_POOL_SIZE / REDIS_KEY_DB overrides.
func RedisOptions() (*redis.Options, error) {
	redisURL := GetEnv("REDIS_URL", "redis://localhost:6379/0")

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url %q: %w", redisURL, err)
	}

	if size := GetEnvInt("REDIS_POOL_SIZE", 0); size > 0 {
		opt.PoolSize = size
	}
	if db := GetEnvInt("REDIS_KEY_DB", -1); db >= 0 {
		opt.DB = db
	}

	return opt, nil
}

// GetRedisClient returns the shared client, connecting on first use.
func GetRedisClient() (*redis.Client, error) {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient != nil {
		return redisClient, nil
	}

	opt, err := RedisOptions()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opt.Addr, err)
	}

	redisClient = client
	return redisClient, nil
}

// SetRedisClient swaps the shared client; tests point it at miniredis.
func SetRedisClient(client *redis.Client) {
	redisMu.Lock()
	redisClient = client
	redisMu.Unlock()
}

func CloseRedisClient() error {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient == nil {
		return nil
	}

	err := redisClient.Close()
	redisClient = nil
	return err
}
