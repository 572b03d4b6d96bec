package config

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisConfigKey     = "townsquare:config:settings"
	redisConfigChannel = "townsquare:config:updates"
	redisOpTimeout     = 5 * time.Second
)

// configEnvelope tags a broadcast with the sending instance so it can skip
// its own echo.
type configEnvelope struct {
	Origin string `json:"origin"`
	Config Config `json:"config"`
}

type redisSyncState struct {
	mu       sync.RWMutex
	client   *redis.Client
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	instance string
}

var globalRedisSync redisSyncState

// EnableRedisSynchronization shares settings between instances. The stored
// snapshot wins over the local file on start; when none exists the local
// configuration is published.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client) error {
	if client == nil {
		log.Warn("Config synchronization disabled: redis client is nil")
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	syncCtx, cancel := context.WithCancel(ctx)

	globalRedisSync.mu.Lock()
	if globalRedisSync.client != nil {
		globalRedisSync.mu.Unlock()
		cancel()
		return nil
	}
	globalRedisSync.client = client
	globalRedisSync.ctx = syncCtx
	globalRedisSync.cancel = cancel
	globalRedisSync.done = make(chan struct{})
	globalRedisSync.instance = uuid.NewString()
	done := globalRedisSync.done
	instance := globalRedisSync.instance
	globalRedisSync.mu.Unlock()

	// Subscribe before reading the snapshot so no update slips between them.
	pubsub := client.Subscribe(syncCtx, redisConfigChannel)
	if _, err := pubsub.Receive(syncCtx); err != nil {
		_ = pubsub.Close()
		close(done)
		DisableRedisSynchronization()
		return err
	}

	loaded, err := loadConfigFromRedis(syncCtx, client)
	if err != nil {
		log.Error("Config sync: failed to load configuration from redis", "error", err)
	}
	if !loaded {
		if err := broadcastConfigUpdate(GetConfig()); err != nil {
			log.Error("Config sync: failed to publish configuration to redis", "error", err)
		}
	}

	go subscribeToConfigUpdates(syncCtx, pubsub, instance, done)
	return nil
}

// DisableRedisSynchronization stops the subscriber and forgets the client.
func DisableRedisSynchronization() {
	globalRedisSync.mu.Lock()
	cancel := globalRedisSync.cancel
	done := globalRedisSync.done
	globalRedisSync.client = nil
	globalRedisSync.ctx = nil
	globalRedisSync.cancel = nil
	globalRedisSync.done = nil
	globalRedisSync.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func loadConfigFromRedis(ctx context.Context, client *redis.Client) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	payload, err := client.Get(opCtx, redisConfigKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	var cfg Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return true, err
	}
	if err := cfg.Validate(); err != nil {
		return true, err
	}

	return true, applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

func subscribeToConfigUpdates(ctx context.Context, pubsub *redis.PubSub, instance string, done chan struct{}) {
	defer close(done)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Config sync: subscription error", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var env configEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Error("Config sync: invalid payload", "error", err)
			continue
		}
		if env.Origin == instance {
			continue
		}
		if err := env.Config.Validate(); err != nil {
			log.Error("Config sync: rejected remote update", "origin", env.Origin, "error", err)
			continue
		}

		if err := applyConfigUpdate(env.Config, configUpdateOptions{persistToFile: true, source: "redis"}); err != nil {
			log.Error("Config sync: failed to apply remote update", "error", err)
		}
	}
}

func broadcastConfigUpdate(cfg Config) error {
	globalRedisSync.mu.RLock()
	client := globalRedisSync.client
	baseCtx := globalRedisSync.ctx
	instance := globalRedisSync.instance
	globalRedisSync.mu.RUnlock()

	if client == nil {
		return nil
	}

	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(configEnvelope{Origin: instance, Config: cfg})
	if err != nil {
		return err
	}

	ctx := baseCtx
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := client.Set(opCtx, redisConfigKey, snapshot, 0).Err(); err != nil {
		return err
	}
	return client.Publish(opCtx, redisConfigChannel, payload).Err()
}
