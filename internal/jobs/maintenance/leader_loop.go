package maintenance

import (
	"context"
	"errors"
	"time"

	"townsquare/internal/support"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// runAsLeader runs loop under the redis leader lock at key, or directly when
// there is no redis client (single instance).
func runAsLeader(ctx context.Context, client *redis.Client, key, name string, loop func(context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	if client == nil {
		log.Info("No redis client, running maintenance job without leader election", "job", name)
		loop(ctx)
		return
	}

	err := support.RunWithLeader(ctx, client, key, support.DefaultLeadershipTTL, loop)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Maintenance routine stopped", "job", name, "error", err)
	}
}

// runEvery calls fn once, then on every tick. The interval follows updates.
func runEvery(ctx context.Context, updates <-chan time.Duration, fn func(context.Context)) {
	interval := <-updates
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case next := <-updates:
			if next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ticker.C:
			fn(ctx)
		}
	}
}
