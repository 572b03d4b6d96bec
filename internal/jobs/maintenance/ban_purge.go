package maintenance

import (
	"context"
	"time"

	"townsquare/internal/config"
	"townsquare/internal/support"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	envBanRetentionDays     = "GUEST_BAN_RETENTION_DAYS"
	defaultBanRetentionDays = 30
	banPurgeLockKey         = "townsquare:leader:guest_ban_purge"
	banPurgeTimeout         = time.Minute
)

type BanPurger interface {
	PurgeExpiredBans(ctx context.Context, cutoff time.Time) (int64, error)
}

func StartBanPurgeRoutine(ctx context.Context, client *redis.Client, store BanPurger) {
	runAsLeader(ctx, client, banPurgeLockKey, "guest_ban_purge", func(leaderCtx context.Context) {
		runEvery(leaderCtx, config.BanPurgeIntervalUpdates(), func(runCtx context.Context) {
			if _, err := RunBanPurge(runCtx, store, time.Now(), resolveBanRetention()); err != nil {
				log.Error("Failed to purge expired guest bans", "error", err)
			}
		})
	})
}

// RunBanPurge deletes bans that expired more than retention before now.
func RunBanPurge(ctx context.Context, store BanPurger, now time.Time, retention time.Duration) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, banPurgeTimeout)
	defer cancel()

	start := time.Now()
	removed, err := store.PurgeExpiredBans(opCtx, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info("Expired guest bans purged", "removed", removed, "retention", retention, "duration", time.Since(start))
	}
	return removed, nil
}

// resolveBanRetention prefers the environment over the settings file.
func resolveBanRetention() time.Duration {
	days := config.GetConfig().Maintenance.BanRetentionDays
	if days <= 0 {
		days = defaultBanRetentionDays
	}
	days = support.GetEnvInt(envBanRetentionDays, days)
	if days <= 0 {
		days = defaultBanRetentionDays
	}
	return time.Duration(days) * 24 * time.Hour
}
