package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"townsquare/internal/config"
	"townsquare/internal/database"
	"townsquare/internal/support"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	backfillLockKey    = "townsquare:leader:guest_author_backfill"
	backfillRunLockKey = "townsquare:lock:guest_author_backfill_run"
)

// ErrBackfillRunning is returned when another pass holds the run lock.
var ErrBackfillRunning = errors.New("guest author backfill already running")

type GuestAuthorBackfiller interface {
	BackfillGuestAuthors(ctx context.Context, batchSize int) (database.BackfillResult, error)
}

// StartGuestAuthorBackfillRoutine moves inline guest credentials into
// GuestAuthor rows while maintenance.backfill_enabled is set.
func StartGuestAuthorBackfillRoutine(ctx context.Context, client *redis.Client, store GuestAuthorBackfiller) {
	runAsLeader(ctx, client, backfillLockKey, "guest_author_backfill", func(leaderCtx context.Context) {
		runEvery(leaderCtx, config.BackfillIntervalUpdates(), func(runCtx context.Context) {
			cfg := config.GetConfig().Maintenance
			if !cfg.BackfillEnabled {
				return
			}
			_, err := RunGuestAuthorBackfillExclusive(runCtx, client, store, cfg.BackfillBatchSize)
			switch {
			case errors.Is(err, ErrBackfillRunning):
				log.Debug("Guest author backfill skipped, a manual pass is running")
			case err != nil:
				log.Error("Guest author backfill failed", "error", err)
			}
		})
	})
}

func RunGuestAuthorBackfill(ctx context.Context, store GuestAuthorBackfiller, batchSize int) (database.BackfillResult, error) {
	start := time.Now()
	res, err := store.BackfillGuestAuthors(ctx, batchSize)
	if res.Total() > 0 {
		log.Info("Guest credentials moved to guest authors",
			"posts", res.Posts,
			"comments", res.Comments,
			"duration", time.Since(start),
		)
	}
	return res, err
}

// RunGuestAuthorBackfillExclusive runs one pass under the run lock, which is
// shared between the scheduled job and admin-triggered passes. Without redis
// the pass runs directly.
func RunGuestAuthorBackfillExclusive(ctx context.Context, client *redis.Client, store GuestAuthorBackfiller, batchSize int) (database.BackfillResult, error) {
	if client == nil {
		return RunGuestAuthorBackfill(ctx, store, batchSize)
	}

	runCtx, release, err := support.TryLeader(ctx, client, backfillRunLockKey, support.DefaultLeadershipTTL)
	if err != nil {
		return database.BackfillResult{}, fmt.Errorf("acquire backfill run lock: %w", err)
	}
	if release == nil {
		return database.BackfillResult{}, ErrBackfillRunning
	}
	defer release()

	return RunGuestAuthorBackfill(runCtx, store, batchSize)
}
