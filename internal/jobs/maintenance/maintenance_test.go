package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"townsquare/internal/database"
	"townsquare/internal/support"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingPurger struct {
	cutoff time.Time
	err    error
}

func (p *recordingPurger) PurgeExpiredBans(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 2, p.err
}

func TestRunBanPurgeUsesRetention(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	purger := &recordingPurger{}

	removed, err := RunBanPurge(context.Background(), purger, now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("RunBanPurge: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if want := now.Add(-30 * 24 * time.Hour); !purger.cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", purger.cutoff, want)
	}

	purger.err = errors.New("boom")
	if _, err := RunBanPurge(context.Background(), purger, now, time.Hour); err == nil {
		t.Fatal("RunBanPurge swallowed the store error")
	}
}

func TestResolveBanRetention(t *testing.T) {
	t.Setenv(envBanRetentionDays, "7")
	if got := resolveBanRetention(); got != 7*24*time.Hour {
		t.Fatalf("retention = %s, want 168h", got)
	}

	t.Setenv(envBanRetentionDays, "-1")
	if got := resolveBanRetention(); got != defaultBanRetentionDays*24*time.Hour {
		t.Fatalf("retention = %s, want default", got)
	}
}

type countingBackfiller struct {
	calls atomic.Int32
}

func (b *countingBackfiller) BackfillGuestAuthors(context.Context, int) (database.BackfillResult, error) {
	b.calls.Add(1)
	return database.BackfillResult{Posts: 1}, nil
}

func TestRunEveryRunsImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan time.Duration, 1)
	updates <- 10 * time.Millisecond

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		runEvery(ctx, updates, func(context.Context) { runs.Add(1) })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("runs = %d, want at least 3", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestBackfillRoutineWithoutRedis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &countingBackfiller{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		StartGuestAuthorBackfillRoutine(ctx, nil, store)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("backfill did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestBackfillExclusiveSkipsWhileLocked(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &countingBackfiller{}

	_, release, err := support.TryLeader(ctx, client, backfillRunLockKey, time.Minute)
	if err != nil || release == nil {
		t.Fatalf("TryLeader = %v, release nil: %v", err, release == nil)
	}

	if _, err := RunGuestAuthorBackfillExclusive(ctx, client, store, 10); !errors.Is(err, ErrBackfillRunning) {
		t.Fatalf("locked pass = %v, want ErrBackfillRunning", err)
	}
	if store.calls.Load() != 0 {
		t.Fatal("backfill ran while another pass held the lock")
	}

	release()
	res, err := RunGuestAuthorBackfillExclusive(ctx, client, store, 10)
	if err != nil {
		t.Fatalf("unlocked pass: %v", err)
	}
	if res.Posts != 1 || store.calls.Load() != 1 {
		t.Fatalf("result = %+v calls = %d, want one pass", res, store.calls.Load())
	}
	if mr.Exists(backfillRunLockKey) {
		t.Fatal("run lock not released after the pass")
	}
}

type stubReloader struct {
	reloaded bool
	err      error
	calls    int
}

func (r *stubReloader) ReloadIfChanged() (bool, error) {
	r.calls++
	return r.reloaded, r.err
}

func TestRunGeoLiteReload(t *testing.T) {
	if !RunGeoLiteReload(&stubReloader{reloaded: true}) {
		t.Fatal("RunGeoLiteReload = false for a swapped database")
	}
	if RunGeoLiteReload(&stubReloader{}) {
		t.Fatal("RunGeoLiteReload = true for an unchanged file")
	}
	if RunGeoLiteReload(&stubReloader{err: errors.New("bad file")}) {
		t.Fatal("RunGeoLiteReload = true on error")
	}
}

func TestGeoLiteReloadRoutineRunsOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reloader := &syncReloader{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		StartGeoLiteReloadRoutine(ctx, reloader)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for reloader.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("geolite reload did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

type syncReloader struct {
	calls atomic.Int32
}

func (r *syncReloader) ReloadIfChanged() (bool, error) {
	r.calls.Add(1)
	return false, nil
}
