package config

import (
	"testing"
	"time"
)

func TestCalculateBetweenTime(t *testing.T) {
	t.Run("enforces minimum interval", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{}); got != time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1s", got)
		}
	})

	t.Run("sums every unit", func(t *testing.T) {
		got := CalculateBetweenTime(Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4})
		want := 26*time.Hour + 3*time.Minute + 4*time.Second
		if got != want {
			t.Fatalf("CalculateBetweenTime returned %s, want %s", got, want)
		}
	})
}

func TestIntervalSettingNotifiesListeners(t *testing.T) {
	s := newIntervalSetting(time.Hour)
	updates := s.updates()

	if got := <-updates; got != time.Hour {
		t.Fatalf("initial interval = %s, want 1h", got)
	}

	s.set(10 * time.Minute)
	select {
	case got := <-updates:
		if got != 10*time.Minute {
			t.Fatalf("updated interval = %s, want 10m", got)
		}
	default:
		t.Fatal("listener was not notified")
	}

	s.set(0)
	if got := s.get(); got != time.Hour {
		t.Fatalf("interval after set(0) = %s, want fallback 1h", got)
	}
}

func TestRefreshIntervalsUsesDefaultsForEmptyTimers(t *testing.T) {
	orig := GetConfig()
	t.Cleanup(func() {
		configValue.Store(orig)
		refreshIntervals(orig)
	})

	cfg := Config{}
	cfg.Maintenance.BackfillTimer = Timer{Minutes: 2}
	refreshIntervals(cfg)

	if got := GetBanPurgeInterval(); got != defaultBanPurgeInterval {
		t.Fatalf("ban purge interval = %s, want %s", got, defaultBanPurgeInterval)
	}
	if got := GetBackfillInterval(); got != 2*time.Minute {
		t.Fatalf("backfill interval = %s, want 2m", got)
	}
	if got := GetGeoLiteReloadInterval(); got != defaultGeoLiteReload {
		t.Fatalf("geolite reload interval = %s, want %s", got, defaultGeoLiteReload)
	}
}
