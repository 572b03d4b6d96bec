package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBanPurgeInterval = 6 * time.Hour
	defaultBackfillInterval = 15 * time.Minute
	defaultGeoLiteReload    = 6 * time.Hour
	minimumInterval         = time.Second
)

// intervalSetting is a runtime-adjustable job interval with change listeners.
type intervalSetting struct {
	value     atomic.Value
	fallback  time.Duration
	mu        sync.Mutex
	listeners []chan time.Duration
}

func newIntervalSetting(fallback time.Duration) *intervalSetting {
	s := &intervalSetting{fallback: fallback}
	s.value.Store(fallback)
	return s
}

func (s *intervalSetting) get() time.Duration {
	return s.value.Load().(time.Duration)
}

func (s *intervalSetting) set(interval time.Duration) {
	if interval <= 0 {
		interval = s.fallback
	}
	if s.get() == interval {
		return
	}
	s.value.Store(interval)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

// updates returns a channel primed with the current interval. Sends never
// block; a slow reader only sees the latest value it had room for.
func (s *intervalSetting) updates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()

	ch <- s.get()
	return ch
}

var (
	banPurgeInterval = newIntervalSetting(defaultBanPurgeInterval)
	backfillInterval = newIntervalSetting(defaultBackfillInterval)
	geoLiteReload    = newIntervalSetting(defaultGeoLiteReload)
)

func refreshIntervals(cfg Config) {
	banPurgeInterval.set(timerOrDefault(cfg.Maintenance.BanPurgeTimer, defaultBanPurgeInterval))
	backfillInterval.set(timerOrDefault(cfg.Maintenance.BackfillTimer, defaultBackfillInterval))
	geoLiteReload.set(timerOrDefault(cfg.GeoLite.ReloadTimer, defaultGeoLiteReload))
}

func timerOrDefault(timer Timer, fallback time.Duration) time.Duration {
	if timer == (Timer{}) {
		return fallback
	}
	return CalculateBetweenTime(timer)
}

// CalculateBetweenTime converts timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	d := time.Duration(timer.Days)*24*time.Hour +
		time.Duration(timer.Hours)*time.Hour +
		time.Duration(timer.Minutes)*time.Minute +
		time.Duration(timer.Seconds)*time.Second
	if d < minimumInterval {
		return minimumInterval
	}
	return d
}

func GetBanPurgeInterval() time.Duration { return banPurgeInterval.get() }

func BanPurgeIntervalUpdates() <-chan time.Duration { return banPurgeInterval.updates() }

func GetBackfillInterval() time.Duration { return backfillInterval.get() }

func BackfillIntervalUpdates() <-chan time.Duration { return backfillInterval.updates() }

func GetGeoLiteReloadInterval() time.Duration { return geoLiteReload.get() }

func GeoLiteReloadIntervalUpdates() <-chan time.Duration { return geoLiteReload.updates() }
