package maintenance

import (
	"context"

	"townsquare/internal/config"

	"github.com/charmbracelet/log"
)

type CountryReloader interface {
	ReloadIfChanged() (bool, error)
}

// StartGeoLiteReloadRoutine picks up a replaced mmdb file on every
// geolite.reload_timer tick. Each instance reads its own copy, so there is no
// leader election.
func StartGeoLiteReloadRoutine(ctx context.Context, lookup CountryReloader) {
	if lookup == nil {
		return
	}
	runEvery(ctx, config.GeoLiteReloadIntervalUpdates(), func(context.Context) {
		RunGeoLiteReload(lookup)
	})
}

func RunGeoLiteReload(lookup CountryReloader) bool {
	reloaded, err := lookup.ReloadIfChanged()
	if err != nil {
		log.Warn("GeoLite reload failed, keeping the current database", "error", err)
		return false
	}
	if reloaded {
		log.Info("GeoLite database reloaded")
	}
	return reloaded
}
