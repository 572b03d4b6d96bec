package app

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"townsquare/internal/database"
	"townsquare/internal/guard"
)

func TestReadPort(t *testing.T) {
	t.Setenv("TOWNSQUARE_PORT_VALID", "12345")
	if got := readPort("TOWNSQUARE_PORT_VALID"); got != 12345 {
		t.Fatalf("readPort returned %d, want 12345", got)
	}

	t.Setenv("TOWNSQUARE_PORT_INVALID", "not-a-number")
	if got := readPort("TOWNSQUARE_PORT_INVALID"); got != 0 {
		t.Fatalf("readPort with invalid value returned %d, want 0", got)
	}

	t.Setenv("TOWNSQUARE_PORT_ZERO", "0")
	if got := readPort("TOWNSQUARE_PORT_ZERO"); got != 0 {
		t.Fatalf("readPort with zero value returned %d, want 0", got)
	}
}

func TestResolvePort(t *testing.T) {
	t.Run("primary env overrides fallback", func(t *testing.T) {
		t.Setenv("PRIMARY_PORT", "5050")
		if got := resolvePort("PRIMARY_PORT", "LEGACY_PORT", 8080); got != 5050 {
			t.Fatalf("resolvePort returned %d, want 5050", got)
		}
	})

	t.Run("legacy env used when primary missing", func(t *testing.T) {
		t.Setenv("LEGACY_PORT", "6060")
		if got := resolvePort("PRIMARY_MISSING", "LEGACY_PORT", 8080); got != 6060 {
			t.Fatalf("resolvePort returned %d, want 6060", got)
		}
	})

	t.Run("fallback used when env unset", func(t *testing.T) {
		if got := resolvePort("UNSET_PRIMARY", "UNSET_LEGACY", 9090); got != 9090 {
			t.Fatalf("resolvePort returned %d, want 9090", got)
		}
	})
}

func TestConfigureLogLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	configureLogLevel("debug")
	if got := log.GetLevel(); got != log.DebugLevel {
		t.Fatalf("level = %v, want debug", got)
	}

	configureLogLevel("chatty")
	if got := log.GetLevel(); got != log.InfoLevel {
		t.Fatalf("level after invalid value = %v, want info", got)
	}
}

func TestConnectRedisDisabled(t *testing.T) {
	t.Setenv("REDIS_DISABLED", "true")

	client, err := connectRedis()
	if err != nil || client != nil {
		t.Fatalf("connectRedis = %v, %v; want nil, nil", client, err)
	}
}

func TestBuildGuardWithoutRedis(t *testing.T) {
	store := database.NewGuestStore(nil)

	g, passwords := buildGuard(store, nil, nil, prometheus.NewRegistry(), false)
	if passwords == nil {
		t.Fatal("expected a password hasher")
	}
	if g.ModerationReady() {
		t.Fatal("guard should report moderation disabled when tables are missing")
	}
	if g.FailureMode() != guard.FailClosed {
		t.Fatalf("failure mode = %q, want %q", g.FailureMode(), guard.FailClosed)
	}
}
