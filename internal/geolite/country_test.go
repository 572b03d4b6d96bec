package geolite

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenRejectsInvalidDatabase(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatal("Open(missing) succeeded")
	}

	junk := filepath.Join(t.TempDir(), "junk.mmdb")
	if err := os.WriteFile(junk, []byte("not a maxmind database"), 0o644); err != nil {
		t.Fatalf("write junk file: %v", err)
	}
	if _, err := Open(junk); err == nil {
		t.Fatal("Open(junk) succeeded")
	}
}

func TestNilLookupIsUnknown(t *testing.T) {
	var l *CountryLookup
	if got := l.CountryCode("8.8.8.8"); got != "" {
		t.Fatalf("CountryCode = %q, want empty", got)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	empty := &CountryLookup{}
	if got := empty.CountryCode("not-an-ip"); got != "" {
		t.Fatalf("CountryCode(not-an-ip) = %q, want empty", got)
	}
}

func TestReloadIfChangedFollowsModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "country.mmdb")
	if err := os.WriteFile(path, []byte("not a maxmind database"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	l := &CountryLookup{path: path, modTime: info.ModTime()}
	reloaded, err := l.ReloadIfChanged()
	if err != nil || reloaded {
		t.Fatalf("ReloadIfChanged(unchanged) = %v, %v, want false, nil", reloaded, err)
	}

	// A newer file is picked up; this one is junk, so the swap fails and
	// the previous state stays.
	next := info.ModTime().Add(time.Minute)
	if err := os.Chtimes(path, next, next); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if reloaded, err := l.ReloadIfChanged(); err == nil || reloaded {
		t.Fatalf("ReloadIfChanged(junk) = %v, %v, want false and an error", reloaded, err)
	}
	if !l.modTime.Equal(info.ModTime()) {
		t.Fatal("failed reload moved the recorded modification time")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := l.ReloadIfChanged(); err == nil {
		t.Fatal("ReloadIfChanged(missing) succeeded")
	}

	var nilLookup *CountryLookup
	if reloaded, err := nilLookup.ReloadIfChanged(); err != nil || reloaded {
		t.Fatalf("nil ReloadIfChanged = %v, %v", reloaded, err)
	}
}
