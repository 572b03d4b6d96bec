// Package geolite tags guest violations with a country code from a local
// GeoLite2 Country database.
package geolite

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

type CountryLookup struct {
	mu      sync.RWMutex
	path    string
	reader  *geoip2.Reader
	modTime time.Time
}

// Open loads the mmdb file at path.
func Open(path string) (*CountryLookup, error) {
	l := &CountryLookup{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload swaps in a fresh reader from disk, keeping the old one on failure.
func (l *CountryLookup) Reload() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("geolite: stat %s: %w", l.path, err)
	}
	reader, err := geoip2.Open(l.path)
	if err != nil {
		return fmt.Errorf("geolite: open %s: %w", l.path, err)
	}

	l.mu.Lock()
	old := l.reader
	l.reader = reader
	l.modTime = info.ModTime()
	l.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Warn("GeoLite: closing previous reader failed", "error", err)
		}
	}
	return nil
}

// ReloadIfChanged reloads when the file's modification time differs from the
// last successful load. It reports whether a new reader was swapped in.
func (l *CountryLookup) ReloadIfChanged() (bool, error) {
	if l == nil {
		return false, nil
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return false, fmt.Errorf("geolite: stat %s: %w", l.path, err)
	}

	l.mu.RLock()
	loaded := l.modTime
	l.mu.RUnlock()
	if info.ModTime().Equal(loaded) {
		return false, nil
	}

	if err := l.Reload(); err != nil {
		return false, err
	}
	return true, nil
}

// CountryCode returns the upper-case ISO code for ip, or "" when unknown.
func (l *CountryLookup) CountryCode(ip string) string {
	if l == nil {
		return ""
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.reader == nil {
		return ""
	}

	record, err := l.reader.Country(parsed)
	if err != nil {
		return ""
	}
	return strings.ToUpper(record.Country.IsoCode)
}

func (l *CountryLookup) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}
