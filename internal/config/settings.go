package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type Config struct {
	Guest       GuestConfig       `json:"guest"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	GeoLite     GeoLiteConfig     `json:"geolite"`
}

type GuestConfig struct {
	// StoreFailureMode is "closed" or "open"; see guard.FailureMode.
	StoreFailureMode  string     `json:"store_failure_mode"`
	EditLimits        EditLimits `json:"edit_limits"`
	FingerprintHeader string     `json:"fingerprint_header"`
	TrustForwardedFor bool       `json:"trust_forwarded_for"`
}

// EditLimits bound guest updates and deletes per identity. 0 disables a window.
type EditLimits struct {
	Limit10m int `json:"limit_10m"`
	Limit1h  int `json:"limit_1h"`
}

type MaintenanceConfig struct {
	BanPurgeTimer     Timer `json:"ban_purge_timer"`
	BanRetentionDays  int   `json:"ban_retention_days"`
	BackfillEnabled   bool  `json:"backfill_enabled"`
	BackfillTimer     Timer `json:"backfill_timer"`
	BackfillBatchSize int   `json:"backfill_batch_size"`
}

type GeoLiteConfig struct {
	Enabled      bool   `json:"enabled"`
	DatabasePath string `json:"database_path"`
	ReloadTimer  Timer  `json:"reload_timer"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const DefaultFingerprintHeader = "X-Client-Fingerprint"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	settingsFilePath = filepath.Join("data", "settings.json")

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	configValue.Store(cfg)
	refreshIntervals(cfg)
}

// Defaults returns the embedded default configuration.
func Defaults() Config {
	var cfg Config
	_ = json.Unmarshal(defaultConfig, &cfg)
	return cfg
}

// SetSettingsPath moves the settings file; call before ReadSettings.
func SetSettingsPath(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	if strings.TrimSpace(path) != "" {
		settingsFilePath = path
	}
}

// ReadSettings loads the settings file, creating it from the embedded
// defaults when missing.
func ReadSettings() error {
	configMu.Lock()
	path := settingsFilePath
	configMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("config: read settings: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("config: create settings dir: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return fmt.Errorf("config: write default settings: %w", err)
		}
		data = defaultConfig
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		return fmt.Errorf("config: parse settings: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("config: invalid settings file: %w", err)
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		return err
	}

	log.Debug("Settings file loaded successfully")
	return nil
}

// SetConfig validates, applies, persists and broadcasts newConfig.
func SetConfig(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}
	return applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"})
}

func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(strings.TrimSpace(c.Guest.StoreFailureMode)) {
	case "", "closed", "open":
	default:
		errs = append(errs, fmt.Errorf("guest.store_failure_mode must be \"closed\" or \"open\", got %q", c.Guest.StoreFailureMode))
	}
	if c.Guest.EditLimits.Limit10m < 0 || c.Guest.EditLimits.Limit1h < 0 {
		errs = append(errs, errors.New("guest.edit_limits must not be negative"))
	}
	if c.Maintenance.BanRetentionDays < 0 {
		errs = append(errs, errors.New("maintenance.ban_retention_days must not be negative"))
	}
	if c.Maintenance.BackfillBatchSize < 0 {
		errs = append(errs, errors.New("maintenance.backfill_batch_size must not be negative"))
	}

	return errors.Join(errs...)
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	refreshIntervals(newConfig)

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal settings: %w", err))
		} else if err := os.WriteFile(settingsFilePath, data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write settings: %w", err))
		}
	}

	if opts.broadcast {
		if err := broadcastConfigUpdate(newConfig); err != nil {
			errs = append(errs, fmt.Errorf("broadcast settings: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.Error("Configuration applied with errors", "source", opts.source, "error", err)
		return err
	}
	log.Debug("Configuration applied", "source", opts.source)
	return nil
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// FingerprintHeaderName is the request header carrying the client fingerprint.
func (c GuestConfig) FingerprintHeaderName() string {
	if h := strings.TrimSpace(c.FingerprintHeader); h != "" {
		return h
	}
	return DefaultFingerprintHeader
}
