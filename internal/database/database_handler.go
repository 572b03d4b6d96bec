package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"townsquare/internal/domain"
	"townsquare/internal/support"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB *gorm.DB
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("database: record not found")

type Config struct {
	ExistingDB   *gorm.DB
	Dialector    gorm.Dialector
	Logger       logger.Interface
	AutoMigrate  bool
	Migrations   []any
	SeedDefaults bool
}

type Option func(*Config)

func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.ExistingDB != nil:
		DB = cfg.ExistingDB
	case cfg.Dialector != nil:
		gormCfg := &gorm.Config{}
		if cfg.Logger != nil {
			gormCfg.Logger = cfg.Logger
		}
		db, err := gorm.Open(cfg.Dialector, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		DB = db
		configureConnectionPool(db)
	default:
		return nil, fmt.Errorf("database: no dialector or existing connection provided")
	}

	if DB == nil {
		return nil, fmt.Errorf("database: connection was not configured")
	}

	if cfg.AutoMigrate && len(cfg.Migrations) > 0 {
		if err := DB.AutoMigrate(cfg.Migrations...); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Info("Database migration completed.")
	}

	if cfg.SeedDefaults {
		if err := seedDefaults(DB); err != nil {
			return nil, fmt.Errorf("database: seed defaults: %w", err)
		}
	}

	return DB, nil
}

func defaultConfig() Config {
	return Config{
		Dialector:    dialectorFromEnv(),
		Logger:       silentLogger(),
		AutoMigrate:  true,
		Migrations:   defaultMigrations(),
		SeedDefaults: true,
	}
}

// dialectorFromEnv picks postgres unless DB_DRIVER=sqlite.
func dialectorFromEnv() gorm.Dialector {
	if strings.EqualFold(support.GetEnv("DB_DRIVER", "postgres"), "sqlite") {
		return sqlite.Open(support.GetEnv("DB_SQLITE_PATH", "data/townsquare.db"))
	}
	return postgres.Open(buildDSN())
}

func buildDSN() string {
	dbHost := support.GetEnv("DB_HOST", "localhost")
	dbPort := support.GetEnv("DB_PORT", "5432")
	dbName := support.GetEnv("DB_NAME", "townsquare")
	dbUser := support.GetEnv("DB_USERNAME", "townsquare")
	dbPassword := support.GetEnv("DB_PASSWORD", "townsquare")
	sslMode := support.GetEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbHost,
		dbPort,
		dbUser,
		dbPassword,
		dbName,
		sslMode,
	)
}

func silentLogger() logger.Interface {
	return logger.New(
		log.Default(),
		logger.Config{LogLevel: logger.Silent},
	)
}

func defaultMigrations() []any {
	return []any{
		domain.GuestAuthor{},
		domain.Post{},
		domain.Comment{},
		domain.GuestViolation{},
		domain.GuestBan{},
		domain.Setting{},
	}
}

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) {
		cfg.ExistingDB = db
	}
}

func WithDialector(d gorm.Dialector) Option {
	return func(cfg *Config) {
		cfg.Dialector = d
	}
}

func WithLogger(l logger.Interface) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithAutoMigrate(enabled bool) Option {
	return func(cfg *Config) {
		cfg.AutoMigrate = enabled
	}
}

func WithMigrations(models ...any) Option {
	return func(cfg *Config) {
		if len(models) == 0 {
			cfg.Migrations = nil
			return
		}
		cfg.Migrations = append([]any(nil), models...)
	}
}

func WithSeedDefaults(enabled bool) Option {
	return func(cfg *Config) {
		cfg.SeedDefaults = enabled
	}
}

func configureConnectionPool(db *gorm.DB) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Error("database: get sql.DB", "error", err)
		return
	}

	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 32)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if d := support.GetEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); d > 0 {
		sqlDB.SetConnMaxLifetime(d)
	}
	if d := support.GetEnvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute); d > 0 {
		sqlDB.SetConnMaxIdleTime(d)
	}
}

// seedDefaults writes the default guest policy when no admin has saved one.
func seedDefaults(db *gorm.DB) error {
	if !db.Migrator().HasTable(&domain.Setting{}) {
		return nil
	}

	var count int64
	if err := db.Model(&domain.Setting{}).Where("key = ?", domain.GuestPolicySettingKey).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	value, err := encodePolicy(domain.DefaultGuestPostPolicy())
	if err != nil {
		return err
	}
	return db.Create(&domain.Setting{Key: domain.GuestPolicySettingKey, Value: value}).Error
}

// GuestModerationTablesReady reports whether the violation and ban tables
// exist. It is checked once at boot.
func GuestModerationTablesReady(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	m := db.Migrator()
	return m.HasTable(&domain.GuestViolation{}) && m.HasTable(&domain.GuestBan{})
}

func isPostgresDialect(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	name := strings.ToLower(db.Dialector.Name())
	return name == "postgres" || name == "postgresql"
}
