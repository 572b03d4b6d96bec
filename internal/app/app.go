package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"townsquare/internal/app/server"
	"townsquare/internal/auth"
	"townsquare/internal/config"
	"townsquare/internal/database"
	"townsquare/internal/geolite"
	"townsquare/internal/guard"
	"townsquare/internal/jobs/maintenance"
	"townsquare/internal/metrics"
	"townsquare/internal/ratelimit"
	"townsquare/internal/security"
	"townsquare/internal/support"
)

const (
	defaultBackendPort = 8082
	adminTokenTTL      = 12 * time.Hour
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}
	configureLogLevel(support.GetEnv("LOG_LEVEL", "info"))

	backendPortFlag := flag.Int("backend-port", defaultBackendPort, "Port for API server")
	settingsFlag := flag.String("settings", "", "Path to the runtime settings file")
	issueTokenFlag := flag.String("issue-admin-token", "", "Print an admin token for the given subject and exit")
	flag.Parse()

	if err := auth.LoadSecret(); err != nil {
		return fmt.Errorf("admin auth: %w", err)
	}
	if *issueTokenFlag != "" {
		token, err := auth.GenerateJWT(*issueTokenFlag, auth.RoleAdmin, adminTokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	backendPort := resolvePort("BACKEND_PORT", "PORT", *backendPortFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.SetSettingsPath(*settingsFlag)
	if err := config.ReadSettings(); err != nil {
		return err
	}

	redisClient, err := connectRedis()
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
		if err := config.EnableRedisSynchronization(ctx, redisClient); err != nil {
			log.Warn("Settings synchronization over redis unavailable", "error", err)
		}
		defer config.DisableRedisSynchronization()
	}

	db, err := database.SetupDB()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	store := database.NewGuestStore(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	countries := openCountryLookup()
	if countries != nil {
		defer func() { _ = countries.Close() }()
		go maintenance.StartGeoLiteReloadRoutine(ctx, countries)
	}

	g, passwords := buildGuard(store, redisClient, countries, registry, database.GuestModerationTablesReady(db))

	go maintenance.StartBanPurgeRoutine(ctx, redisClient, store)
	go maintenance.StartGuestAuthorBackfillRoutine(ctx, redisClient, store)

	handler := server.NewRouter(server.Deps{
		Guard:     g,
		Store:     store,
		Passwords: passwords,
		Gatherer:  registry,
		Redis:     redisClient,
	})
	return server.OpenRoutes(ctx, backendPort, handler)
}

func buildGuard(store *database.GuestStore, redisClient *redis.Client, countries *geolite.CountryLookup, reg prometheus.Registerer, moderationReady bool) (*guard.Guard, *security.PasswordHasher) {
	hasher := security.LoadIdentityHasher()
	if !hasher.Peppered() {
		log.Warn("GUEST_IDENTITY_PEPPER is not set; identity hashes fall back to plain SHA-256")
	}

	var limiter ratelimit.Limiter = ratelimit.NewInMemory()
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient)
	}

	passwords := security.NewPasswordHasher()
	opts := []guard.Option{
		guard.WithLedger(store),
		guard.WithAuthorStore(store),
		guard.WithPolicyStore(store),
		guard.WithLimiter(limiter),
		guard.WithPasswordVerifier(passwords),
		guard.WithMetrics(metrics.NewGuardMetrics(reg)),
		guard.WithFailureModeSource(func() guard.FailureMode {
			return guard.ParseFailureMode(config.GetConfig().Guest.StoreFailureMode)
		}),
		guard.WithModerationTables(moderationReady),
	}
	if countries != nil {
		opts = append(opts, guard.WithCountryResolver(countries))
	}
	return guard.New(hasher, opts...), passwords
}

// connectRedis returns nil when REDIS_DISABLED is set; counters then live in
// process memory and maintenance jobs run without leader election.
func connectRedis() (*redis.Client, error) {
	if support.GetEnvBool("REDIS_DISABLED", false) {
		log.Warn("Redis disabled; rate limits are per process and settings are not synchronized")
		return nil, nil
	}
	client, err := support.GetRedisClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get redis client: %w", err)
	}
	return client, nil
}

func openCountryLookup() *geolite.CountryLookup {
	cfg := config.GetConfig().GeoLite
	if !cfg.Enabled {
		return nil
	}
	lookup, err := geolite.Open(cfg.DatabasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("GeoLite database missing; violations will not be country tagged", "path", cfg.DatabasePath)
		} else {
			log.Error("GeoLite database could not be opened", "path", cfg.DatabasePath, "error", err)
		}
		return nil
	}
	return lookup
}

func configureLogLevel(raw string) {
	level, err := log.ParseLevel(raw)
	if err != nil {
		log.Warn("invalid LOG_LEVEL, using info", "value", raw)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
