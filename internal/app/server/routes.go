package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"townsquare/internal/app/version"
	"townsquare/internal/auth"
	"townsquare/internal/database"
	"townsquare/internal/guard"
	"townsquare/internal/metrics"
	"townsquare/internal/security"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services the HTTP host hands to its handlers.
type Deps struct {
	Guard     *guard.Guard
	Store     *database.GuestStore
	Passwords *security.PasswordHasher
	Gatherer  prometheus.Gatherer
	// Redis serializes admin-triggered maintenance with the scheduled jobs.
	// Nil on single-instance deployments.
	Redis *redis.Client
}

type api struct {
	guard     *guard.Guard
	store     *database.GuestStore
	passwords *security.PasswordHasher
	redis     *redis.Client
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader+", "+fingerprintHeader())
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader+", Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the full handler tree.
func NewRouter(deps Deps) http.Handler {
	a := &api{
		guard:     deps.Guard,
		store:     deps.Store,
		passwords: deps.Passwords,
		redis:     deps.Redis,
	}
	if a.passwords == nil {
		a.passwords = security.NewPasswordHasher()
	}

	router := http.NewServeMux()
	router.HandleFunc("GET /healthz", a.healthz)
	if deps.Gatherer != nil {
		router.Handle("GET /metrics", metrics.Handler(deps.Gatherer))
	}

	router.HandleFunc("POST /guest/posts", a.createGuestPost)
	router.HandleFunc("PATCH /guest/posts/{id}", a.updateGuestPost)
	router.HandleFunc("DELETE /guest/posts/{id}", a.deleteGuestPost)
	router.HandleFunc("POST /guest/posts/{id}/comments", a.createGuestComment)
	router.HandleFunc("PATCH /guest/comments/{id}", a.updateGuestComment)
	router.HandleFunc("DELETE /guest/comments/{id}", a.deleteGuestComment)

	router.Handle("GET /admin/guest-policy", auth.IsAdmin(http.HandlerFunc(a.getGuestPolicy)))
	router.Handle("PUT /admin/guest-policy", auth.IsAdmin(http.HandlerFunc(a.saveGuestPolicy)))
	router.Handle("GET /admin/settings", auth.IsAdmin(http.HandlerFunc(getSettings)))
	router.Handle("POST /admin/settings", auth.IsAdmin(http.HandlerFunc(saveSettings)))
	router.Handle("GET /admin/settings/defaults", auth.IsAdmin(http.HandlerFunc(getDefaultSettings)))
	router.Handle("POST /admin/guest-authors/backfill", auth.IsAdmin(http.HandlerFunc(a.runGuestAuthorBackfill)))
	router.Handle("GET /admin/guest-bans/{ipHash}", auth.IsAdmin(http.HandlerFunc(a.listGuestBans)))
	router.Handle("POST /admin/guest-bans", auth.IsAdmin(http.HandlerFunc(a.createGuestBan)))

	return requestID(enableCORS(router))
}

// OpenRoutes serves handler on port until ctx is cancelled.
func OpenRoutes(ctx context.Context, port int, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("api server shutdown", "error", err)
		}
	}()

	log.Info("Starting townsquare backend", "port", port, "version", version.Get().Version)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !a.guard.ModerationReady() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"moderation_ready": a.guard.ModerationReady(),
		"failure_mode":     a.guard.FailureMode(),
		"build":            version.Get(),
	})
}
