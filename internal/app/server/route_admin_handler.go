package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"townsquare/internal/auth"
	"townsquare/internal/config"
	"townsquare/internal/database"
	"townsquare/internal/domain"
	"townsquare/internal/jobs/maintenance"
)

var identityHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// maxManualBanHours is ten years.
const maxManualBanHours = 10 * 365 * 24

type manualBanRequest struct {
	IPHash          string  `json:"ip_hash"`
	FingerprintHash *string `json:"fingerprint_hash"`
	Reason          string  `json:"reason"`
	Hours           int     `json:"hours"`
}

func (a *api) getGuestPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := a.store.GetGuestPostPolicy(r.Context())
	if err != nil {
		writeGuardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policy.WithDefaults())
}

func (a *api) saveGuestPolicy(w http.ResponseWriter, r *http.Request) {
	var policy domain.GuestPostPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	saved, err := a.store.SaveGuestPostPolicy(r.Context(), policy)
	if err != nil {
		if errors.Is(err, database.ErrInvalidPolicy) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeGuardError(w, r, err)
		return
	}

	log.Info("Guest post policy updated", "version", saved.Version, "by", auth.SubjectFromRequest(r))
	writeJSON(w, http.StatusOK, saved)
}

func getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func getDefaultSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.Defaults())
}

func saveSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := newConfig.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := config.SetConfig(newConfig); err != nil {
		log.Error("Failed to save settings", "error", err)
		writeError(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, config.GetConfig())
}

func (a *api) listGuestBans(w http.ResponseWriter, r *http.Request) {
	ipHash := strings.ToLower(r.PathValue("ipHash"))
	if !identityHashPattern.MatchString(ipHash) {
		writeError(w, "ipHash must be a 64 character hex digest", http.StatusBadRequest)
		return
	}

	bans, err := a.store.ListBansByIPHash(r.Context(), ipHash)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}
	if bans == nil {
		bans = []domain.GuestBan{}
	}
	writeJSON(w, http.StatusOK, bans)
}

func (a *api) createGuestBan(w http.ResponseWriter, r *http.Request) {
	var req manualBanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	req.IPHash = strings.ToLower(strings.TrimSpace(req.IPHash))
	if !identityHashPattern.MatchString(req.IPHash) {
		writeError(w, "ip_hash must be a 64 character hex digest", http.StatusBadRequest)
		return
	}
	if req.FingerprintHash != nil {
		fp := strings.ToLower(strings.TrimSpace(*req.FingerprintHash))
		if fp == "" {
			req.FingerprintHash = nil
		} else if !identityHashPattern.MatchString(fp) {
			writeError(w, "fingerprint_hash must be a 64 character hex digest", http.StatusBadRequest)
			return
		} else {
			req.FingerprintHash = &fp
		}
	}
	if req.Hours <= 0 || req.Hours > maxManualBanHours {
		writeError(w, fmt.Sprintf("hours must be between 1 and %d", maxManualBanHours), http.StatusBadRequest)
		return
	}

	ban := &domain.GuestBan{
		IPHash:          req.IPHash,
		FingerprintHash: req.FingerprintHash,
		Reason:          strings.TrimSpace(req.Reason),
		ExpiresAt:       time.Now().Add(time.Duration(req.Hours) * time.Hour),
	}
	if err := a.store.CreateManualBan(r.Context(), ban); err != nil {
		writeGuardError(w, r, err)
		return
	}

	log.Info("Manual guest ban issued", "ban_id", ban.ID, "hours", req.Hours, "by", auth.SubjectFromRequest(r))
	writeJSON(w, http.StatusCreated, ban)
}

// runGuestAuthorBackfill runs one backfill pass now instead of waiting for
// the next maintenance tick.
func (a *api) runGuestAuthorBackfill(w http.ResponseWriter, r *http.Request) {
	batchSize := config.GetConfig().Maintenance.BackfillBatchSize
	res, err := maintenance.RunGuestAuthorBackfillExclusive(r.Context(), a.redis, a.store, batchSize)
	if errors.Is(err, maintenance.ErrBackfillRunning) {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	log.Info("Manual guest author backfill finished", "posts", res.Posts, "comments", res.Comments, "by", auth.SubjectFromRequest(r))
	writeJSON(w, http.StatusOK, map[string]int{"posts": res.Posts, "comments": res.Comments})
}
