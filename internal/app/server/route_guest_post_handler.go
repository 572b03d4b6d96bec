package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"townsquare/internal/config"
	"townsquare/internal/domain"
	"townsquare/internal/guard"
)

const (
	minGuestPasswordLength = 4
	maxDisplayNameLength   = 40
	maxTitleLength         = 200
)

type guestPostRequest struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	ContentType string   `json:"content_type"`
	ScopeKind   string   `json:"scope_kind"`
	ScopeID     uint64   `json:"scope_id"`
	Images      []string `json:"images"`
	DisplayName string   `json:"display_name"`
	Password    string   `json:"password"`
}

type guestPostUpdateRequest struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Images   []string `json:"images"`
	Password string   `json:"password"`
}

type guestPasswordRequest struct {
	Password string `json:"password"`
}

func (a *api) createGuestPost(w http.ResponseWriter, r *http.Request) {
	var req guestPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if msg := validateGuestWrite(req.Body, req.Password, req.DisplayName); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}
	if req.Title == "" || utf8.RuneCountInString(req.Title) > maxTitleLength {
		writeError(w, "Title must be between 1 and 200 characters", http.StatusBadRequest)
		return
	}
	if req.ScopeKind == "" {
		req.ScopeKind = domain.ScopeNeighborhood
	}

	ctx := r.Context()
	policy, err := a.guard.LoadPolicy(ctx)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	images := imageList(req.Images)
	post := &domain.Post{
		Title:       req.Title,
		Body:        req.Body,
		ContentType: strings.ToLower(strings.TrimSpace(req.ContentType)),
		ScopeKind:   req.ScopeKind,
		ScopeID:     req.ScopeID,
		Images:      images,
	}

	write := guard.WriteRequest{
		Action:   guard.ActionPostCreate,
		Identity: guestIdentity(r),
		Windows:  guard.PostCreationWindows(policy),
		Related: []guard.ActionWindows{
			{Action: guard.ActionImageUpload, Windows: guard.UploadWindows(policy, len(images))},
		},
		Policy: &policy,
	}
	err = a.guard.Run(ctx, write, func(ctx context.Context, set guard.IdentityHashSet) error {
		if err := guard.Screen(policy, guard.Draft{
			Title:       post.Title,
			Body:        post.Body,
			ContentType: post.ContentType,
			ScopeKind:   post.ScopeKind,
			ImageCount:  len(images),
		}); err != nil {
			return err
		}

		author, err := a.newGuestAuthor(req.Password, req.DisplayName, set)
		if err != nil {
			return err
		}
		return a.store.CreateGuestPost(ctx, post, author)
	})
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

func (a *api) updateGuestPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req guestPostUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" || req.Body == "" {
		writeError(w, "Title and body are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	post, err := a.store.GetPost(ctx, id)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}
	policy, err := a.guard.LoadPolicy(ctx)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	identity := guestIdentity(r)
	images := imageList(req.Images)
	write := guard.WriteRequest{
		Action:   guard.ActionPostUpdate,
		Identity: identity,
		Windows:  editWindows(),
		Policy:   &policy,
	}
	err = a.guard.Run(ctx, write, func(ctx context.Context, _ guard.IdentityHashSet) error {
		if err := a.guard.AuthorizeOwnership(ctx, post, req.Password, identity); err != nil {
			return err
		}
		if err := guard.Screen(policy, guard.Draft{
			Title:       req.Title,
			Body:        req.Body,
			ContentType: post.ContentType,
			ScopeKind:   post.ScopeKind,
			ImageCount:  len(images),
		}); err != nil {
			return err
		}
		return a.store.UpdatePostContent(ctx, id, req.Title, req.Body, images)
	})
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	updated, err := a.store.GetPost(ctx, id)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *api) deleteGuestPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req guestPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	post, err := a.store.GetPost(ctx, id)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	identity := guestIdentity(r)
	write := guard.WriteRequest{
		Action:   guard.ActionPostDelete,
		Identity: identity,
		Windows:  editWindows(),
	}
	err = a.guard.Run(ctx, write, func(ctx context.Context, _ guard.IdentityHashSet) error {
		if err := a.guard.AuthorizeOwnership(ctx, post, req.Password, identity); err != nil {
			return err
		}
		return a.store.DeletePost(ctx, id)
	})
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// newGuestAuthor hashes the password and binds the credential to the
// canonical identity hashes of the writer.
func (a *api) newGuestAuthor(password, displayName string, set guard.IdentityHashSet) (*domain.GuestAuthor, error) {
	hash, err := a.passwords.Hash(password)
	if err != nil {
		return nil, err
	}
	return &domain.GuestAuthor{
		PasswordHash:    hash,
		IPHash:          set.IPHash,
		FingerprintHash: set.FingerprintHash,
		DisplayName:     strings.TrimSpace(displayName),
	}, nil
}

func validateGuestWrite(body, password, displayName string) string {
	switch {
	case body == "":
		return "Body is required"
	case len(password) < minGuestPasswordLength:
		return "Password must be at least 4 characters long"
	case utf8.RuneCountInString(strings.TrimSpace(displayName)) > maxDisplayNameLength:
		return "Display name must be at most 40 characters"
	}
	return ""
}

func editWindows() []guard.Window {
	limits := config.GetConfig().Guest.EditLimits
	return guard.EditWindows(guard.EditLimits{Limit10m: limits.Limit10m, Limit1h: limits.Limit1h})
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// imageList trims entries and drops blanks; urls keep their case.
func imageList(raw []string) domain.StringList {
	var out domain.StringList
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
