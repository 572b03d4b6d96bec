package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"townsquare/internal/domain"
	"townsquare/internal/guard"
)

type guestCommentRequest struct {
	Body        string `json:"body"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type guestCommentUpdateRequest struct {
	Body     string `json:"body"`
	Password string `json:"password"`
}

func (a *api) createGuestComment(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req guestCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if msg := validateGuestWrite(req.Body, req.Password, req.DisplayName); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	policy, err := a.guard.LoadPolicy(ctx)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	comment := &domain.Comment{PostID: postID, Body: req.Body}
	write := guard.WriteRequest{
		Action:   guard.ActionCommentCreate,
		Identity: guestIdentity(r),
		Windows:  guard.PostCreationWindows(policy),
		Policy:   &policy,
	}
	err = a.guard.Run(ctx, write, func(ctx context.Context, set guard.IdentityHashSet) error {
		if err := guard.Screen(policy, guard.Draft{Body: comment.Body}); err != nil {
			return err
		}
		author, err := a.newGuestAuthor(req.Password, req.DisplayName, set)
		if err != nil {
			return err
		}
		return a.store.CreateGuestComment(ctx, comment, author)
	})
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, comment)
}

func (a *api) updateGuestComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req guestCommentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		writeError(w, "Body is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	comment, err := a.store.GetComment(ctx, id)
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
	write := guard.WriteRequest{
		Action:   guard.ActionCommentUpdate,
		Identity: identity,
		Windows:  editWindows(),
		Policy:   &policy,
	}
	err = a.guard.Run(ctx, write, func(ctx context.Context, _ guard.IdentityHashSet) error {
		if err := a.guard.AuthorizeOwnership(ctx, comment, req.Password, identity); err != nil {
			return err
		}
		if err := guard.Screen(policy, guard.Draft{Body: req.Body}); err != nil {
			return err
		}
		return a.store.UpdateCommentBody(ctx, id, req.Body)
	})
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	comment.Body = req.Body
	writeJSON(w, http.StatusOK, comment)
}

func (a *api) deleteGuestComment(w http.ResponseWriter, r *http.Request) {
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
	comment, err := a.store.GetComment(ctx, id)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	identity := guestIdentity(r)
	write := guard.WriteRequest{
		Action:   guard.ActionCommentDelete,
		Identity: identity,
		Windows:  editWindows(),
	}
	err = a.guard.Run(ctx, write, func(ctx context.Context, _ guard.IdentityHashSet) error {
		if err := a.guard.AuthorizeOwnership(ctx, comment, req.Password, identity); err != nil {
			return err
		}
		return a.store.DeleteComment(ctx, id)
	})
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
