package handler

import (
	"context"
	"net/http"
	"strings"

	"anonuplift/internal/auth"
	"anonuplift/internal/owner"

	"github.com/go-chi/chi/v5"
)

type UsernameStore interface {
	IsAvailable(ctx context.Context, username string) (bool, error)
	Reserve(ctx context.Context, username, ownerID string) error
}

type Resolver interface {
	Resolve(ctx context.Context, username string) (string, error)
}

type UsernameHandler struct {
	Store    UsernameStore
	Resolver Resolver
	Rules    owner.UsernameRules
	Errors   Errors
}

func (h *UsernameHandler) Check(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if err := h.Rules.Validate(username); err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	ok, err := h.Store.IsAvailable(r.Context(), username)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "available": ok, "username": username})
}

type reserveReq struct {
	Username string `json:"username"`
}

func (h *UsernameHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.OwnerIDFromContext(r.Context())

	var req reserveReq
	if err := decodeJSON(w, r, &req); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if err := h.Rules.Validate(username); err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	if err := h.Store.Reserve(r.Context(), username, uid); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": username})
}

// Lookup serves the public profile of a username.
func (h *UsernameHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	uid, err := h.Resolver.Resolve(r.Context(), username)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]string{"username": username, "uid": uid},
	})
}
