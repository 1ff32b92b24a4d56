package handler

import (
	"context"
	"net/http"
	"strings"

	"anonuplift/internal/apperr"
	"anonuplift/internal/auth"
	"anonuplift/internal/owner"
)

type OwnerEnsurer interface {
	EnsureOwner(ctx context.Context, id owner.Identity) (*owner.Owner, error)
}

type AuthHandler struct {
	// Verifier is nil when no identity provider is configured.
	Verifier auth.IDTokenVerifier
	Owners   OwnerEnsurer
	JWT      *auth.JWT
	Issuer   string
	Errors   Errors
}

type signinReq struct {
	IDToken string `json:"idToken"`
}

var errSigninUnavailable = apperr.New(apperr.CodeDisabled, "signin_unavailable", "Sign-in is not configured")

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	if h.Verifier == nil {
		h.Errors.Write(w, r, errSigninUnavailable)
		return
	}

	var req signinReq
	if err := decodeJSON(w, r, &req); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	req.IDToken = strings.TrimSpace(req.IDToken)
	if req.IDToken == "" {
		h.Errors.Write(w, r, apperr.Validation("invalid_input", "idToken is required"))
		return
	}

	id, err := h.Verifier.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		h.Errors.Write(w, r, apperr.Unauthorized("Invalid identity token").WithCause(err))
		return
	}

	o, err := h.Owners.EnsureOwner(r.Context(), owner.Identity{
		OwnerID:    id.Subject,
		Email:      id.Email,
		ProviderID: h.Issuer,
	})
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	token, err := h.JWT.Sign(o.ID, id.Email)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"owner":   toOwnerDTO(o),
	})
}
