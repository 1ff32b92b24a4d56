package handler

import (
	"context"
	"net/http"

	"anonuplift/internal/auth"
	"anonuplift/internal/owner"
)

type OwnerGetter interface {
	GetOwner(ctx context.Context, id string) (*owner.Owner, error)
}

type MeHandler struct {
	Owners OwnerGetter
	Errors Errors
}

type ownerDTO struct {
	UID      string  `json:"uid"`
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

func toOwnerDTO(o *owner.Owner) ownerDTO {
	return ownerDTO{UID: o.ID, Email: o.Email, Username: o.Username}
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.OwnerIDFromContext(r.Context())

	o, err := h.Owners.GetOwner(r.Context(), uid)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "owner": toOwnerDTO(o)})
}
