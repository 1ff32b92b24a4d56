package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RepairEnqueuer interface {
	EnqueueRepair(ctx context.Context, username string) (uint64, error)
	EnqueueBackfill(ctx context.Context) (uint64, error)
}

type AdminHandler struct {
	Jobs   RepairEnqueuer
	Errors Errors
}

func (h *AdminHandler) RepairUsername(w http.ResponseWriter, r *http.Request) {
	id, err := h.Jobs.EnqueueRepair(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "jobId": id})
}

func (h *AdminHandler) RepairOwners(w http.ResponseWriter, r *http.Request) {
	id, err := h.Jobs.EnqueueBackfill(r.Context())
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "jobId": id})
}
