package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"anonuplift/internal/apperr"
	"anonuplift/internal/auth"
	mw "anonuplift/internal/http/middleware"
	"anonuplift/internal/message"

	"github.com/go-chi/chi/v5"
)

type MessageService interface {
	Submit(ctx context.Context, in message.SubmitInput) (string, error)
	Inbox(ctx context.Context, ownerID string, f message.InboxFilter) ([]message.Message, error)
	Get(ctx context.Context, ownerID, id string) (*message.Message, error)
	Update(ctx context.Context, ownerID string, in message.UpdateInput) error
	Stats(ctx context.Context, ownerID string) (message.Stats, error)
}

type MessageHandler struct {
	Svc    MessageService
	Errors Errors
}

// messageDTO is the client view of a message; sender digests stay server side.
type messageDTO struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	Category    message.Category `json:"category"`
	Content     string           `json:"content"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Deleted     bool             `json:"deleted"`
	Reported    bool             `json:"reported"`
}

func toMessageDTO(m *message.Message) messageDTO {
	return messageDTO{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Category:    m.Category,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Deleted:     m.Deleted,
		Reported:    m.Reported,
	}
}

type submitReq struct {
	Category       message.Category `json:"category"`
	Body           string           `json:"body"`
	TurnstileToken string           `json:"turnstileToken"`
}

func (h *MessageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := decodeJSON(w, r, &req); err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	id, err := h.Svc.Submit(r.Context(), message.SubmitInput{
		Username:     chi.URLParam(r, "username"),
		Category:     req.Category,
		Body:         req.Body,
		CaptchaToken: strings.TrimSpace(req.TurnstileToken),
		ClientIP:     mw.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": id})
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.OwnerIDFromContext(r.Context())

	f, err := parseInboxFilter(r)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	rows, err := h.Svc.Inbox(r.Context(), uid, f)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	out := make([]messageDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toMessageDTO(&rows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": out, "count": len(out)})
}

func parseInboxFilter(r *http.Request) (message.InboxFilter, error) {
	var f message.InboxFilter
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				f.Categories = append(f.Categories, message.Category(c))
			}
		}
	}
	if raw := strings.TrimSpace(q.Get("reported")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, apperr.Validation("invalid_input", "reported must be true or false")
		}
		f.Reported = &v
	}
	return f, nil
}

func (h *MessageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.OwnerIDFromContext(r.Context())

	st, err := h.Svc.Stats(r.Context(), uid)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}

type updateReq struct {
	MessageID string `json:"messageId"`
	Deleted   *bool  `json:"deleted"`
	Reported  *bool  `json:"reported"`
}

func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.OwnerIDFromContext(r.Context())

	var req updateReq
	if err := decodeJSON(w, r, &req); err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	err := h.Svc.Update(r.Context(), uid, message.UpdateInput{
		ID:       strings.TrimSpace(req.MessageID),
		Deleted:  req.Deleted,
		Reported: req.Reported,
	})
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *MessageHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.OwnerIDFromContext(r.Context())

	m, err := h.Svc.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": toMessageDTO(m)})
}
