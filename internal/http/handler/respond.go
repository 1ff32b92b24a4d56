package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"anonuplift/internal/apperr"
	"anonuplift/internal/logging"
)

const maxBodyBytes = 16 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	ResetTime *int64 `json:"resetTime,omitempty"`
}

// Errors renders failures as the JSON error envelope. Causes are logged,
// never written.
type Errors struct {
	Log logging.Logger
}

func (e Errors) Write(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	status := apperr.HTTPStatus(ae.Code)

	if status >= 500 {
		e.Log.Error(r.Context(), "request failed", "reason", ae.Reason, "err", err)
	} else if ae.Cause != nil {
		e.Log.Warn(r.Context(), "request rejected", "reason", ae.Reason, "err", ae.Cause)
	}

	body := errorBody{Error: ae.Message, Reason: ae.Reason}
	if ae.Code == apperr.CodeRateLimited && !ae.ResetAt.IsZero() {
		ms := ae.ResetAt.UnixMilli()
		body.ResetTime = &ms
		secs := int(time.Until(ae.ResetAt).Seconds() + 0.999)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, status, body)
}

// Throttled answers requests rejected by the request throttle.
func (e Errors) Throttled(w http.ResponseWriter, r *http.Request) {
	e.Write(w, r, apperr.New(apperr.CodeRateLimited, "throttled", "Too many requests. Please slow down."))
}

var errBadJSON = apperr.Validation("invalid_input", "Invalid request body")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadJSON
		}
		return errBadJSON.WithCause(err)
	}
	return nil
}
