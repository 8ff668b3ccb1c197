package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"gwi.com/nova-chat/internal/core"
	"gwi.com/nova-chat/internal/store"
)

const maxBodyBytes = 1 << 20

type contextKey string

const (
	contextUserKey  contextKey = "user"
	contextTokenKey contextKey = "token"
)

func userFromContext(ctx context.Context) string {
	user, _ := ctx.Value(contextUserKey).(string)
	return user
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(contextTokenKey).(string)
	return token
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads a JSON request body into dst, answering 400 itself when
// the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps service and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *store.ValidationError
		rerr *core.RemoteError
	)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		resp := ErrorResponse{Error: err.Error()}
		if errors.As(err, &verr) {
			resp = ErrorResponse{Error: verr.Message, Field: verr.Field}
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, core.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, core.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrSpeechUnavailable):
		writeError(w, http.StatusServiceUnavailable, "speech service is not configured")
	case errors.As(err, &rerr):
		hlog.FromRequest(r).Warn().Err(err).Msg("Remote service failed")
		writeError(w, http.StatusBadGateway, rerr.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
