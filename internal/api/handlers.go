package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"gwi.com/nova-chat/internal/core"
)

const maxAudioBytes = 25 << 20

type APIHandler struct {
	accounts *core.AccountService
	chat     *core.ChatService
}

func NewAPIHandler(accounts *core.AccountService, chat *core.ChatService) *APIHandler {
	return &APIHandler{accounts: accounts, chat: chat}
}

// SessionAuthMiddleware resolves the bearer token to a user and slides the
// session's expiry.
func (h *APIHandler) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}

		user, err := h.accounts.Authenticate(r.Context(), token)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextUserKey, user)
		ctx = context.WithValue(ctx, contextTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req core.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.accounts.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), tokenFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAccount(r.Context(), userFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chat.Conversations(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chat.CreateConversation(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chat.Conversation(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "conversationID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type RenameRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) RenameConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, err := h.chat.RenameConversation(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "conversationID"), req.Title)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.DeleteConversation(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "conversationID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostMessageRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// PostMessageHandler serves both /messages (conversation chosen by the body,
// created when absent) and /conversations/{id}/messages.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		conversationID = req.ConversationID
	}

	exch, err := h.chat.HandleUserMessage(r.Context(), userFromContext(r.Context()), conversationID, req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exch)
}

func (h *APIHandler) RegenerateHandler(w http.ResponseWriter, r *http.Request) {
	exch, err := h.chat.RegenerateLast(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "conversationID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exch)
}

func (h *APIHandler) AudioHandler(w http.ResponseWriter, r *http.Request) {
	turn, err := strconv.Atoi(chi.URLParam(r, "turn"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	audio, err := h.chat.Audio(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "conversationID"), turn)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (h *APIHandler) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.chat.Preferences(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *APIHandler) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if !decodeJSON(w, r, &partial) {
		return
	}
	prefs, err := h.chat.UpdatePreferences(r.Context(), userFromContext(r.Context()), partial)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chat.Stats(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) ListMemoriesHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.chat.Memories(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type MemoryRequest struct {
	Text string `json:"text"`
}

func (h *APIHandler) AddMemoryHandler(w http.ResponseWriter, r *http.Request) {
	var req MemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.chat.Remember(r.Context(), userFromContext(r.Context()), req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *APIHandler) ClearMemoriesHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.ForgetAll(r.Context(), userFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type TranscriptionResponse struct {
	Text string `json:"text"`
}

// TranscribeHandler accepts a multipart upload in the "file" field.
func (h *APIHandler) TranscribeHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "audio file is required", Field: "file"})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio file is too large")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	text, err := h.chat.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TranscriptionResponse{Text: text})
}

