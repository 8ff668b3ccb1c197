package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func NewRouter(h *APIHandler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", h.SignupHandler)
		r.Post("/login", h.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(h.SessionAuthMiddleware)

			r.Post("/logout", h.LogoutHandler)
			r.Delete("/account", h.DeleteAccountHandler)

			r.Get("/conversations", h.ListConversationsHandler)
			r.Post("/conversations", h.CreateConversationHandler)
			r.Get("/conversations/{conversationID}", h.GetConversationHandler)
			r.Patch("/conversations/{conversationID}", h.RenameConversationHandler)
			r.Delete("/conversations/{conversationID}", h.DeleteConversationHandler)
			r.Post("/conversations/{conversationID}/messages", h.PostMessageHandler)
			r.Post("/conversations/{conversationID}/regenerate", h.RegenerateHandler)
			r.Get("/conversations/{conversationID}/audio/{turn}", h.AudioHandler)
			r.Post("/messages", h.PostMessageHandler)

			r.Get("/preferences", h.GetPreferencesHandler)
			r.Patch("/preferences", h.UpdatePreferencesHandler)
			r.Get("/stats", h.StatsHandler)

			r.Get("/memories", h.ListMemoriesHandler)
			r.Post("/memories", h.AddMemoryHandler)
			r.Delete("/memories", h.ClearMemoriesHandler)

			r.Post("/speech/transcribe", h.TranscribeHandler)
		})
	})

	return r
}
