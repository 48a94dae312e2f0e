package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(db *store.DB, svc *memory.Service, apiKey string, hookTimeout time.Duration, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(db, svc)
	recordH := NewRecordHandler(svc)
	searchH := NewSearchHandler(svc)
	sessionH := NewSessionHandler(svc)
	hookH := NewHookHandler(svc, hookTimeout)

	r.Get("/health", healthH.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Route("/records", func(r chi.Router) {
			r.Post("/user-messages", recordH.AddUserMessage)
			r.Post("/assistant-messages", recordH.AddAssistantMessage)
			r.Post("/tool-uses", recordH.AddToolUse)
			r.Post("/decisions", recordH.AddDecision)
			r.Post("/conventions", recordH.AddConvention)
			r.Post("/learnings", recordH.AddLearning)
			r.Post("/artifacts", recordH.AddArtifact)
			r.Post("/legacy", recordH.ImportLegacy)
			r.Post("/prune", recordH.Prune)
			r.Post("/decay", recordH.Decay)
			r.Get("/{id}", recordH.Get)
			r.Post("/{id}/verify", recordH.RefreshVerified)
		})

		r.Post("/search", searchH.Search)
		r.Post("/context", searchH.BuildContext)
		r.Get("/stats", searchH.Stats)
		r.Post("/index/rebuild", searchH.RebuildIndex)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionH.List)
			r.Get("/{id}", sessionH.Get)
			r.Post("/{id}/end", sessionH.End)
			r.Post("/{id}/reprocess", sessionH.Reprocess)
		})

		r.Post("/hooks", hookH.Handle)
	})

	return r
}
