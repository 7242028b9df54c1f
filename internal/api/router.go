package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xaenox/appdock/internal/realtime"
	"go.uber.org/zap"
)

func NewRouter(h *Handler, hub *realtime.Hub, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		// The realtime stream hijacks the connection, so it stays
		// outside the logging wrapper.
		r.Handle("/realtime", realtime.Handler(hub, logger))

		r.Group(func(r chi.Router) {
			r.Use(RequestLogger(logger))

			r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"status":"ok"}`))
			})

			r.Post("/completion", h.CompletionHandler)
			r.Post("/language", h.SetLanguageHandler)
			r.Get("/language", h.GetLanguageHandler)

			r.Get("/apps/{app}", h.GetAppHandler)
			r.Get("/apps/{app}/messages", h.ListMessagesHandler)
			r.Post("/apps/{app}/messages", h.CreateMessageHandler)
			r.Delete("/messages/{messageID}", h.DeleteMessageHandler)

			r.Route("/lists/{listID}/items", func(r chi.Router) {
				r.Get("/", h.ListItemsHandler)
				r.Post("/", h.CreateItemHandler)
				r.Delete("/", h.ClearItemsHandler)
				r.Put("/{itemID}", h.UpsertItemHandler)
				r.Delete("/{itemID}", h.DeleteItemHandler)
			})
		})
	})

	return r
}
