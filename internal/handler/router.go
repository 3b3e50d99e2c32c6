package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/wusle-presale/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса пресейла.
// Websocket-канал регистрируется вне цепочки middleware: обёртки над
// ResponseWriter не переживают hijack соединения.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	if h.push != nil {
		r.Handle("/ws/presale", h.push)
	}

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		r.Use(custommiddleware.Logger(h.logger))

		r.Get("/api/presale", h.GetPresale)

		r.Route("/api/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/balance", h.GetBalance)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/api/slips", h.CreateSlip)
			r.Get("/api/slips", h.GetSlips)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
