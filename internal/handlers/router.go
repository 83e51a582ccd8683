package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/redgrouse/backend/internal/middleware"
)

// NewRouter assembles the full chi router: global middleware stack, then the
// health/upload/query/tile route groups.
func NewRouter(h *Handlers, buildVersion string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDChi)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BuildVersion(buildVersion))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"x-build-version"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/upload", func(r chi.Router) {
		r.Post("/", h.Upload)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/fields", h.Fields)

		r.Route("/uploads/{id}", func(r chi.Router) {
			r.Get("/", h.GetMetadata)
			r.Put("/", h.Replace)
			r.Patch("/", h.Rename)
			r.Delete("/", h.Delete)
			r.Get("/count", h.Count)
			r.Get("/sightings", h.Sightings)
			r.Get("/stats", h.Stats)
			r.Get("/fields/{field}", h.FieldValues)
		})

		r.Route("/tiles/{id}", func(r chi.Router) {
			r.Get("/{z}/{x}/{y}", h.Tile)
		})
	})

	return r
}
