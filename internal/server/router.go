package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/rpattn/tradeboard/internal/auth"
	"github.com/rpattn/tradeboard/internal/dashboard"
	"github.com/rpattn/tradeboard/internal/httpjson"
	"github.com/rpattn/tradeboard/internal/ingestion"
	"github.com/rpattn/tradeboard/internal/middleware"
)

// Dependencies are the handlers the router mounts.
type Dependencies struct {
	Uploads        *ingestion.Handler
	Dashboard      *dashboard.Handler
	AllowedOrigins []string
}

// NewRouter builds the HTTP API.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.SessionScope)
		r.Post("/uploads", deps.Uploads.Upload)
		r.Get("/uploads/logs", deps.Uploads.Logs)
		r.Route("/sessions/{id}", deps.Dashboard.Routes)
	})

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Rows-Exported"},
	})
	return corsHandler.Handler(r)
}
