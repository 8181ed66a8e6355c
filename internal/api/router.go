// Package api serves the Mamette HTTP API and the MCP tool server.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mamette/mamette/internal/generate"
	"github.com/mamette/mamette/internal/media"
	"github.com/mamette/mamette/internal/storage"
)

// ProjectStore is the persistence the handlers use directly.
type ProjectStore interface {
	CreateProject(ctx context.Context, p storage.Project) (storage.Project, error)
	GetProject(ctx context.Context, id string) (storage.Project, error)
	ListProjects(ctx context.Context, userID string, limit int) ([]storage.Project, error)
	SetFavorite(ctx context.Context, id, url string) error
	DeleteProject(ctx context.Context, id string) error
	GetGeneration(ctx context.Context, id string) (storage.Generation, error)
}

// Generator runs cover generations.
type Generator interface {
	Cover(ctx context.Context, req generate.CoverRequest) (generate.Result, error)
	EnqueueCover(ctx context.Context, req generate.CoverRequest) (storage.Generation, error)
	Quick(ctx context.Context, userID, text string) (generate.QuickResult, error)
}

// MockupGenerator produces photoreal mockups of a cover.
type MockupGenerator interface {
	MockupConfigured() bool
	Mockup(ctx context.Context, imageURL, style string) (string, error)
}

// MetricsHandler instruments routes and serves the scrape endpoint.
type MetricsHandler interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type ExportOptions struct {
	Save bool
	Dir  string
}

type Deps struct {
	Store          ProjectStore
	Generator      Generator
	Mockups        MockupGenerator // optional; nil disables POST /api/mockup
	Fetcher        *media.Fetcher  // optional; defaults to media.NewFetcher(nil)
	Metrics        MetricsHandler  // optional
	Token          string          // optional bearer token for /api
	AllowedOrigins []string
	DefaultUserID  string
	Exports        ExportOptions
	Logger         *slog.Logger
}

func (d *Deps) defaults() {
	if d.Fetcher == nil {
		d.Fetcher = media.NewFetcher(nil)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	deps.defaults()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/projects", handleCreateProject(deps))
		r.Get("/projects", handleListProjects(deps))
		r.Get("/projects/{id}", handleGetProject(deps))
		r.Patch("/projects/{id}", handlePatchProject(deps))
		r.Delete("/projects/{id}", handleDeleteProject(deps))

		r.Post("/generate", handleGenerate(deps))
		r.Get("/generations/{id}", handleGetGeneration(deps))
		r.Post("/quick-generate", handleQuickGenerate(deps))

		r.Post("/mockup", handleMockup(deps))
		r.Get("/mockup/render", handleRenderMockup(deps))
		r.Get("/image-proxy", handleImageProxy(deps))
		r.Get("/export", handleExport(deps))
	})

	return r
}

// BearerAuth rejects requests that do not present token. GET requests may pass
// it as the "token" query parameter so image URLs work in <img> tags and
// download links.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok && r.Method == http.MethodGet {
				got, ok = r.URL.Query().Get("token"), true
			}
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				httpError(w, r, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
