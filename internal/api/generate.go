package api

import (
	"cmp"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mamette/mamette/internal/generate"
	"github.com/mamette/mamette/internal/imagegen"
	"github.com/mamette/mamette/internal/storage"
)

type generateRequest struct {
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author"`
	Genre     string `json:"genre" validate:"required"`
	Vibe      string `json:"vibe"`
	Color     string `json:"color"`
	ProjectID string `json:"projectId"`
	Provider  string `json:"provider" validate:"omitempty,oneof=dalle replicate"`
	Async     bool   `json:"async"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := decodeJSON(w, r, maxRequestBodySize, &req); err != nil {
			httpError(w, r, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := validate.Struct(req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && verrs[0].Field() == "Provider" {
				httpError(w, r, http.StatusBadRequest, "provider must be dalle or replicate")
				return
			}
			httpError(w, r, http.StatusBadRequest, "Title and genre are required")
			return
		}

		cover := generate.CoverRequest{
			ProjectID: req.ProjectID,
			Genre:     req.Genre,
			Vibe:      req.Vibe,
			Color:     req.Color,
			Provider:  req.Provider,
		}

		if req.Async {
			g, err := deps.Generator.EnqueueCover(r.Context(), cover)
			if err != nil {
				generationError(deps, w, r, err)
				return
			}
			writeJSON(w, r, http.StatusAccepted, map[string]any{
				"success":      true,
				"generationId": g.ID,
				"status":       g.Status,
			})
			return
		}

		res, err := deps.Generator.Cover(r.Context(), cover)
		if err != nil {
			generationError(deps, w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"success":      true,
			"generationId": res.Generation.ID,
			"images":       res.Generation.Images,
		})
	}
}

func generationError(deps Deps, w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, r, http.StatusNotFound, "Project not found")
	case errors.Is(err, imagegen.ErrNotConfigured):
		httpError(w, r, http.StatusBadRequest, "%v", err)
	case errors.Is(err, generate.ErrNoImages):
		httpError(w, r, http.StatusInternalServerError, "Failed to generate any images")
	default:
		deps.Logger.Error("generation error", "error", err)
		httpError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

func handleGetGeneration(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := deps.Store.GetGeneration(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, r, http.StatusNotFound, "Not found")
			return
		}
		if err != nil {
			deps.Logger.Error("failed to get generation", "error", err)
			httpError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "generation": g})
	}
}

type quickGenerateRequest struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
	// PDF is a base64 manuscript, optionally as a data URL. Its text is used
	// when Text is empty.
	PDF string `json:"pdf"`
}

func handleQuickGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quickGenerateRequest
		if err := decodeJSON(w, r, maxManuscriptBodySize, &req); err != nil {
			httpError(w, r, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		text := req.Text
		if strings.TrimSpace(text) == "" && req.PDF != "" {
			extracted, err := ManuscriptText(req.PDF)
			if err != nil {
				deps.Logger.Warn("failed to read manuscript PDF", "error", err)
				httpError(w, r, http.StatusBadRequest, "Could not read PDF")
				return
			}
			text = extracted
		}

		res, err := deps.Generator.Quick(r.Context(), cmp.Or(req.UserID, deps.DefaultUserID), text)
		switch {
		case errors.Is(err, generate.ErrTextTooShort):
			httpError(w, r, http.StatusBadRequest, "Please provide some text")
			return
		case errors.Is(err, imagegen.ErrNotConfigured):
			httpError(w, r, http.StatusBadRequest, "%v", err)
			return
		case errors.Is(err, generate.ErrNoImages):
			// The project is kept; the caller sees an empty image list.
			deps.Logger.Warn("quick generation produced no images", "project_id", res.Project.ID, "error", err)
		case err != nil:
			if res.Project.ID == "" {
				deps.Logger.Error("failed to create project", "error", err)
				httpError(w, r, http.StatusInternalServerError, "Failed to create project")
				return
			}
			deps.Logger.Error("quick generation error", "error", err)
			httpError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}

		images := res.Generation.Images
		if images == nil {
			images = []string{}
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"success":      true,
			"projectId":    res.Project.ID,
			"generationId": res.Generation.ID,
			"images":       images,
		})
	}
}
