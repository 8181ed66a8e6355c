package api

import (
	"cmp"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mamette/mamette/internal/storage"
)

type createProjectRequest struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author" validate:"required"`
	Genre  string `json:"genre" validate:"required"`
	Vibe   string `json:"vibe"`
	Color  string `json:"color"`
	UserID string `json:"userId"`
}

type projectResponse struct {
	Success bool            `json:"success"`
	Project storage.Project `json:"project"`
}

func handleCreateProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProjectRequest
		if err := decodeJSON(w, r, maxRequestBodySize, &req); err != nil {
			httpError(w, r, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := validate.Struct(req); err != nil {
			httpError(w, r, http.StatusBadRequest, "Title, author, and genre are required")
			return
		}

		project, err := deps.Store.CreateProject(r.Context(), storage.Project{
			UserID: cmp.Or(req.UserID, deps.DefaultUserID),
			Title:  req.Title,
			Author: req.Author,
			Genre:  req.Genre,
			Vibe:   req.Vibe,
			Color:  req.Color,
		})
		if err != nil {
			deps.Logger.Error("failed to create project", "error", err)
			httpError(w, r, http.StatusInternalServerError, "Failed to create project")
			return
		}
		writeJSON(w, r, http.StatusOK, projectResponse{Success: true, Project: project})
	}
}

func handleListProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := cmp.Or(r.URL.Query().Get("userId"), deps.DefaultUserID)
		limit := parseIntParam(r, "limit", 0, 200)

		projects, err := deps.Store.ListProjects(r.Context(), userID, limit)
		if err != nil {
			deps.Logger.Error("failed to list projects", "user_id", userID, "error", err)
			httpError(w, r, http.StatusInternalServerError, "Failed to fetch projects")
			return
		}
		if projects == nil {
			projects = []storage.Project{}
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "projects": projects})
	}
}

func handleGetProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := deps.Store.GetProject(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, r, http.StatusNotFound, "Not found")
			return
		}
		if err != nil {
			deps.Logger.Error("failed to get project", "error", err)
			httpError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, r, http.StatusOK, projectResponse{Success: true, Project: project})
	}
}

type patchProjectRequest struct {
	FavoriteAssetURL *string `json:"favorite_asset_url"`
}

func handlePatchProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req patchProjectRequest
		if err := decodeJSON(w, r, maxRequestBodySize, &req); err != nil {
			httpError(w, r, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		if req.FavoriteAssetURL != nil {
			err := deps.Store.SetFavorite(r.Context(), id, *req.FavoriteAssetURL)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, r, http.StatusNotFound, "Not found")
				return
			}
			if err != nil {
				deps.Logger.Error("failed to update project", "project_id", id, "error", err)
				httpError(w, r, http.StatusInternalServerError, "Update failed")
				return
			}
		}

		project, err := deps.Store.GetProject(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, r, http.StatusNotFound, "Not found")
			return
		}
		if err != nil {
			httpError(w, r, http.StatusInternalServerError, "Update failed")
			return
		}
		writeJSON(w, r, http.StatusOK, projectResponse{Success: true, Project: project})
	}
}

func handleDeleteProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteProject(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, r, http.StatusNotFound, "Not found")
			return
		}
		if err != nil {
			deps.Logger.Error("failed to delete project", "project_id", id, "error", err)
			httpError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
