package api

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mamette/mamette/internal/media"
	"github.com/mamette/mamette/internal/render"
)

type mockupRequest struct {
	ImageURL string `json:"imageUrl" validate:"required"`
	Style    string `json:"style"`
}

func handleMockup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mockupRequest
		if err := decodeJSON(w, r, maxRequestBodySize, &req); err != nil {
			httpError(w, r, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := validate.Struct(req); err != nil {
			httpError(w, r, http.StatusBadRequest, "Missing imageUrl")
			return
		}
		if deps.Mockups == nil || !deps.Mockups.MockupConfigured() {
			httpError(w, r, http.StatusBadRequest,
				"AI mockup model not configured. Set REPLICATE_MOCKUP_MODEL (and optional REPLICATE_MOCKUP_VERSION).")
			return
		}

		url, err := deps.Mockups.Mockup(r.Context(), req.ImageURL, req.Style)
		if err != nil {
			deps.Logger.Error("mockup generation failed", "style", req.Style, "error", err)
			httpError(w, r, http.StatusInternalServerError, "%v", err)
			return
		}
		if url == "" {
			httpError(w, r, http.StatusInternalServerError, "No mockup generated")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "url": url})
	}
}

func handleRenderMockup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ref := q.Get("url")
		if ref == "" {
			httpError(w, r, http.StatusBadRequest, "Missing url")
			return
		}
		tmpl, err := render.ParseTemplate(q.Get("template"))
		if err != nil {
			httpError(w, r, http.StatusBadRequest, "%v", err)
			return
		}

		blob, err := deps.Fetcher.Fetch(r.Context(), ref)
		if err != nil {
			fetchError(w, r, err)
			return
		}
		cover, err := render.Decode(bytes.NewReader(blob.Data))
		if err != nil {
			httpError(w, r, http.StatusUnprocessableEntity, "%v", err)
			return
		}

		var buf bytes.Buffer
		err = render.RenderPNG(&buf, cover, render.Options{
			Template: tmpl,
			Title:    q.Get("title"),
			Author:   q.Get("author"),
		})
		if err != nil {
			deps.Logger.Error("mockup render failed", "template", tmpl, "error", err)
			httpError(w, r, http.StatusInternalServerError, "%v", err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if download, _ := strconv.ParseBool(q.Get("download")); download {
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="mamette-mockup-%s.png"`, tmpl))
		}
		w.Write(buf.Bytes())
	}
}

func fetchError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *media.StatusError
	switch {
	case errors.As(err, &statusErr):
		httpError(w, r, http.StatusBadGateway, "Upstream error: %d", statusErr.Code)
	case errors.Is(err, media.ErrUnsupportedURL), errors.Is(err, media.ErrInvalidDataURL):
		httpError(w, r, http.StatusBadRequest, "%v", err)
	default:
		httpError(w, r, http.StatusInternalServerError, "%v", err)
	}
}

// handleImageProxy relays a remote image with a permissive CORS header.
// Errors are plain text.
func handleImageProxy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Query().Get("url")
		if ref == "" {
			plainError(w, http.StatusBadRequest, "Missing url")
			return
		}

		blob, err := deps.Fetcher.Fetch(r.Context(), ref)
		var statusErr *media.StatusError
		if errors.As(err, &statusErr) {
			plainError(w, http.StatusBadGateway, fmt.Sprintf("Upstream error: %d", statusErr.Code))
			return
		}
		if err != nil {
			deps.Logger.Warn("image proxy fetch failed", "error", err)
			plainError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", blob.ContentType)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write(blob.Data)
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ref := q.Get("url")
		filename := media.SanitizeFilename(q.Get("filename"), "mamette-cover")
		if ref == "" {
			httpError(w, r, http.StatusBadRequest, "Missing url")
			return
		}

		blob, err := deps.Fetcher.Fetch(r.Context(), ref)
		if err != nil {
			httpError(w, r, http.StatusInternalServerError, "%v", err)
			return
		}

		if deps.Exports.Save {
			if path, err := saveExport(deps.Exports.Dir, filename, blob.Data); err != nil {
				deps.Logger.Warn("failed to save export", "dir", deps.Exports.Dir, "error", err)
			} else {
				deps.Logger.Info("export saved", "path", path)
			}
		}

		w.Header().Set("Content-Type", blob.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		w.Header().Set("Cache-Control", "no-store")
		w.Write(blob.Data)
	}
}

func saveExport(dir, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	suffix := make([]byte, 3)
	rand.Read(suffix)
	path := filepath.Join(dir, fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), hex.EncodeToString(suffix), filename))
	return path, os.WriteFile(path, data, 0o644)
}
