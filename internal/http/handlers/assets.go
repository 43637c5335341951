package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mourne/internal/domain"
)

type assetResponse struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	MediaType  domain.MediaType `json:"media_type"`
	MIME       string           `json:"mime"`
	URL        string           `json:"url"`
	Bytes      int64            `json:"bytes"`
	BoundScene *int             `json:"bound_scene"`
	CreatedAt  time.Time        `json:"created_at"`
}

func toAssetResponse(a domain.CustomAsset) assetResponse {
	return assetResponse{
		ID:         a.ID,
		Name:       a.Name,
		MediaType:  a.MediaType,
		MIME:       a.MIME,
		URL:        a.URL,
		Bytes:      a.Bytes,
		BoundScene: a.BoundScene,
		CreatedAt:  a.CreatedAt,
	}
}

func (a *App) UploadAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}
	asset, err := a.Jobs.UploadAsset(r.Context(), chi.URLParam(r, "job_id"), header.Filename, data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toAssetResponse(asset))
}

func (a *App) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := a.Jobs.ListAssets(chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]assetResponse, 0, len(assets))
	for _, asset := range assets {
		items = append(items, toAssetResponse(asset))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type bindRequest struct {
	Scene int `json:"scene"`
}

func (a *App) BindAsset(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !a.decode(w, r, &req) {
		return
	}
	asset, err := a.Jobs.BindAsset(r.Context(), chi.URLParam(r, "job_id"), chi.URLParam(r, "asset_id"), req.Scene)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toAssetResponse(asset))
}

func (a *App) UnbindAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := a.Jobs.UnbindAsset(r.Context(), chi.URLParam(r, "job_id"), chi.URLParam(r, "asset_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toAssetResponse(asset))
}

func (a *App) RemoveAsset(w http.ResponseWriter, r *http.Request) {
	if err := a.Jobs.RemoveAsset(r.Context(), chi.URLParam(r, "job_id"), chi.URLParam(r, "asset_id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
