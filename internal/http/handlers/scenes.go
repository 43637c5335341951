package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mourne/internal/domain"
	"mourne/internal/middleware"
	"mourne/internal/orchestrator"
)

func sceneParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "scene"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: scene must be a positive integer", domain.ErrInvalidInput)
	}
	return n, nil
}

type putSceneRequest struct {
	Description string `json:"description"`
}

func (a *App) PutScene(w http.ResponseWriter, r *http.Request) {
	n, err := sceneParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req putSceneRequest
	if !a.decode(w, r, &req) {
		return
	}
	scene, err := a.Jobs.PutScene(chi.URLParam(r, "job_id"), n, req.Description)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, scene)
}

func (a *App) RemoveScene(w http.ResponseWriter, r *http.Request) {
	n, err := sceneParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Jobs.RemoveScene(r.Context(), chi.URLParam(r, "job_id"), n); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) AbandonScene(w http.ResponseWriter, r *http.Request) {
	n, err := sceneParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	snap, err := a.Jobs.AbandonScene(r.Context(), chi.URLParam(r, "job_id"), n)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}

type generateRequest struct {
	MediaType string `json:"media_type"`
	Prompt    string `json:"prompt"`
	Locale    string `json:"locale"`
}

// Generate dispatches generation for one scene and media type. The response
// is 202 while a provider works, or 200 when a bound asset satisfied it.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	n, err := sceneParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	media, err := domain.ParseMediaType(req.MediaType)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	art, err := a.Jobs.Dispatch(r.Context(), chi.URLParam(r, "job_id"), n, media, orchestrator.DispatchOptions{Prompt: req.Prompt, Locale: locale})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if art.Status == domain.ArtifactStatusComplete {
		status = http.StatusOK
	}
	a.json(w, status, art)
}
