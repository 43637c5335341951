package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mourne/internal/middleware"
)

type scriptRequest struct {
	Text string `json:"text"`
}

func (a *App) SetScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if !a.decode(w, r, &req) {
		return
	}
	script, err := a.Jobs.SetScript(chi.URLParam(r, "job_id"), req.Text)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, script)
}

func (a *App) ApproveScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if !a.decode(w, r, &req) {
		return
	}
	version, err := a.Jobs.ApproveScript(chi.URLParam(r, "job_id"), req.Text)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"approved_version": version})
}

type draftRequest struct {
	Brief string `json:"brief"`
}

func (a *App) DraftScript(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !a.decode(w, r, &req) {
		return
	}
	script, err := a.Jobs.DraftScript(r.Context(), chi.URLParam(r, "job_id"), req.Brief, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, script)
}
