package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mourne/internal/domain"
	"mourne/internal/orchestrator"
)

type sceneRequest struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
}

type createJobRequest struct {
	Name   string         `json:"name"`
	Script string         `json:"script"`
	Style  string         `json:"style"`
	Scenes []sceneRequest `json:"scenes"`
}

func (req createJobRequest) spec() orchestrator.JobSpec {
	spec := orchestrator.JobSpec{Name: req.Name, Script: req.Script, Style: req.Style}
	for _, sc := range req.Scenes {
		spec.Scenes = append(spec.Scenes, domain.Scene{Number: sc.Number, Description: sc.Description})
	}
	return spec
}

// CreateJob accepts JSON, or multipart with an optional "audio" file and the
// scenes as a JSON string field.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var spec orchestrator.JobSpec
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
			return
		}
		req := createJobRequest{Name: r.FormValue("name"), Script: r.FormValue("script"), Style: r.FormValue("style")}
		if raw := r.FormValue("scenes"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Scenes); err != nil {
				a.error(w, http.StatusBadRequest, "bad_request", "scenes must be a JSON array")
				return
			}
		}
		spec = req.spec()
		if file, header, err := r.FormFile("audio"); err == nil {
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				a.error(w, http.StatusBadRequest, "bad_request", "failed to read audio")
				return
			}
			spec.AudioName, spec.Audio = header.Filename, data
		}
	} else {
		var req createJobRequest
		if !a.decode(w, r, &req) {
			return
		}
		spec = req.spec()
	}

	snap, err := a.Jobs.CreateJob(r.Context(), spec)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, snap)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"items":  a.Jobs.ListJobs(),
		"active": a.Jobs.ActiveJob(),
	})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Jobs.JobStatus(chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}

func (a *App) CloseJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	next, err := a.Jobs.CloseJob(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"closed": jobID, "active": next})
}

func (a *App) SelectJob(w http.ResponseWriter, r *http.Request) {
	if err := a.Jobs.SelectJob(chi.URLParam(r, "job_id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"active": a.Jobs.ActiveJob()})
}

func (a *App) ResetJob(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Jobs.ResetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}

func (a *App) AbandonJob(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Jobs.AbandonJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}

func (a *App) Render(w http.ResponseWriter, r *http.Request) {
	ref, err := a.Jobs.RenderRef(chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, ref)
}

func (a *App) CancelArtifact(w http.ResponseWriter, r *http.Request) {
	art, err := a.Jobs.CancelArtifact(r.Context(), chi.URLParam(r, "artifact_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, art)
}
