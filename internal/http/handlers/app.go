package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mourne/internal/configstore"
	"mourne/internal/domain"
	"mourne/internal/orchestrator"
	"mourne/internal/registry"
)

// DefaultMaxUploadBytes caps multipart request bodies.
const DefaultMaxUploadBytes = 64 << 20

type App struct {
	Jobs           *orchestrator.Orchestrator
	Config         *configstore.Store
	Registry       *registry.Registry
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

func NewApp(jobs *orchestrator.Orchestrator, cfg *configstore.Store, reg *registry.Registry, logger zerolog.Logger) *App {
	return &App{Jobs: jobs, Config: cfg, Registry: reg, Logger: logger, MaxUploadBytes: DefaultMaxUploadBytes}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		perr   *domain.ProviderError
		status int
		code   string
		kind   string
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNotApproved):
		status, code = http.StatusConflict, "not_approved"
	case errors.Is(err, domain.ErrGenerationInProgress):
		status, code = http.StatusConflict, "generation_in_progress"
	case errors.Is(err, domain.ErrConfiguration):
		status, code = http.StatusUnprocessableEntity, "configuration_error"
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.As(err, &perr):
		status, code, kind = http.StatusBadGateway, "provider_failure", string(perr.Kind)
		if perr.Kind == domain.FailureRateLimited {
			status = http.StatusTooManyRequests
		}
	case errors.Is(err, domain.ErrPersistence):
		status, code = http.StatusServiceUnavailable, "persistence_error"
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: err.Error(), Kind: kind}})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
