package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mourne/internal/assembly"
	"mourne/internal/configstore"
	"mourne/internal/generator"
	"mourne/internal/http/handlers"
	"mourne/internal/orchestrator"
	"mourne/internal/providers/local"
	"mourne/internal/registry"
	"mourne/internal/storage"
)

type server struct {
	handler http.Handler
	files   *storage.FileStore
}

func newServer(t *testing.T) *server {
	t.Helper()
	dir := t.TempDir()
	logger := zerolog.Nop()

	files, err := storage.NewFileStore(filepath.Join(dir, "storage"), "http://example.test/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	backend, err := configstore.NewFileBackend(filepath.Join(dir, "providers.json"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	cfg := configstore.New(backend, &logger)
	reg := registry.NewDefault(registry.CatalogOptions{Local: local.Options{}})
	gen := generator.New(files, generator.Options{MaxConcurrent: 4, Logger: &logger})

	jobs, err := orchestrator.New(orchestrator.Options{
		Config:    cfg,
		Registry:  reg,
		Generator: gen,
		Assembler: assembly.NewBundler(files, &logger),
		Files:     files,
		Logger:    &logger,
	})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	t.Cleanup(jobs.Close)

	app := handlers.NewApp(jobs, cfg, reg, logger)
	h := NewRouter(app, Options{
		Logger:         logger,
		AllowedOrigins: []string{"*"},
		DefaultLocale:  "en",
		StaticDir:      files.BasePath(),
	})
	return &server{handler: h, files: files}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, want, rec.Body.String())
	}
}

type jobBody struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Artifacts []struct {
		ID        string `json:"id"`
		MediaType string `json:"media_type"`
		Status    string `json:"status"`
		Result    *struct {
			AssetID string `json:"asset_id"`
		} `json:"result"`
	} `json:"artifact_list"`
	Render *struct {
		StorageKey string `json:"storage_key"`
	} `json:"render"`
}

func (s *server) createJob(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/jobs", map[string]any{
		"name":   "demo",
		"script": "A quiet morning.",
		"scenes": []map[string]any{{"number": 1, "description": "a lake at dawn"}},
	})
	expectStatus(t, rec, http.StatusCreated)
	var job jobBody
	decodeBody(t, rec, &job)
	if job.ID == "" {
		t.Fatalf("job id missing: %s", rec.Body.String())
	}
	return job.ID
}

func (s *server) useLocalImages(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/v1/config", map[string]any{
		"capabilities": map[string]any{"image": map[string]any{"provider": "local"}},
	})
	expectStatus(t, rec, http.StatusOK)
}

func (s *server) waitForJob(t *testing.T, id string, status string) jobBody {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := s.do(t, http.MethodGet, "/v1/jobs/"+id, nil)
		expectStatus(t, rec, http.StatusOK)
		var job jobBody
		decodeBody(t, rec, &job)
		if job.Status == status && (status != "complete" || job.Render != nil) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck: %s", id, rec.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newServer(t)
	s.useLocalImages(t)
	id := s.createJob(t)

	rec := s.do(t, http.MethodPost, "/v1/jobs/"+id+"/scenes/1/generate", map[string]any{"media_type": "image"})
	expectStatus(t, rec, http.StatusConflict)
	if !strings.Contains(rec.Body.String(), "not_approved") {
		t.Fatalf("expected not_approved, got %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/script/approve", map[string]any{"text": "A quiet morning."})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/scenes/1/generate", map[string]any{"media_type": "image"})
	expectStatus(t, rec, http.StatusAccepted)

	job := s.waitForJob(t, id, "complete")
	if len(job.Artifacts) != 1 || job.Artifacts[0].Status != "complete" {
		t.Fatalf("unexpected artifacts %+v", job.Artifacts)
	}

	rec = s.do(t, http.MethodGet, "/v1/jobs/"+id+"/render", nil)
	expectStatus(t, rec, http.StatusOK)
	var ref struct {
		StorageKey string `json:"storage_key"`
		Items      int    `json:"items"`
	}
	decodeBody(t, rec, &ref)
	if ref.Items != 1 || ref.StorageKey == "" {
		t.Fatalf("unexpected render %+v", ref)
	}

	rec = s.do(t, http.MethodGet, "/static/"+ref.StorageKey, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodDelete, "/v1/jobs/"+id, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = s.do(t, http.MethodGet, "/v1/jobs/"+id, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec = s.do(t, http.MethodGet, "/static/"+ref.StorageKey, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestGenerateValidation(t *testing.T) {
	s := newServer(t)
	id := s.createJob(t)

	rec := s.do(t, http.MethodPost, "/v1/jobs/"+id+"/scenes/0/generate", map[string]any{"media_type": "image"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/scenes/1/generate", map[string]any{"media_type": "hologram"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/scenes/9/generate", map[string]any{"media_type": "image"})
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.do(t, http.MethodPost, "/v1/jobs/missing/scenes/1/generate", map[string]any{"media_type": "image"})
	expectStatus(t, rec, http.StatusNotFound)

	// Default image provider needs a key that was never saved.
	s.do(t, http.MethodPost, "/v1/jobs/"+id+"/script/approve", map[string]any{"text": "A quiet morning."})
	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/scenes/1/generate", map[string]any{"media_type": "image"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestConfigRedactsAndValidates(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPut, "/v1/config", map[string]any{
		"capabilities": map[string]any{"video": map[string]any{"provider": "runway", "credential": "rw-secret-key"}},
	})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/v1/config", nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "rw-secret-key") {
		t.Fatalf("credential leaked: %s", rec.Body.String())
	}
	var cfg struct {
		Capabilities map[string]struct {
			Provider string `json:"provider"`
			Model    string `json:"model"`
		} `json:"capabilities"`
	}
	decodeBody(t, rec, &cfg)
	if got := cfg.Capabilities["video"]; got.Provider != "runway" || got.Model != "gen4_turbo" {
		t.Fatalf("video selection = %+v", got)
	}

	rec = s.do(t, http.MethodPut, "/v1/config", map[string]any{
		"capabilities": map[string]any{"speech": map[string]any{"provider": "runway"}},
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPut, "/v1/config", map[string]any{
		"capabilities": map[string]any{"music": map[string]any{"provider": "local"}},
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPut, "/v1/config", map[string]any{})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestBoundAssetCompletesWithoutProvider(t *testing.T) {
	s := newServer(t)
	id := s.createJob(t)
	s.do(t, http.MethodPost, "/v1/jobs/"+id+"/script/approve", map[string]any{"text": "A quiet morning."})

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "cover.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(pngBuf.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+id+"/assets", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusCreated)
	var asset struct {
		ID        string `json:"id"`
		MediaType string `json:"media_type"`
	}
	decodeBody(t, rec, &asset)
	if asset.MediaType != "image" {
		t.Fatalf("media type = %q", asset.MediaType)
	}

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/assets/"+asset.ID+"/bind", map[string]any{"scene": 1})
	expectStatus(t, rec, http.StatusOK)

	// No image credential is configured, so only the bound asset can satisfy this.
	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/scenes/1/generate", map[string]any{"media_type": "image"})
	expectStatus(t, rec, http.StatusOK)

	job := s.waitForJob(t, id, "complete")
	if job.Artifacts[0].Result == nil || job.Artifacts[0].Result.AssetID != asset.ID {
		t.Fatalf("artifact not sourced from asset: %+v", job.Artifacts[0])
	}

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+id+"/assets/"+asset.ID+"/unbind", nil)
	expectStatus(t, rec, http.StatusOK)
	rec = s.do(t, http.MethodDelete, "/v1/jobs/"+id+"/assets/"+asset.ID, nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = s.do(t, http.MethodGet, "/v1/jobs/"+id+"/assets", nil)
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		Items []any `json:"items"`
	}
	decodeBody(t, rec, &list)
	if len(list.Items) != 0 {
		t.Fatalf("assets left after remove: %s", rec.Body.String())
	}
}

func TestJobSelectionAndScenes(t *testing.T) {
	s := newServer(t)
	first := s.createJob(t)
	second := s.createJob(t)

	rec := s.do(t, http.MethodPost, "/v1/jobs/"+first+"/activate", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/v1/jobs", nil)
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		Items  []struct{ ID string } `json:"items"`
		Active string                `json:"active"`
	}
	decodeBody(t, rec, &list)
	if len(list.Items) != 2 || list.Active != first {
		t.Fatalf("unexpected list %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPut, "/v1/jobs/"+second+"/scenes/2", map[string]any{"description": "a crowded market"})
	expectStatus(t, rec, http.StatusOK)
	rec = s.do(t, http.MethodDelete, "/v1/jobs/"+second+"/scenes/2", nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = s.do(t, http.MethodDelete, "/v1/jobs/"+second+"/scenes/2", nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.do(t, http.MethodPut, "/v1/jobs/"+second+"/script", map[string]any{"text": "A busy evening."})
	expectStatus(t, rec, http.StatusOK)
	var script struct {
		Approved bool `json:"approved"`
	}
	decodeBody(t, rec, &script)
	if script.Approved {
		t.Fatalf("edited script should not be approved")
	}

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+second+"/abandon", nil)
	expectStatus(t, rec, http.StatusOK)
	var job jobBody
	decodeBody(t, rec, &job)
	if job.Status != "failed" {
		t.Fatalf("abandoned job status = %q", job.Status)
	}
	rec = s.do(t, http.MethodPost, "/v1/jobs/"+second+"/reset", nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &job)
	if job.Status != "idle" {
		t.Fatalf("reset job status = %q", job.Status)
	}

	rec = s.do(t, http.MethodPost, "/v1/artifacts/nope/cancel", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestSystemEndpoints(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/v1/healthz", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/v1/providers", nil)
	expectStatus(t, rec, http.StatusOK)
	var providers struct {
		Items []struct {
			Capability string `json:"capability"`
			Provider   string `json:"provider"`
		} `json:"items"`
	}
	decodeBody(t, rec, &providers)
	if len(providers.Items) == 0 {
		t.Fatalf("empty provider catalog")
	}

	rec = s.do(t, http.MethodGet, "/v1/openapi.json", nil)
	expectStatus(t, rec, http.StatusOK)
	var doc map[string]any
	decodeBody(t, rec, &doc)
	if doc["openapi"] == nil {
		t.Fatalf("openapi document missing version")
	}

	cached := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	cached.Header.Set("If-None-Match", rec.Header().Get("ETag"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, cached)
	expectStatus(t, rec, http.StatusNotModified)

	req := httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil)
	req.Header.Set("Origin", "http://studio.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("missing CORS header on preflight")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}
