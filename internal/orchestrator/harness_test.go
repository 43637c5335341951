package orchestrator

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"mourne/internal/assembly"
	"mourne/internal/domain"
	"mourne/internal/generator"
	"mourne/internal/providers"
	"mourne/internal/registry"
	"mourne/internal/storage"
)

type mutableConfig struct {
	mu  sync.Mutex
	cfg domain.ProviderConfig
}

func (c *mutableConfig) Snapshot() domain.ProviderConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

func (c *mutableConfig) set(capability domain.Capability, sel domain.CapabilityConfig) {
	c.mu.Lock()
	c.cfg.Capabilities[capability] = sel
	c.mu.Unlock()
}

type outcome struct {
	res *providers.Result
	err error
}

// call is one pending adapter invocation driven by the test.
type call struct {
	ctx      context.Context
	req      providers.Request
	progress providers.ProgressFunc
	done     chan outcome
}

func (c *call) succeed(data []byte, mime string) {
	c.done <- outcome{res: &providers.Result{Data: data, MIME: mime}}
}

func (c *call) fail(err error) {
	c.done <- outcome{err: err}
}

type controlledAdapter struct {
	calls chan *call
	// auto, when set before the first call, answers immediately.
	auto func(req providers.Request) outcome
}

func newControlledAdapter() *controlledAdapter {
	return &controlledAdapter{calls: make(chan *call, 64)}
}

func (a *controlledAdapter) Generate(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	if a.auto != nil {
		out := a.auto(req)
		return out.res, out.err
	}
	c := &call{ctx: ctx, req: req, progress: progress, done: make(chan outcome, 1)}
	a.calls <- c
	select {
	case out := <-c.done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *controlledAdapter) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-a.calls:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for adapter call")
		return nil
	}
}

// nextN collects n calls keyed by prompt.
func (a *controlledAdapter) nextN(t *testing.T, n int) map[string]*call {
	t.Helper()
	out := make(map[string]*call, n)
	for i := 0; i < n; i++ {
		c := a.next(t)
		out[c.req.Prompt] = c
	}
	return out
}

func (a *controlledAdapter) pending() int {
	return len(a.calls)
}

type harness struct {
	o      *Orchestrator
	files  *storage.FileStore
	dir    string
	config *mutableConfig
	image  *controlledAdapter
	video  *controlledAdapter
	text   *controlledAdapter
}

func newHarness(t *testing.T, asm assembly.Assembler) *harness {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFileStore(dir, "http://media.test/static")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	h := &harness{
		files: files,
		dir:   dir,
		image: newControlledAdapter(),
		video: newControlledAdapter(),
		text:  newControlledAdapter(),
		config: &mutableConfig{cfg: domain.ProviderConfig{Capabilities: map[domain.Capability]domain.CapabilityConfig{
			domain.CapabilityText:  {Provider: "fake", Model: "text-1", Credential: "k"},
			domain.CapabilityImage: {Provider: "fake", Model: "image-1", Credential: "k"},
			domain.CapabilityVideo: {Provider: "fake", Model: "video-1", Credential: "k"},
		}}},
	}
	reg := registry.New()
	reg.MustRegister(registry.Registration{Capability: domain.CapabilityText, Provider: "fake", Adapter: h.text, RequiresCredential: true})
	reg.MustRegister(registry.Registration{Capability: domain.CapabilityImage, Provider: "fake", Adapter: h.image, RequiresCredential: true})
	reg.MustRegister(registry.Registration{Capability: domain.CapabilityVideo, Provider: "fake", Adapter: h.video, RequiresCredential: true})

	if asm == nil {
		asm = assembly.NewBundler(files, nil)
	}
	o, err := New(Options{
		Config:    h.config,
		Registry:  reg,
		Generator: generator.New(files, generator.Options{MaxConcurrent: 16}),
		Assembler: asm,
		Files:     files,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(o.Close)
	h.o = o
	return h
}

// approvedJob creates a job with the given scene descriptions (numbered
// from one) and an approved script.
func (h *harness) approvedJob(t *testing.T, descriptions ...string) JobSnapshot {
	t.Helper()
	var scenes []domain.Scene
	for i, d := range descriptions {
		scenes = append(scenes, domain.Scene{Number: i + 1, Description: d})
	}
	snap, err := h.o.CreateJob(context.Background(), JobSpec{Name: "demo", Scenes: scenes, Script: "the script"})
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if _, err := h.o.ApproveScript(snap.ID, "the script"); err != nil {
		t.Fatalf("ApproveScript error: %v", err)
	}
	return snap
}

func (h *harness) status(t *testing.T, jobID string) JobSnapshot {
	t.Helper()
	snap, err := h.o.JobStatus(jobID)
	if err != nil {
		t.Fatalf("JobStatus error: %v", err)
	}
	return snap
}

func (h *harness) waitFor(t *testing.T, jobID string, what string, cond func(JobSnapshot) bool) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap := h.status(t, jobID)
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot: %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func artifactByID(snap JobSnapshot, id string) (ArtifactView, bool) {
	for _, a := range snap.Artifacts {
		if a.ID == id {
			return a, true
		}
	}
	return ArtifactView{}, false
}

func artifactFor(snap JobSnapshot, scene int, media domain.MediaType) (ArtifactView, bool) {
	for _, a := range snap.Artifacts {
		if a.SceneNumber == scene && a.MediaType == media {
			return a, true
		}
	}
	return ArtifactView{}, false
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
