// Package generator runs one provider call per artifact attempt and reports
// its progress and terminal outcome as a stream of events.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mourne/internal/domain"
	"mourne/internal/infra"
	"mourne/internal/providers"
	"mourne/internal/registry"
	"mourne/internal/storage"
)

// EventKind distinguishes progress from terminal events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventSuccess
	EventFailure
)

// Event is emitted by a running attempt. Exactly one Success or Failure is
// emitted last, after which the channel is closed.
type Event struct {
	Kind      EventKind
	AttemptID string
	Progress  int
	Result    *domain.ResultRef
	Err       *domain.ProviderError
}

// Request identifies the artifact attempt and what to generate.
type Request struct {
	JobID       string
	ArtifactID  string
	AttemptID   string
	SceneNumber int
	MediaType   domain.MediaType
	Capability  domain.Capability
	Prompt      string
	Locale      string
	Source      *providers.SourceMedia
	// SourceKey names stored bytes for Source; they are loaded lazily so the
	// caller never blocks on storage.
	SourceKey string
}

// Handle observes and controls one running attempt.
type Handle struct {
	events chan Event
	cancel context.CancelFunc
}

// Events yields progress events followed by one terminal event.
func (h *Handle) Events() <-chan Event { return h.events }

// Cancel asks the adapter to stop. The terminal event still arrives.
func (h *Handle) Cancel() { h.cancel() }

// Options configures a Generator.
type Options struct {
	// MaxConcurrent caps simultaneous provider calls; values below one mean one.
	MaxConcurrent int
	// Timeout bounds one attempt end to end; zero leaves it to the adapter.
	Timeout time.Duration
	Logger  *infra.Logger
}

// Generator is stateless across calls apart from its concurrency limiter.
type Generator struct {
	store   *storage.FileStore
	limiter chan struct{}
	timeout time.Duration
	logger  zerolog.Logger
}

func New(store *storage.FileStore, opts Options) *Generator {
	n := opts.MaxConcurrent
	if n < 1 {
		n = 1
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "generator").Logger()
	}
	return &Generator{store: store, limiter: make(chan struct{}, n), timeout: opts.Timeout, logger: logger}
}

// Generate starts the attempt in the background and returns immediately.
// The caller must drain Events until it is closed.
func (g *Generator) Generate(ctx context.Context, req Request, h registry.Handle) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	if g.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, g.timeout)
		inner := cancel
		cancel = func() { stop(); inner() }
	}
	handle := &Handle{events: make(chan Event, 16), cancel: cancel}
	go g.run(ctx, cancel, req, h, handle.events)
	return handle
}

func (g *Generator) run(ctx context.Context, cancel context.CancelFunc, req Request, h registry.Handle, events chan<- Event) {
	defer close(events)
	defer cancel()
	log := g.logger.With().
		Str("job_id", req.JobID).
		Str("artifact_id", req.ArtifactID).
		Str("attempt_id", req.AttemptID).
		Str("provider", h.Provider).
		Str("capability", string(h.Capability)).
		Logger()

	fail := func(err error) {
		perr := &domain.ProviderError{Kind: providers.Classify(err), Provider: h.Provider, Detail: err.Error()}
		log.Warn().Err(err).Str("kind", string(perr.Kind)).Msg("generation failed")
		events <- Event{Kind: EventFailure, AttemptID: req.AttemptID, Err: perr}
	}

	select {
	case g.limiter <- struct{}{}:
		defer func() { <-g.limiter }()
	case <-ctx.Done():
		fail(ctx.Err())
		return
	}

	progress := func(pct int) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		select {
		case events <- Event{Kind: EventProgress, AttemptID: req.AttemptID, Progress: pct}:
		case <-ctx.Done():
		}
	}

	source, err := g.loadSource(ctx, req)
	if err != nil {
		fail(err)
		return
	}

	started := time.Now()
	res, err := h.Adapter.Generate(ctx, providers.Request{
		Capability: h.Capability,
		Model:      h.Model,
		Credential: h.Credential,
		Prompt:     req.Prompt,
		Locale:     req.Locale,
		RequestID:  req.AttemptID,
		Source:     source,
	}, progress)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		fail(err)
		return
	}
	if res == nil {
		fail(providers.Invalid(h.Provider, "adapter returned no result"))
		return
	}

	ref, err := g.persist(ctx, req, h, res)
	if err != nil {
		fail(err)
		return
	}
	log.Info().Dur("elapsed", time.Since(started)).Str("storage_key", ref.StorageKey).Msg("generation complete")
	events <- Event{Kind: EventSuccess, AttemptID: req.AttemptID, Progress: 100, Result: ref}
}

func (g *Generator) loadSource(ctx context.Context, req Request) (*providers.SourceMedia, error) {
	if req.Source == nil || len(req.Source.Data) > 0 || req.SourceKey == "" {
		return req.Source, nil
	}
	data, err := g.store.Read(ctx, req.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("generator: load source %s: %w", req.SourceKey, err)
	}
	src := *req.Source
	src.Data = data
	return &src, nil
}

func (g *Generator) persist(ctx context.Context, req Request, h registry.Handle, res *providers.Result) (*domain.ResultRef, error) {
	data, mime := res.Data, res.MIME
	if len(data) == 0 && res.Text != "" {
		data = []byte(res.Text)
		if mime == "" {
			mime = "text/plain; charset=utf-8"
		}
	}
	if len(data) == 0 {
		if res.URL == "" {
			return nil, providers.Invalid(h.Provider, "result carries neither data nor url")
		}
		return &domain.ResultRef{URL: res.URL, MIME: mime, Provider: h.Provider}, nil
	}
	if g.store == nil {
		return nil, errors.New("generator: no store configured")
	}
	key := fmt.Sprintf("generated/%s/scene-%03d-%s-%s%s", req.JobID, req.SceneNumber, req.MediaType, req.AttemptID, extensionFor(mime))
	stored, err := g.store.Write(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("generator: store result: %w", err)
	}
	return &domain.ResultRef{StorageKey: stored, URL: g.store.URL(stored), MIME: mime, Provider: h.Provider}, nil
}

func extensionFor(mime string) string {
	base, _, _ := strings.Cut(strings.ToLower(mime), ";")
	switch strings.TrimSpace(base) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "text/plain":
		return ".txt"
	}
	return ".bin"
}
