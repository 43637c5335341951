// Package orchestrator owns jobs, their scenes and artifacts, and coordinates
// concurrent artifact generation per job.
//
// Each job is guarded by its own mutex; every artifact update and every
// status recomputation happens under it, so readers always see a consistent
// snapshot. The orchestrator-wide lock only protects the job index.
package orchestrator

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mourne/internal/assembly"
	"mourne/internal/binding"
	"mourne/internal/domain"
	"mourne/internal/generator"
	"mourne/internal/infra"
	"mourne/internal/registry"
	"mourne/internal/storage"
)

// ConfigSource exposes the active provider selection.
type ConfigSource interface {
	Snapshot() domain.ProviderConfig
}

// Resolver turns a capability into a ready adapter handle.
type Resolver interface {
	Resolve(capability domain.Capability, cfg domain.ProviderConfig) (registry.Handle, error)
}

// Generator starts one artifact attempt.
type Generator interface {
	Generate(ctx context.Context, req generator.Request, h registry.Handle) *generator.Handle
}

type Options struct {
	Config    ConfigSource
	Registry  Resolver
	Generator Generator
	Assembler assembly.Assembler
	Files     *storage.FileStore
	Logger    *infra.Logger
	// AssemblyTimeout bounds one assembly run.
	AssemblyTimeout time.Duration
}

type Orchestrator struct {
	config    ConfigSource
	registry  Resolver
	gen       Generator
	assembler assembly.Assembler
	files     *storage.FileStore
	logger    zerolog.Logger
	now       func() time.Time
	asmTime   time.Duration

	mu        sync.RWMutex
	jobs      map[string]*job
	order     []string
	active    string
	artifacts map[string]string

	wg sync.WaitGroup
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("orchestrator: config source is required")
	case opts.Registry == nil:
		return nil, fmt.Errorf("orchestrator: registry is required")
	case opts.Generator == nil:
		return nil, fmt.Errorf("orchestrator: generator is required")
	case opts.Files == nil:
		return nil, fmt.Errorf("orchestrator: file store is required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "orchestrator").Logger()
	}
	asmTime := opts.AssemblyTimeout
	if asmTime <= 0 {
		asmTime = 2 * time.Minute
	}
	return &Orchestrator{
		config:    opts.Config,
		registry:  opts.Registry,
		gen:       opts.Generator,
		assembler: opts.Assembler,
		files:     opts.Files,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		asmTime:   asmTime,
		jobs:      make(map[string]*job),
		artifacts: make(map[string]string),
	}, nil
}

// JobSpec describes a job to create.
type JobSpec struct {
	Name   string
	Scenes []domain.Scene
	Script string
	// Style is appended to every image and video prompt of the job.
	Style string
	// AudioName and Audio carry an optional soundtrack upload.
	AudioName string
	Audio     []byte
}

// CreateJob registers a new idle job and makes it the active one.
func (o *Orchestrator) CreateJob(ctx context.Context, spec JobSpec) (JobSnapshot, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = "Untitled"
	}
	id := uuid.NewString()
	now := o.now()
	j := newJob(id, name, now, o.files)

	for _, sc := range spec.Scenes {
		if sc.Number < 1 {
			return JobSnapshot{}, fmt.Errorf("%w: scene number must be positive", domain.ErrInvalidInput)
		}
		if _, dup := j.scenes[sc.Number]; dup {
			return JobSnapshot{}, fmt.Errorf("%w: duplicate scene %d", domain.ErrInvalidInput, sc.Number)
		}
		j.scenes[sc.Number] = &domain.Scene{Number: sc.Number, Description: strings.TrimSpace(sc.Description)}
	}
	j.style = strings.TrimSpace(spec.Style)
	if strings.TrimSpace(spec.Script) != "" {
		j.gate.SetDraft(spec.Script)
	}
	if len(spec.Audio) > 0 {
		ref, err := o.storeAudio(ctx, id, spec.AudioName, spec.Audio)
		if err != nil {
			return JobSnapshot{}, err
		}
		j.audio = ref
	}

	o.mu.Lock()
	o.jobs[id] = j
	o.order = append(o.order, id)
	o.active = id
	o.mu.Unlock()

	o.logger.Info().Str("job_id", id).Str("name", name).Int("scenes", len(j.scenes)).Msg("job created")
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked(), nil
}

func (o *Orchestrator) storeAudio(ctx context.Context, jobID, name string, data []byte) (*domain.ResultRef, error) {
	media, err := binding.Sniff(name, data)
	if err != nil {
		return nil, err
	}
	if media.Type != domain.MediaTypeSpeech {
		return nil, fmt.Errorf("%w: audio track must be audio, got %s", domain.ErrInvalidInput, media.MIME)
	}
	key, err := o.files.Write(ctx, path.Join("uploads", jobID, "audio", "track"+media.Extension), data)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: store audio: %w", err)
	}
	return &domain.ResultRef{StorageKey: key, URL: o.files.URL(key), MIME: media.MIME}, nil
}

// CloseJob cancels in-flight work, drops the job and deletes its files. It
// returns the job that is active afterwards, possibly empty.
func (o *Orchestrator) CloseJob(ctx context.Context, jobID string) (string, error) {
	o.mu.Lock()
	j, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return "", &domain.NotFoundError{Kind: "job", ID: jobID}
	}
	delete(o.jobs, jobID)
	idx := indexOf(o.order, jobID)
	o.order = append(o.order[:idx], o.order[idx+1:]...)
	if o.active == jobID {
		switch {
		case idx > 0:
			o.active = o.order[idx-1]
		case len(o.order) > 0:
			o.active = o.order[0]
		default:
			o.active = ""
		}
	}
	next := o.active
	o.mu.Unlock()

	j.mu.Lock()
	j.closed = true
	ids := make([]string, 0, len(j.artifacts))
	for id := range j.artifacts {
		ids = append(ids, id)
	}
	j.cancelInflightLocked()
	j.cancel()
	j.mu.Unlock()

	o.unindex(ids...)

	var errs []error
	if err := j.assets.Purge(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, prefix := range []string{"uploads", "generated", "renders"} {
		if err := o.files.DeletePrefix(ctx, path.Join(prefix, jobID)); err != nil {
			errs = append(errs, err)
		}
	}
	o.logger.Info().Str("job_id", jobID).Str("next_active", next).Msg("job closed")
	if len(errs) > 0 {
		return next, fmt.Errorf("orchestrator: clean up job files: %w", errs[0])
	}
	return next, nil
}

// ListJobs returns summaries in creation order.
func (o *Orchestrator) ListJobs() []JobSummary {
	o.mu.RLock()
	jobs := make([]*job, 0, len(o.order))
	for _, id := range o.order {
		jobs = append(jobs, o.jobs[id])
	}
	active := o.active
	o.mu.RUnlock()

	out := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		j.mu.Lock()
		s := j.summaryLocked()
		j.mu.Unlock()
		s.Active = s.ID == active
		out = append(out, s)
	}
	return out
}

// ActiveJob returns the id of the active job, or empty when none is open.
func (o *Orchestrator) ActiveJob() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// SelectJob makes an open job the active one.
func (o *Orchestrator) SelectJob(jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.jobs[jobID]; !ok {
		return &domain.NotFoundError{Kind: "job", ID: jobID}
	}
	o.active = jobID
	return nil
}

// JobStatus returns a consistent snapshot of the job.
func (o *Orchestrator) JobStatus(jobID string) (JobSnapshot, error) {
	j, err := o.job(jobID)
	if err != nil {
		return JobSnapshot{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked(), nil
}

// ResetJob cancels in-flight work and discards every artifact; scenes,
// script and assets are kept and the job returns to idle.
func (o *Orchestrator) ResetJob(ctx context.Context, jobID string) (JobSnapshot, error) {
	j, err := o.job(jobID)
	if err != nil {
		return JobSnapshot{}, err
	}
	j.mu.Lock()
	j.cancelInflightLocked()
	ids := make([]string, 0, len(j.artifacts))
	for id := range j.artifacts {
		ids = append(ids, id)
	}
	j.artifacts = make(map[string]*domain.Artifact)
	j.byKey = make(map[artifactKey]string)
	j.abandoned = false
	j.touchLocked(o.now())
	o.recomputeLocked(j)
	snap := j.snapshotLocked()
	j.mu.Unlock()

	o.unindex(ids...)
	o.logger.Info().Str("job_id", jobID).Msg("job reset")
	return snap, nil
}

// AbandonJob cancels in-flight work and marks the job failed. Dispatching
// again revives it.
func (o *Orchestrator) AbandonJob(ctx context.Context, jobID string) (JobSnapshot, error) {
	j, err := o.job(jobID)
	if err != nil {
		return JobSnapshot{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	now := o.now()
	for id := range j.inflight {
		o.cancelArtifactLocked(j, id, now)
	}
	j.abandoned = true
	j.touchLocked(now)
	o.recomputeLocked(j)
	o.logger.Info().Str("job_id", jobID).Msg("job abandoned")
	return j.snapshotLocked(), nil
}

// RenderRef returns the assembled render of a completed job.
func (o *Orchestrator) RenderRef(jobID string) (domain.RenderRef, error) {
	j, err := o.job(jobID)
	if err != nil {
		return domain.RenderRef{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != domain.JobStatusComplete || j.render == nil {
		return domain.RenderRef{}, &domain.NotFoundError{Kind: "render", ID: jobID}
	}
	return *j.render, nil
}

// Close cancels all in-flight work and waits for background goroutines.
func (o *Orchestrator) Close() {
	o.mu.RLock()
	jobs := make([]*job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j)
	}
	o.mu.RUnlock()
	for _, j := range jobs {
		j.mu.Lock()
		j.cancelInflightLocked()
		j.cancel()
		j.mu.Unlock()
	}
	o.wg.Wait()
}

func (o *Orchestrator) job(jobID string) (*job, error) {
	o.mu.RLock()
	j, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil, &domain.NotFoundError{Kind: "job", ID: jobID}
	}
	return j, nil
}

func (o *Orchestrator) index(artifactID, jobID string) {
	o.mu.Lock()
	o.artifacts[artifactID] = jobID
	o.mu.Unlock()
}

func (o *Orchestrator) unindex(artifactIDs ...string) {
	if len(artifactIDs) == 0 {
		return
	}
	o.mu.Lock()
	for _, id := range artifactIDs {
		delete(o.artifacts, id)
	}
	o.mu.Unlock()
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func sortedArtifacts(in map[string]*domain.Artifact) []domain.Artifact {
	out := make([]domain.Artifact, 0, len(in))
	for _, a := range in {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].SceneNumber != out[k].SceneNumber {
			return out[i].SceneNumber < out[k].SceneNumber
		}
		return out[i].MediaType.Rank() < out[k].MediaType.Rank()
	})
	return out
}
