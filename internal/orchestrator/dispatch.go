package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mourne/internal/assembly"
	"mourne/internal/domain"
	"mourne/internal/generator"
	"mourne/internal/providers"
)

// DispatchOptions tweaks a single dispatch.
type DispatchOptions struct {
	// Prompt overrides the scene description.
	Prompt string
	Locale string
}

// Dispatch starts generation of one (scene, media type) artifact. Gate,
// binding and configuration problems are returned synchronously and leave
// no artifact behind; provider failures arrive later on the artifact.
func (o *Orchestrator) Dispatch(ctx context.Context, jobID string, scene int, media domain.MediaType, opts DispatchOptions) (ArtifactView, error) {
	if media.Rank() >= len(domain.MediaTypes) {
		return ArtifactView{}, fmt.Errorf("%w: unsupported media type %q", domain.ErrInvalidInput, media)
	}
	j, err := o.job(jobID)
	if err != nil {
		return ArtifactView{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ArtifactView{}, &domain.NotFoundError{Kind: "job", ID: jobID}
	}
	sc, ok := j.scenes[scene]
	if !ok {
		return ArtifactView{}, &domain.NotFoundError{Kind: "scene", ID: fmt.Sprint(scene)}
	}
	if err := j.gate.Check(); err != nil {
		return ArtifactView{}, err
	}
	existing := j.artifactForLocked(scene, media)
	if existing != nil && existing.Status == domain.ArtifactStatusGenerating {
		return ArtifactView{}, fmt.Errorf("%w: scene %d %s", domain.ErrGenerationInProgress, scene, media)
	}

	now := o.now()
	if asset, ok := j.assets.Lookup(scene, media); ok {
		art := o.upsertArtifactLocked(j, existing, scene, media, now)
		ref := asset.Ref()
		art.Status = domain.ArtifactStatusComplete
		art.Progress = 100
		art.Result = &ref
		art.Provider = ""
		j.abandoned = false
		j.revision++
		j.touchLocked(now)
		o.recomputeLocked(j)
		o.logger.Info().Str("job_id", jobID).Str("artifact_id", art.ID).Int("scene", scene).Str("asset_id", asset.ID).Msg("artifact satisfied by bound asset")
		return viewOf(*art), nil
	}

	prompt := strings.TrimSpace(opts.Prompt)
	if prompt == "" {
		prompt = sc.Description
	}
	if prompt == "" {
		return ArtifactView{}, fmt.Errorf("%w: scene %d has no description", domain.ErrInvalidInput, scene)
	}
	if j.style != "" && media != domain.MediaTypeSpeech {
		prompt += "\n\nStyle: " + j.style
	}

	handle, err := o.registry.Resolve(media.Capability(), o.config.Snapshot())
	if err != nil {
		return ArtifactView{}, err
	}

	req := generator.Request{
		JobID:       jobID,
		SceneNumber: scene,
		MediaType:   media,
		Capability:  media.Capability(),
		Prompt:      prompt,
		Locale:      opts.Locale,
	}
	if media == domain.MediaTypeVideo {
		if still := j.artifactForLocked(scene, domain.MediaTypeImage); still != nil && still.Status == domain.ArtifactStatusComplete && still.Result != nil {
			req.Source = &providers.SourceMedia{URL: still.Result.URL, MIME: still.Result.MIME}
			req.SourceKey = still.Result.StorageKey
		}
	}

	art := o.upsertArtifactLocked(j, existing, scene, media, now)
	art.AttemptID = uuid.NewString()
	art.Attempts++
	art.Provider = handle.Provider
	req.ArtifactID = art.ID
	req.AttemptID = art.AttemptID

	h := o.gen.Generate(j.ctx, req, handle)
	j.inflight[art.ID] = h
	j.abandoned = false
	j.revision++
	j.touchLocked(now)
	o.recomputeLocked(j)

	o.wg.Add(1)
	go o.consume(j, art.ID, h)

	o.logger.Info().
		Str("job_id", jobID).
		Str("artifact_id", art.ID).
		Str("attempt_id", art.AttemptID).
		Int("scene", scene).
		Str("media_type", string(media)).
		Str("provider", handle.Provider).
		Msg("artifact dispatched")
	return viewOf(*art), nil
}

// upsertArtifactLocked resets an existing artifact for a fresh attempt,
// keeping its id, or creates a new one in generating state.
func (o *Orchestrator) upsertArtifactLocked(j *job, existing *domain.Artifact, scene int, media domain.MediaType, now time.Time) *domain.Artifact {
	art := existing
	if art == nil {
		art = &domain.Artifact{ID: uuid.NewString(), SceneNumber: scene, MediaType: media}
		j.artifacts[art.ID] = art
		j.byKey[artifactKey{scene: scene, media: media}] = art.ID
		o.index(art.ID, j.id)
	}
	art.Status = domain.ArtifactStatusGenerating
	art.Progress = 0
	art.Result = nil
	art.Error = nil
	art.AttemptID = ""
	art.Abandoned = false
	art.StartedAt = now
	art.UpdatedAt = now
	return art
}

func (o *Orchestrator) consume(j *job, artifactID string, h *generator.Handle) {
	defer o.wg.Done()
	for ev := range h.Events() {
		o.apply(j, artifactID, ev)
	}
}

// apply folds one generator event into the artifact. Events from a
// superseded attempt, or for an artifact no longer generating, are dropped;
// progress lower than the last accepted value is ignored.
func (o *Orchestrator) apply(j *job, artifactID string, ev generator.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	art, ok := j.artifacts[artifactID]
	if !ok || j.closed || art.AttemptID != ev.AttemptID || art.Status != domain.ArtifactStatusGenerating {
		return
	}
	now := o.now()
	switch ev.Kind {
	case generator.EventProgress:
		if ev.Progress <= art.Progress {
			return
		}
		art.Progress = ev.Progress
		art.UpdatedAt = now
		return
	case generator.EventSuccess:
		art.Status = domain.ArtifactStatusComplete
		art.Progress = 100
		art.Result = ev.Result
	case generator.EventFailure:
		art.Status = domain.ArtifactStatusFailed
		art.Error = ev.Err
	}
	art.UpdatedAt = now
	delete(j.inflight, artifactID)
	j.revision++
	j.touchLocked(now)
	o.recomputeLocked(j)

	log := o.logger.Info()
	if art.Status == domain.ArtifactStatusFailed && art.Error != nil {
		log = o.logger.Warn().Str("kind", string(art.Error.Kind))
	}
	log.Str("job_id", j.id).Str("artifact_id", art.ID).Str("attempt_id", art.AttemptID).Str("status", string(art.Status)).Str("job_status", string(j.status)).Msg("artifact finished")
}

// CancelArtifact stops an in-flight attempt and marks it failed with
// Cancelled. Late events from the attempt are ignored. Cancelling an
// artifact that is not generating is a no-op.
func (o *Orchestrator) CancelArtifact(ctx context.Context, artifactID string) (ArtifactView, error) {
	o.mu.RLock()
	jobID, ok := o.artifacts[artifactID]
	o.mu.RUnlock()
	if !ok {
		return ArtifactView{}, &domain.NotFoundError{Kind: "artifact", ID: artifactID}
	}
	j, err := o.job(jobID)
	if err != nil {
		return ArtifactView{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	art, ok := j.artifacts[artifactID]
	if !ok {
		return ArtifactView{}, &domain.NotFoundError{Kind: "artifact", ID: artifactID}
	}
	if art.Status == domain.ArtifactStatusGenerating {
		now := o.now()
		o.cancelArtifactLocked(j, artifactID, now)
		j.touchLocked(now)
		o.recomputeLocked(j)
		o.logger.Info().Str("job_id", jobID).Str("artifact_id", artifactID).Msg("artifact cancelled")
	}
	return viewOf(*art), nil
}

func (o *Orchestrator) cancelArtifactLocked(j *job, artifactID string, now time.Time) {
	if h, ok := j.inflight[artifactID]; ok {
		h.Cancel()
		delete(j.inflight, artifactID)
	}
	art, ok := j.artifacts[artifactID]
	if !ok || art.Status != domain.ArtifactStatusGenerating {
		return
	}
	art.Status = domain.ArtifactStatusFailed
	art.Error = &domain.ProviderError{Kind: domain.FailureCancelled, Provider: art.Provider, Detail: "generation cancelled"}
	art.UpdatedAt = now
	j.revision++
}

// recomputeLocked derives the job status from its current artifacts and
// starts assembly when the job turns complete.
func (o *Orchestrator) recomputeLocked(j *job) {
	prev := j.status
	var next domain.JobStatus
	counted, complete := 0, 0
	for _, a := range j.artifacts {
		if a.Abandoned {
			continue
		}
		counted++
		if a.Status == domain.ArtifactStatusComplete {
			complete++
		}
	}
	switch {
	case j.abandoned:
		next = domain.JobStatusFailed
	case counted == 0:
		next = domain.JobStatusIdle
	case complete == counted:
		next = domain.JobStatusComplete
	default:
		next = domain.JobStatusGenerating
	}
	j.status = next

	if next != domain.JobStatusComplete {
		j.render = nil
		j.renderErr = ""
		return
	}
	if prev == domain.JobStatusComplete && j.render != nil && j.render.Revision == j.revision {
		return
	}
	j.render = nil
	j.renderErr = ""
	if o.assembler == nil || j.assembling == j.revision {
		return
	}
	j.assembling = j.revision
	req := assembly.Request{JobID: j.id, Name: j.name, Revision: j.revision, Audio: j.audio}
	for _, a := range sortedArtifacts(j.artifacts) {
		if a.Abandoned || a.Result == nil {
			continue
		}
		req.Items = append(req.Items, assembly.Item{SceneNumber: a.SceneNumber, MediaType: a.MediaType, Ref: *a.Result})
	}
	o.wg.Add(1)
	go o.assemble(j, req)
}

func (o *Orchestrator) assemble(j *job, req assembly.Request) {
	defer o.wg.Done()
	ctx, cancel := context.WithTimeout(j.ctx, o.asmTime)
	defer cancel()
	ref, err := o.assembler.Assemble(ctx, req)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.assembling == req.Revision {
		j.assembling = 0
	}
	if j.closed || j.revision != req.Revision || j.status != domain.JobStatusComplete {
		o.logger.Debug().Str("job_id", j.id).Uint64("revision", req.Revision).Msg("discarding stale assembly")
		return
	}
	if err != nil {
		j.renderErr = err.Error()
		o.logger.Error().Err(err).Str("job_id", j.id).Uint64("revision", req.Revision).Msg("assembly failed")
		return
	}
	j.render = &ref
	o.logger.Info().Str("job_id", j.id).Uint64("revision", req.Revision).Str("render", ref.StorageKey).Msg("job assembled")
}
