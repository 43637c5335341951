package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mourne/internal/domain"
	"mourne/internal/providers"
)

// PutScene creates a scene or updates its description. Existing artifacts
// are kept; dispatch again to regenerate them.
func (o *Orchestrator) PutScene(jobID string, number int, description string) (SceneView, error) {
	if number < 1 {
		return SceneView{}, fmt.Errorf("%w: scene number must be positive", domain.ErrInvalidInput)
	}
	j, err := o.job(jobID)
	if err != nil {
		return SceneView{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	sc, ok := j.scenes[number]
	if !ok {
		sc = &domain.Scene{Number: number}
		j.scenes[number] = sc
	}
	sc.Description = strings.TrimSpace(description)
	j.touchLocked(o.now())
	return SceneView{Number: sc.Number, Description: sc.Description}, nil
}

// RemoveScene deletes a scene and its artifacts, cancelling in-flight work.
// Assets bound to the scene stay uploaded and their binding is ignored.
func (o *Orchestrator) RemoveScene(ctx context.Context, jobID string, number int) error {
	j, err := o.job(jobID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	if _, ok := j.scenes[number]; !ok {
		j.mu.Unlock()
		return &domain.NotFoundError{Kind: "scene", ID: fmt.Sprint(number)}
	}
	var dropped []string
	for id, a := range j.artifacts {
		if a.SceneNumber == number {
			j.dropArtifactLocked(id)
			dropped = append(dropped, id)
		}
	}
	delete(j.scenes, number)
	if len(dropped) > 0 {
		j.revision++
	}
	j.touchLocked(o.now())
	o.recomputeLocked(j)
	j.mu.Unlock()

	o.unindex(dropped...)
	o.logger.Info().Str("job_id", jobID).Int("scene", number).Int("artifacts", len(dropped)).Msg("scene removed")
	return nil
}

// AbandonScene cancels the scene's in-flight work and excludes its artifacts
// from completion. Dispatching the scene again brings them back.
func (o *Orchestrator) AbandonScene(ctx context.Context, jobID string, number int) (JobSnapshot, error) {
	j, err := o.job(jobID)
	if err != nil {
		return JobSnapshot{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.scenes[number]; !ok {
		return JobSnapshot{}, &domain.NotFoundError{Kind: "scene", ID: fmt.Sprint(number)}
	}
	now := o.now()
	for id, a := range j.artifacts {
		if a.SceneNumber != number {
			continue
		}
		o.cancelArtifactLocked(j, id, now)
		a.Abandoned = true
	}
	j.revision++
	j.touchLocked(now)
	o.recomputeLocked(j)
	return j.snapshotLocked(), nil
}

// SetScript stores a new draft. Editing the text withdraws approval;
// generation already in flight continues.
func (o *Orchestrator) SetScript(jobID, text string) (ScriptView, error) {
	j, err := o.job(jobID)
	if err != nil {
		return ScriptView{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.gate.SetDraft(text)
	j.touchLocked(o.now())
	return scriptViewOf(s), nil
}

// ApproveScript approves text and returns the approved version.
func (o *Orchestrator) ApproveScript(jobID, text string) (int, error) {
	j, err := o.job(jobID)
	if err != nil {
		return 0, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	v, err := j.gate.Approve(text)
	if err != nil {
		return 0, err
	}
	j.touchLocked(o.now())
	o.logger.Info().Str("job_id", jobID).Int("version", v).Msg("script approved")
	return v, nil
}

// DraftScript asks the configured text provider for a script based on brief
// and stores it as an unapproved draft. The call blocks on the provider but
// does not hold the job lock meanwhile.
func (o *Orchestrator) DraftScript(ctx context.Context, jobID, brief, locale string) (ScriptView, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return ScriptView{}, fmt.Errorf("%w: brief is empty", domain.ErrInvalidInput)
	}
	j, err := o.job(jobID)
	if err != nil {
		return ScriptView{}, err
	}
	j.mu.Lock()
	scenes := len(j.scenes)
	j.mu.Unlock()

	handle, err := o.registry.Resolve(domain.CapabilityText, o.config.Snapshot())
	if err != nil {
		return ScriptView{}, err
	}
	res, err := handle.Adapter.Generate(ctx, providers.Request{
		Capability: domain.CapabilityText,
		Model:      handle.Model,
		Credential: handle.Credential,
		Prompt:     draftPrompt(brief, scenes),
		Locale:     locale,
	}, nil)
	text := ""
	if res != nil {
		text = providers.CleanText(res.Text)
	}
	if err == nil && text == "" {
		err = providers.Invalid(handle.Provider, "empty script draft")
	}
	if err != nil {
		return ScriptView{}, &domain.ProviderError{Kind: providers.Classify(err), Provider: handle.Provider, Detail: err.Error()}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ScriptView{}, &domain.NotFoundError{Kind: "job", ID: jobID}
	}
	s := j.gate.SetDraft(text)
	j.touchLocked(o.now())
	return scriptViewOf(s), nil
}

func draftPrompt(brief string, scenes int) string {
	var b strings.Builder
	b.WriteString("Write a short narration script for a cinematic music video.\n")
	if scenes > 0 {
		fmt.Fprintf(&b, "Use exactly %d numbered scenes, one paragraph each.\n", scenes)
	}
	b.WriteString("Brief: ")
	b.WriteString(brief)
	return b.String()
}

// UploadAsset stores a custom asset for the job, unbound.
func (o *Orchestrator) UploadAsset(ctx context.Context, jobID, name string, data []byte) (domain.CustomAsset, error) {
	j, err := o.job(jobID)
	if err != nil {
		return domain.CustomAsset{}, err
	}
	if j.isClosed() {
		return domain.CustomAsset{}, &domain.NotFoundError{Kind: "job", ID: jobID}
	}
	asset, err := j.assets.Upload(ctx, name, data)
	if err != nil {
		return domain.CustomAsset{}, err
	}
	// CloseJob marks the job closed before purging, so an upload that lands
	// after the purge is caught here.
	if j.isClosed() {
		if _, err := j.assets.Remove(ctx, asset.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn().Err(err).Str("job_id", jobID).Str("asset_id", asset.ID).Msg("remove upload of closed job")
		}
		return domain.CustomAsset{}, &domain.NotFoundError{Kind: "job", ID: jobID}
	}
	o.logger.Info().Str("job_id", jobID).Str("asset_id", asset.ID).Str("media_type", string(asset.MediaType)).Msg("asset uploaded")
	return asset, nil
}

func (o *Orchestrator) ListAssets(jobID string) ([]domain.CustomAsset, error) {
	j, err := o.job(jobID)
	if err != nil {
		return nil, err
	}
	return j.assets.List(), nil
}

// BindAsset binds an asset to a scene. If the scene's artifact for that
// media type came from a previous binding, it is switched to the new asset
// as a fresh success. Moving an asset away from another scene drops the
// artifacts it satisfied there.
func (o *Orchestrator) BindAsset(ctx context.Context, jobID, assetID string, scene int) (domain.CustomAsset, error) {
	j, err := o.job(jobID)
	if err != nil {
		return domain.CustomAsset{}, err
	}
	j.mu.Lock()
	asset, replaced, dropped, err := o.bindLocked(j, assetID, scene)
	j.mu.Unlock()
	if err != nil {
		return domain.CustomAsset{}, err
	}
	o.unindex(dropped...)

	ev := o.logger.Info().Str("job_id", jobID).Str("asset_id", asset.ID).Int("scene", scene).Int("dropped", len(dropped))
	if replaced != nil {
		ev = ev.Str("replaced_asset_id", replaced.ID)
	}
	ev.Msg("asset bound")
	return asset, nil
}

func (o *Orchestrator) bindLocked(j *job, assetID string, scene int) (domain.CustomAsset, *domain.CustomAsset, []string, error) {
	if _, ok := j.scenes[scene]; !ok {
		return domain.CustomAsset{}, nil, nil, &domain.NotFoundError{Kind: "scene", ID: fmt.Sprint(scene)}
	}
	before, ok := j.assets.Get(assetID)
	if !ok {
		return domain.CustomAsset{}, nil, nil, &domain.NotFoundError{Kind: "asset", ID: assetID}
	}
	asset, replaced, err := j.assets.Bind(assetID, scene)
	if err != nil {
		return domain.CustomAsset{}, nil, nil, err
	}
	var dropped []string
	if before.BoundScene != nil && *before.BoundScene != scene {
		dropped = o.dropSceneAssetArtifactsLocked(j, *before.BoundScene, assetID)
	}
	now := o.now()
	if art := j.artifactForLocked(scene, asset.MediaType); art != nil &&
		art.Status == domain.ArtifactStatusComplete && art.Result != nil && art.Result.AssetID != "" && art.Result.AssetID != asset.ID {
		ref := asset.Ref()
		art.Result = &ref
		art.UpdatedAt = now
		j.revision++
		o.recomputeLocked(j)
	}
	j.touchLocked(now)
	return asset, replaced, dropped, nil
}

// UnbindAsset detaches an asset from its scene and drops the artifact it
// was satisfying.
func (o *Orchestrator) UnbindAsset(ctx context.Context, jobID, assetID string) (domain.CustomAsset, error) {
	j, err := o.job(jobID)
	if err != nil {
		return domain.CustomAsset{}, err
	}
	j.mu.Lock()
	prev, err := j.assets.Unbind(assetID)
	if err != nil {
		j.mu.Unlock()
		return domain.CustomAsset{}, err
	}
	dropped := o.dropAssetArtifactsLocked(j, assetID)
	j.mu.Unlock()
	o.unindex(dropped...)
	prev.BoundScene = nil
	return prev, nil
}

// RemoveAsset deletes an asset and its file, and drops the artifacts whose
// result was that asset.
func (o *Orchestrator) RemoveAsset(ctx context.Context, jobID, assetID string) error {
	j, err := o.job(jobID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	asset, err := j.assets.Forget(assetID)
	if err != nil {
		j.mu.Unlock()
		return err
	}
	dropped := o.dropAssetArtifactsLocked(j, assetID)
	j.mu.Unlock()
	o.unindex(dropped...)

	if err := j.assets.DeleteFile(ctx, asset); err != nil {
		return err
	}
	o.logger.Info().Str("job_id", jobID).Str("asset_id", assetID).Int("artifacts", len(dropped)).Msg("asset removed")
	return nil
}

func (o *Orchestrator) dropAssetArtifactsLocked(j *job, assetID string) []string {
	return o.dropSceneAssetArtifactsLocked(j, 0, assetID)
}

// dropSceneAssetArtifactsLocked drops artifacts whose result is assetID,
// limited to one scene unless scene is 0.
func (o *Orchestrator) dropSceneAssetArtifactsLocked(j *job, scene int, assetID string) []string {
	var dropped []string
	for id, a := range j.artifacts {
		if scene != 0 && a.SceneNumber != scene {
			continue
		}
		if a.Result != nil && a.Result.AssetID == assetID {
			j.dropArtifactLocked(id)
			dropped = append(dropped, id)
		}
	}
	if len(dropped) > 0 {
		j.revision++
		j.touchLocked(o.now())
		o.recomputeLocked(j)
	}
	return dropped
}
