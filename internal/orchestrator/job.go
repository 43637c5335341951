package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"mourne/internal/binding"
	"mourne/internal/domain"
	"mourne/internal/generator"
	"mourne/internal/scriptgate"
	"mourne/internal/storage"
)

type artifactKey struct {
	scene int
	media domain.MediaType
}

type job struct {
	mu sync.Mutex

	id        string
	name      string
	status    domain.JobStatus
	audio     *domain.ResultRef
	style     string
	createdAt time.Time
	updatedAt time.Time

	scenes    map[int]*domain.Scene
	artifacts map[string]*domain.Artifact
	byKey     map[artifactKey]string
	inflight  map[string]*generator.Handle

	assets *binding.Store
	gate   *scriptgate.Gate

	// revision changes whenever the set of artifact results changes; an
	// assembly started at an older revision is discarded.
	revision   uint64
	assembling uint64
	render     *domain.RenderRef
	renderErr  string
	abandoned  bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newJob(id, name string, now time.Time, files *storage.FileStore) *job {
	ctx, cancel := context.WithCancel(context.Background())
	return &job{
		id:        id,
		name:      name,
		status:    domain.JobStatusIdle,
		createdAt: now,
		updatedAt: now,
		scenes:    make(map[int]*domain.Scene),
		artifacts: make(map[string]*domain.Artifact),
		byKey:     make(map[artifactKey]string),
		inflight:  make(map[string]*generator.Handle),
		assets:    binding.NewStore(id, files),
		gate:      scriptgate.New(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (j *job) touchLocked(now time.Time) {
	j.updatedAt = now
}

func (j *job) isClosed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

func (j *job) cancelInflightLocked() {
	for id, h := range j.inflight {
		h.Cancel()
		delete(j.inflight, id)
	}
}

func (j *job) artifactForLocked(scene int, media domain.MediaType) *domain.Artifact {
	id, ok := j.byKey[artifactKey{scene: scene, media: media}]
	if !ok {
		return nil
	}
	return j.artifacts[id]
}

func (j *job) dropArtifactLocked(id string) {
	a, ok := j.artifacts[id]
	if !ok {
		return
	}
	if h, ok := j.inflight[id]; ok {
		h.Cancel()
		delete(j.inflight, id)
	}
	delete(j.artifacts, id)
	delete(j.byKey, artifactKey{scene: a.SceneNumber, media: a.MediaType})
}

// JobSummary is the list-jobs view of a job.
type JobSummary struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    domain.JobStatus `json:"status"`
	Scenes    int              `json:"scenes"`
	Artifacts int              `json:"artifacts"`
	Progress  int              `json:"progress"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SceneView is a scene with the assets currently bound to it.
type SceneView struct {
	Number      int               `json:"number"`
	Description string            `json:"description"`
	BoundAssets map[string]string `json:"bound_assets,omitempty"`
}

// ArtifactView is the externally visible shape of an artifact.
type ArtifactView struct {
	ID          string                `json:"id"`
	SceneNumber int                   `json:"scene_number"`
	MediaType   domain.MediaType      `json:"media_type"`
	Status      domain.ArtifactStatus `json:"status"`
	Progress    int                   `json:"progress"`
	Result      *domain.ResultRef     `json:"result,omitempty"`
	Error       *domain.ProviderError `json:"error,omitempty"`
	AttemptID   string                `json:"attempt_id"`
	Attempts    int                   `json:"attempts"`
	Provider    string                `json:"provider,omitempty"`
	Abandoned   bool                  `json:"abandoned,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func viewOf(a domain.Artifact) ArtifactView {
	return ArtifactView{
		ID:          a.ID,
		SceneNumber: a.SceneNumber,
		MediaType:   a.MediaType,
		Status:      a.Status,
		Progress:    a.Progress,
		Result:      a.Result,
		Error:       a.Error,
		AttemptID:   a.AttemptID,
		Attempts:    a.Attempts,
		Provider:    a.Provider,
		Abandoned:   a.Abandoned,
		StartedAt:   a.StartedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// ScriptView reports the draft and whether it is approved.
type ScriptView struct {
	Text            string `json:"text"`
	Version         int    `json:"version"`
	ApprovedVersion int    `json:"approved_version,omitempty"`
	Approved        bool   `json:"approved"`
}

func scriptViewOf(s domain.Script) ScriptView {
	return ScriptView{Text: s.Text, Version: s.Version, ApprovedVersion: s.ApprovedVersion, Approved: s.Approved()}
}

// JobSnapshot is the full get-job-status view.
type JobSnapshot struct {
	JobSummary
	Script      ScriptView        `json:"script"`
	SceneList   []SceneView       `json:"scene_list"`
	Artifacts   []ArtifactView    `json:"artifact_list"`
	Audio       *domain.ResultRef `json:"audio,omitempty"`
	Style       string            `json:"style,omitempty"`
	Render      *domain.RenderRef `json:"render,omitempty"`
	RenderError string            `json:"render_error,omitempty"`
	Revision    uint64            `json:"revision"`
}

func (j *job) summaryLocked() JobSummary {
	s := JobSummary{
		ID:        j.id,
		Name:      j.name,
		Status:    j.status,
		Scenes:    len(j.scenes),
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
	total := 0
	for _, a := range j.artifacts {
		if a.Abandoned {
			continue
		}
		s.Artifacts++
		total += a.Progress
	}
	if s.Artifacts > 0 {
		s.Progress = total / s.Artifacts
	}
	return s
}

func (j *job) snapshotLocked() JobSnapshot {
	snap := JobSnapshot{
		JobSummary:  j.summaryLocked(),
		Script:      scriptViewOf(j.gate.Snapshot()),
		Audio:       j.audio,
		Style:       j.style,
		RenderError: j.renderErr,
		Revision:    j.revision,
	}
	if j.render != nil {
		r := *j.render
		snap.Render = &r
	}

	bound := make(map[int]map[string]string)
	for _, asset := range j.assets.List() {
		if asset.BoundScene == nil {
			continue
		}
		n := *asset.BoundScene
		if bound[n] == nil {
			bound[n] = make(map[string]string)
		}
		bound[n][string(asset.MediaType)] = asset.ID
	}
	numbers := make([]int, 0, len(j.scenes))
	for n := range j.scenes {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		sc := j.scenes[n]
		snap.SceneList = append(snap.SceneList, SceneView{Number: sc.Number, Description: sc.Description, BoundAssets: bound[n]})
	}
	for _, a := range sortedArtifacts(j.artifacts) {
		snap.Artifacts = append(snap.Artifacts, viewOf(a))
	}
	return snap
}
