package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mourne/internal/domain"
	"mourne/internal/infra"
	"mourne/internal/orchestrator"
)

var errArtifactsFailed = errors.New("some artifacts failed")

type runner struct {
	jobs   *orchestrator.Orchestrator
	poll   time.Duration
	logger infra.Logger
}

// run drives one manifest to a render: create, approve, bind assets, then
// dispatch stills and speech before video so each clip has its source frame.
func (r *runner) run(ctx context.Context, m *manifest) (domain.RenderRef, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	spec := orchestrator.JobSpec{Name: m.Name, Script: m.Script, Style: m.Style}
	for _, sc := range m.Scenes {
		spec.Scenes = append(spec.Scenes, domain.Scene{Number: sc.Number, Description: sc.Description})
	}
	if m.Audio != "" {
		path := m.resolve(m.Audio)
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.RenderRef{}, fmt.Errorf("read audio: %w", err)
		}
		spec.AudioName, spec.Audio = filepath.Base(path), data
	}

	snap, err := r.jobs.CreateJob(ctx, spec)
	if err != nil {
		return domain.RenderRef{}, err
	}
	jobID := snap.ID
	log := r.logger.With().Str("job_id", jobID).Logger()
	log.Info().Str("name", snap.Name).Int("scenes", len(m.Scenes)).Msg("job created")

	text := m.Script
	if strings.TrimSpace(text) == "" {
		draft, err := r.jobs.DraftScript(ctx, jobID, m.Brief, m.Locale)
		if err != nil {
			return domain.RenderRef{}, fmt.Errorf("draft script: %w", err)
		}
		text = draft.Text
		log.Info().Int("chars", len(text)).Msg("script drafted")
	}
	version, err := r.jobs.ApproveScript(jobID, text)
	if err != nil {
		return domain.RenderRef{}, err
	}
	log.Info().Int("version", version).Msg("script approved")

	for _, sc := range m.Scenes {
		for _, p := range sc.Assets {
			path := m.resolve(p)
			data, err := os.ReadFile(path)
			if err != nil {
				return domain.RenderRef{}, fmt.Errorf("read asset: %w", err)
			}
			asset, err := r.jobs.UploadAsset(ctx, jobID, filepath.Base(path), data)
			if err != nil {
				return domain.RenderRef{}, err
			}
			if _, err := r.jobs.BindAsset(ctx, jobID, asset.ID, sc.Number); err != nil {
				return domain.RenderRef{}, err
			}
			log.Info().Str("asset_id", asset.ID).Int("scene", sc.Number).Str("media_type", string(asset.MediaType)).Msg("asset bound")
		}
	}

	phases := [][]domain.MediaType{
		{domain.MediaTypeImage, domain.MediaTypeSpeech},
		{domain.MediaTypeVideo},
	}
	for _, phase := range phases {
		for _, sc := range m.Scenes {
			for _, mt := range phase {
				if !sc.wants(mt) {
					continue
				}
				art, err := r.jobs.Dispatch(ctx, jobID, sc.Number, mt, orchestrator.DispatchOptions{Prompt: sc.Prompt, Locale: m.Locale})
				if err != nil {
					return domain.RenderRef{}, fmt.Errorf("scene %d %s: %w", sc.Number, mt, err)
				}
				log.Debug().Str("artifact_id", art.ID).Int("scene", sc.Number).Str("media_type", string(mt)).Msg("dispatched")
			}
		}
		if _, err := r.wait(ctx, jobID, settled); err != nil {
			return domain.RenderRef{}, err
		}
	}

	final, err := r.wait(ctx, jobID, func(s orchestrator.JobSnapshot) bool {
		return s.Render != nil || s.RenderError != "" || s.Status != domain.JobStatusComplete
	})
	if err != nil {
		return domain.RenderRef{}, err
	}
	if failed := failures(final); len(failed) > 0 {
		return domain.RenderRef{}, fmt.Errorf("%w: %s", errArtifactsFailed, strings.Join(failed, "; "))
	}
	if final.RenderError != "" {
		return domain.RenderRef{}, fmt.Errorf("assembly: %s", final.RenderError)
	}
	if final.Render == nil {
		return domain.RenderRef{}, fmt.Errorf("job ended %s without a render", final.Status)
	}
	log.Info().Str("url", final.Render.URL).Int("items", final.Render.Items).Msg("render ready")
	return *final.Render, nil
}

func (r *runner) wait(ctx context.Context, jobID string, done func(orchestrator.JobSnapshot) bool) (orchestrator.JobSnapshot, error) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		snap, err := r.jobs.JobStatus(jobID)
		if err != nil {
			return orchestrator.JobSnapshot{}, err
		}
		if done(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func settled(s orchestrator.JobSnapshot) bool {
	for _, a := range s.Artifacts {
		if a.Status == domain.ArtifactStatusGenerating {
			return false
		}
	}
	return true
}

func failures(s orchestrator.JobSnapshot) []string {
	var out []string
	for _, a := range s.Artifacts {
		if a.Status != domain.ArtifactStatusFailed || a.Abandoned {
			continue
		}
		msg := "unknown error"
		if a.Error != nil {
			msg = a.Error.Error()
		}
		out = append(out, fmt.Sprintf("scene %d %s: %s", a.SceneNumber, a.MediaType, msg))
	}
	return out
}
