// Package assembly turns the ordered artifacts of a completed job into a
// render bundle: a manifest plus an archive of every locally stored file.
package assembly

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"mourne/internal/domain"
	"mourne/internal/infra"
	"mourne/internal/storage"
	"mourne/pkg/zip"
)

// Item is one artifact reference in assembly order.
type Item struct {
	SceneNumber int
	MediaType   domain.MediaType
	Ref         domain.ResultRef
}

// Request is the notification sent once a job reaches complete.
type Request struct {
	JobID    string
	Name     string
	Revision uint64
	Audio    *domain.ResultRef
	Items    []Item
}

// Assembler is the collaborator notified with a completed job.
type Assembler interface {
	Assemble(ctx context.Context, req Request) (domain.RenderRef, error)
}

type manifestEntry struct {
	Scene     int    `json:"scene"`
	MediaType string `json:"media_type"`
	File      string `json:"file,omitempty"`
	URL       string `json:"url"`
	MIME      string `json:"mime,omitempty"`
	AssetID   string `json:"asset_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

type manifest struct {
	JobID     string          `json:"job_id"`
	Name      string          `json:"name"`
	Revision  uint64          `json:"revision"`
	Audio     *manifestEntry  `json:"audio,omitempty"`
	Items     []manifestEntry `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// Bundler writes render bundles into the FileStore.
type Bundler struct {
	store  *storage.FileStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewBundler(store *storage.FileStore, logger *infra.Logger) *Bundler {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "assembly").Logger()
	}
	return &Bundler{store: store, logger: l, now: func() time.Time { return time.Now().UTC() }}
}

// Assemble writes renders/<job>/render-<revision>.zip and a sibling manifest.
// Items without stored bytes are listed in the manifest by URL only.
func (b *Bundler) Assemble(ctx context.Context, req Request) (domain.RenderRef, error) {
	if len(req.Items) == 0 {
		return domain.RenderRef{}, fmt.Errorf("%w: nothing to assemble", domain.ErrInvalidInput)
	}
	createdAt := b.now()
	m := manifest{JobID: req.JobID, Name: req.Name, Revision: req.Revision, CreatedAt: createdAt}
	var files []zip.Asset

	add := func(name string, ref domain.ResultRef) (manifestEntry, error) {
		entry := manifestEntry{URL: ref.URL, MIME: ref.MIME, AssetID: ref.AssetID, Provider: ref.Provider}
		if ref.StorageKey == "" {
			return entry, nil
		}
		data, err := b.store.Read(ctx, ref.StorageKey)
		if err != nil {
			return entry, fmt.Errorf("assembly: read %s: %w", ref.StorageKey, err)
		}
		entry.File = name + path.Ext(ref.StorageKey)
		files = append(files, zip.Asset{Filename: entry.File, MIME: ref.MIME, Data: data})
		return entry, nil
	}

	if req.Audio != nil {
		entry, err := add("audio", *req.Audio)
		if err != nil {
			return domain.RenderRef{}, err
		}
		entry.MediaType = "audio"
		m.Audio = &entry
	}
	for _, item := range req.Items {
		entry, err := add(fmt.Sprintf("scene-%03d-%s", item.SceneNumber, item.MediaType), item.Ref)
		if err != nil {
			return domain.RenderRef{}, err
		}
		entry.Scene = item.SceneNumber
		entry.MediaType = string(item.MediaType)
		m.Items = append(m.Items, entry)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return domain.RenderRef{}, fmt.Errorf("assembly: encode manifest: %w", err)
	}
	files = append(files, zip.Asset{Filename: "manifest.json", MIME: "application/json", Data: raw})

	archive, err := zip.ArchiveAssets(files)
	if err != nil {
		return domain.RenderRef{}, fmt.Errorf("assembly: archive: %w", err)
	}
	base := path.Join("renders", req.JobID, fmt.Sprintf("render-%d", req.Revision))
	manifestKey, err := b.store.Write(ctx, base+".json", raw)
	if err != nil {
		return domain.RenderRef{}, fmt.Errorf("assembly: write manifest: %w", err)
	}
	bundleKey, err := b.store.Write(ctx, base+".zip", archive)
	if err != nil {
		return domain.RenderRef{}, fmt.Errorf("assembly: write bundle: %w", err)
	}
	b.logger.Info().Str("job_id", req.JobID).Uint64("revision", req.Revision).Int("items", len(m.Items)).Msg("render bundle written")
	return domain.RenderRef{
		JobID:       req.JobID,
		Revision:    req.Revision,
		StorageKey:  bundleKey,
		URL:         b.store.URL(bundleKey),
		ManifestURL: b.store.URL(manifestKey),
		Items:       len(m.Items),
		CreatedAt:   createdAt,
	}, nil
}
