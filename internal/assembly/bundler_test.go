package assembly

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"mourne/internal/domain"
	"mourne/internal/storage"
)

func TestAssembleWritesBundleAndManifest(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir(), "http://media.test/static")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	imgKey, _ := store.Write(ctx, "generated/j1/scene-001-image-a.png", []byte("img"))
	audioKey, _ := store.Write(ctx, "uploads/j1/audio/track.wav", []byte("wav"))

	b := NewBundler(store, nil)
	ref, err := b.Assemble(ctx, Request{
		JobID:    "j1",
		Name:     "Demo",
		Revision: 7,
		Audio:    &domain.ResultRef{StorageKey: audioKey, URL: store.URL(audioKey), MIME: "audio/wav"},
		Items: []Item{
			{SceneNumber: 1, MediaType: domain.MediaTypeImage, Ref: domain.ResultRef{StorageKey: imgKey, URL: store.URL(imgKey), MIME: "image/png"}},
			{SceneNumber: 2, MediaType: domain.MediaTypeVideo, Ref: domain.ResultRef{URL: "https://cdn.example.com/v.mp4", MIME: "video/mp4"}},
		},
	})
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if ref.StorageKey != "renders/j1/render-7.zip" || ref.Items != 2 || ref.Revision != 7 {
		t.Fatalf("ref = %+v", ref)
	}
	if ref.ManifestURL != "http://media.test/static/renders/j1/render-7.json" {
		t.Fatalf("manifest url = %q", ref.ManifestURL)
	}

	raw, err := store.Read(ctx, ref.StorageKey)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"audio.wav", "scene-001-image.png", "manifest.json"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entries = %v, want %v", names, want)
		}
	}

	mraw, err := store.Read(ctx, "renders/j1/render-7.json")
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m manifest
	if err := json.Unmarshal(mraw, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(m.Items) != 2 || m.Items[1].File != "" || m.Items[1].URL != "https://cdn.example.com/v.mp4" {
		t.Fatalf("manifest items = %+v", m.Items)
	}
	if m.Audio == nil || m.Audio.File != "audio.wav" {
		t.Fatalf("manifest audio = %+v", m.Audio)
	}
}

func TestAssembleRejectsEmptyJob(t *testing.T) {
	store, _ := storage.NewFileStore(t.TempDir(), "")
	_, err := NewBundler(store, nil).Assemble(context.Background(), Request{JobID: "j"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAssembleMissingFile(t *testing.T) {
	store, _ := storage.NewFileStore(t.TempDir(), "")
	_, err := NewBundler(store, nil).Assemble(context.Background(), Request{
		JobID: "j",
		Items: []Item{{SceneNumber: 1, MediaType: domain.MediaTypeImage, Ref: domain.ResultRef{StorageKey: "generated/j/missing.png"}}},
	})
	if !errors.Is(err, storage.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
