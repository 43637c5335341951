// Package binding keeps user-uploaded assets for a job and their optional
// binding to a scene. A bound asset overrides generation for its scene and
// media type.
package binding

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mourne/internal/domain"
	"mourne/internal/storage"
)

// Store holds the custom assets of one job. It is safe for concurrent use.
type Store struct {
	jobID string
	files *storage.FileStore
	now   func() time.Time

	mu     sync.RWMutex
	assets map[string]*domain.CustomAsset
}

func NewStore(jobID string, files *storage.FileStore) *Store {
	return &Store{
		jobID:  jobID,
		files:  files,
		now:    func() time.Time { return time.Now().UTC() },
		assets: make(map[string]*domain.CustomAsset),
	}
}

// Prefix is the storage prefix that holds every upload of the job.
func (s *Store) Prefix() string {
	return path.Join("uploads", s.jobID, "custom_assets")
}

// Upload stores the file and registers it unbound.
func (s *Store) Upload(ctx context.Context, name string, data []byte) (domain.CustomAsset, error) {
	media, err := Sniff(name, data)
	if err != nil {
		return domain.CustomAsset{}, err
	}
	id := uuid.NewString()
	key, err := s.files.Write(ctx, path.Join(s.Prefix(), id+media.Extension), data)
	if err != nil {
		return domain.CustomAsset{}, fmt.Errorf("binding: store upload: %w", err)
	}
	asset := &domain.CustomAsset{
		ID:         id,
		JobID:      s.jobID,
		Name:       cleanName(name),
		MediaType:  media.Type,
		MIME:       media.MIME,
		StorageKey: key,
		URL:        s.files.URL(key),
		Bytes:      int64(len(data)),
		CreatedAt:  s.now(),
	}

	s.mu.Lock()
	s.assets[id] = asset
	s.mu.Unlock()
	return *asset, nil
}

// Bind attaches the asset to a scene. Any other asset bound to the same scene
// and media type is unbound and returned as replaced.
func (s *Store) Bind(assetID string, scene int) (bound domain.CustomAsset, replaced *domain.CustomAsset, err error) {
	if scene < 1 {
		return domain.CustomAsset{}, nil, fmt.Errorf("%w: scene number must be positive", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[assetID]
	if !ok {
		return domain.CustomAsset{}, nil, &domain.NotFoundError{Kind: "asset", ID: assetID}
	}
	for _, other := range s.assets {
		if other.ID == asset.ID || other.MediaType != asset.MediaType || other.BoundScene == nil {
			continue
		}
		if *other.BoundScene == scene {
			other.BoundScene = nil
			prev := *other
			replaced = &prev
		}
	}
	n := scene
	asset.BoundScene = &n
	return *asset, replaced, nil
}

// Unbind detaches the asset from its scene, if any.
func (s *Store) Unbind(assetID string) (domain.CustomAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return domain.CustomAsset{}, &domain.NotFoundError{Kind: "asset", ID: assetID}
	}
	prev := *asset
	asset.BoundScene = nil
	return prev, nil
}

// Remove forgets the asset and deletes its file. The returned value carries
// the binding it had before removal.
func (s *Store) Remove(ctx context.Context, assetID string) (domain.CustomAsset, error) {
	asset, err := s.Forget(assetID)
	if err != nil {
		return domain.CustomAsset{}, err
	}
	return asset, s.DeleteFile(ctx, asset)
}

// Forget drops the asset from the store but leaves its file in place.
func (s *Store) Forget(assetID string) (domain.CustomAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return domain.CustomAsset{}, &domain.NotFoundError{Kind: "asset", ID: assetID}
	}
	delete(s.assets, assetID)
	return *asset, nil
}

// DeleteFile removes the stored upload of an asset returned by Forget.
func (s *Store) DeleteFile(ctx context.Context, asset domain.CustomAsset) error {
	if err := s.files.Delete(ctx, asset.StorageKey); err != nil {
		return fmt.Errorf("binding: delete upload: %w", err)
	}
	return nil
}

// Lookup returns the asset bound to scene for the given media type.
func (s *Store) Lookup(scene int, media domain.MediaType) (domain.CustomAsset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.assets {
		if asset.MediaType == media && asset.BoundScene != nil && *asset.BoundScene == scene {
			return *asset, true
		}
	}
	return domain.CustomAsset{}, false
}

func (s *Store) Get(assetID string) (domain.CustomAsset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return domain.CustomAsset{}, false
	}
	return *asset, true
}

// List returns all assets in upload order.
func (s *Store) List() []domain.CustomAsset {
	s.mu.RLock()
	out := make([]domain.CustomAsset, 0, len(s.assets))
	for _, asset := range s.assets {
		out = append(out, *asset)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Purge drops every asset and deletes the job's upload directory.
func (s *Store) Purge(ctx context.Context) error {
	s.mu.Lock()
	s.assets = make(map[string]*domain.CustomAsset)
	s.mu.Unlock()
	return s.files.DeletePrefix(ctx, s.Prefix())
}

func cleanName(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}
