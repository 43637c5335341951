// Package configstore keeps the active provider configuration and persists it
// through a pluggable backend.
package configstore

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"mourne/internal/domain"
	"mourne/internal/domain/jsoncfg"
	"mourne/internal/infra"
)

// Backend is the durable key-value collaborator behind the store. Read reports
// found=false when nothing was ever saved.
type Backend interface {
	Read(ctx context.Context) (doc jsoncfg.ProviderDocument, found bool, err error)
	Write(ctx context.Context, doc jsoncfg.ProviderDocument) error
}

// Store serializes saves and caches the last persisted config so dispatch can
// read it without I/O.
type Store struct {
	backend Backend
	logger  zerolog.Logger

	saveMu  sync.Mutex
	mu      sync.RWMutex
	current domain.ProviderConfig
	loaded  bool
}

// New constructs a Store. A nil logger disables logging.
func New(backend Backend, logger *infra.Logger) *Store {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "configstore").Logger()
	}
	return &Store{backend: backend, logger: l, current: jsoncfg.DefaultConfig()}
}

// Load reads the persisted config, falling back to defaults when nothing was
// saved yet. Capabilities missing from the saved document get their defaults.
// Load waits for an in-progress save so the cache never moves backwards.
func (s *Store) Load(ctx context.Context) (domain.ProviderConfig, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	doc, found, err := s.backend.Read(ctx)
	if err != nil {
		return domain.ProviderConfig{}, &domain.PersistenceError{Op: "load", Err: err}
	}
	cfg := jsoncfg.DefaultConfig()
	if found {
		doc.Normalize()
		cfg = doc.ToConfig()
	}
	s.mu.Lock()
	s.current = cfg
	s.loaded = true
	s.mu.Unlock()
	return cfg.Clone(), nil
}

// Save validates and atomically persists cfg. On failure the previously
// persisted config stays authoritative.
func (s *Store) Save(ctx context.Context, cfg domain.ProviderConfig) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.saveLocked(ctx, cfg)
}

// Update applies fn to a copy of the current config and saves the result.
// Concurrent updates are applied one after another.
func (s *Store) Update(ctx context.Context, fn func(cfg *domain.ProviderConfig) error) (domain.ProviderConfig, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	next := s.Snapshot()
	if err := fn(&next); err != nil {
		return domain.ProviderConfig{}, err
	}
	if err := s.saveLocked(ctx, next); err != nil {
		return domain.ProviderConfig{}, err
	}
	return next.Clone(), nil
}

func (s *Store) saveLocked(ctx context.Context, cfg domain.ProviderConfig) error {
	doc := jsoncfg.FromConfig(cfg)
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := s.backend.Write(ctx, doc); err != nil {
		s.logger.Error().Err(err).Msg("save provider config")
		return &domain.PersistenceError{Op: "save", Err: err}
	}
	s.mu.Lock()
	s.current = cfg.Clone()
	s.loaded = true
	s.mu.Unlock()
	s.logger.Info().Int("capabilities", len(cfg.Capabilities)).Msg("provider config saved")
	return nil
}

// Snapshot returns the cached config without touching the backend.
func (s *Store) Snapshot() domain.ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}
