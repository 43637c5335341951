// Package registry maps (capability, provider) pairs onto adapters and
// resolves the active selection without side effects.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"mourne/internal/domain"
	"mourne/internal/providers"
)

// Registration describes one adapter for one capability of one provider.
type Registration struct {
	Capability domain.Capability
	Provider   string
	Adapter    providers.Adapter
	// RequiresCredential is false for providers that run locally.
	RequiresCredential bool
	DefaultModel       string
}

// Handle is a resolved, ready-to-invoke adapter with its model and credential.
type Handle struct {
	Capability domain.Capability
	Provider   string
	Model      string
	Credential string
	Adapter    providers.Adapter
}

type key struct {
	capability domain.Capability
	provider   string
}

// Registry is safe for concurrent use. Registration normally happens once at
// startup; Resolve only reads.
type Registry struct {
	mu      sync.RWMutex
	entries map[key]Registration
}

func New() *Registry {
	return &Registry{entries: make(map[key]Registration)}
}

// Register adds or replaces an adapter registration.
func (r *Registry) Register(reg Registration) error {
	reg.Provider = strings.ToLower(strings.TrimSpace(reg.Provider))
	if _, err := domain.ParseCapability(string(reg.Capability)); err != nil {
		return err
	}
	if reg.Provider == "" {
		return fmt.Errorf("%w: provider name is required", domain.ErrInvalidInput)
	}
	if reg.Adapter == nil {
		return fmt.Errorf("%w: adapter is required for %s/%s", domain.ErrInvalidInput, reg.Capability, reg.Provider)
	}
	r.mu.Lock()
	r.entries[key{reg.Capability, reg.Provider}] = reg
	r.mu.Unlock()
	return nil
}

// MustRegister panics on invalid registrations; for wiring code.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Resolve picks the adapter configured for capability. It fails with a
// *domain.ConfigurationError when the capability has no selection, the pair
// is not registered, or a required credential is empty.
func (r *Registry) Resolve(capability domain.Capability, cfg domain.ProviderConfig) (Handle, error) {
	sel, ok := cfg.For(capability)
	if !ok || strings.TrimSpace(sel.Provider) == "" {
		return Handle{}, &domain.ConfigurationError{Capability: capability, Reason: "no provider selected"}
	}
	provider := strings.ToLower(strings.TrimSpace(sel.Provider))

	r.mu.RLock()
	reg, ok := r.entries[key{capability, provider}]
	r.mu.RUnlock()
	if !ok {
		return Handle{}, &domain.ConfigurationError{Capability: capability, Provider: provider, Reason: "provider does not support this capability"}
	}
	credential := strings.TrimSpace(sel.Credential)
	if reg.RequiresCredential && credential == "" {
		return Handle{}, &domain.ConfigurationError{Capability: capability, Provider: provider, Reason: "credential is not set"}
	}
	model := strings.TrimSpace(sel.Model)
	if model == "" {
		model = reg.DefaultModel
	}
	if model == "" {
		return Handle{}, &domain.ConfigurationError{Capability: capability, Provider: provider, Reason: "model is not set"}
	}
	return Handle{
		Capability: capability,
		Provider:   provider,
		Model:      model,
		Credential: credential,
		Adapter:    reg.Adapter,
	}, nil
}

// ProviderInfo summarizes a registration for clients.
type ProviderInfo struct {
	Capability         domain.Capability `json:"capability"`
	Provider           string            `json:"provider"`
	RequiresCredential bool              `json:"requires_credential"`
	DefaultModel       string            `json:"default_model,omitempty"`
}

// Catalog lists registrations sorted by capability then provider.
func (r *Registry) Catalog() []ProviderInfo {
	r.mu.RLock()
	out := make([]ProviderInfo, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, ProviderInfo{
			Capability:         reg.Capability,
			Provider:           reg.Provider,
			RequiresCredential: reg.RequiresCredential,
			DefaultModel:       reg.DefaultModel,
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Capability != out[j].Capability {
			return out[i].Capability < out[j].Capability
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}

// Lookup returns the catalog entry for a capability/provider pair.
func (r *Registry) Lookup(capability domain.Capability, provider string) (ProviderInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[key{capability, strings.ToLower(strings.TrimSpace(provider))}]
	if !ok {
		return ProviderInfo{}, false
	}
	return ProviderInfo{
		Capability:         reg.Capability,
		Provider:           reg.Provider,
		RequiresCredential: reg.RequiresCredential,
		DefaultModel:       reg.DefaultModel,
	}, true
}
