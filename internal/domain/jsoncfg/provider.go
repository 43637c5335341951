package jsoncfg

import (
	"fmt"
	"sort"
	"strings"

	"mourne/internal/domain"
)

// CapabilityEntry is the persisted selection for a single capability.
type CapabilityEntry struct {
	Provider   string `json:"provider" toml:"provider"`
	Model      string `json:"model" toml:"model"`
	Credential string `json:"credential,omitempty" toml:"credential,omitempty"`
}

// ProviderDocument is the durable shape of the provider configuration.
type ProviderDocument struct {
	Version      string                     `json:"version" toml:"version"`
	Capabilities map[string]CapabilityEntry `json:"capabilities" toml:"capabilities"`
}

const (
	// DefaultDocumentVersion represents the schema version persisted for provider configs.
	DefaultDocumentVersion = "2025-01"
)

// Defaults returns the selection used when no configuration was ever saved.
// Google covers text, image and video with one key; speech falls back to the
// local synthesizer which needs no credential.
func Defaults() map[domain.Capability]domain.CapabilityConfig {
	return map[domain.Capability]domain.CapabilityConfig{
		domain.CapabilityText:   {Provider: domain.ProviderGoogle, Model: "gemini-2.5-flash"},
		domain.CapabilityImage:  {Provider: domain.ProviderGoogle, Model: "gemini-3-pro-image-preview"},
		domain.CapabilityVideo:  {Provider: domain.ProviderGoogle, Model: "veo-3.1-generate-preview"},
		domain.CapabilitySpeech: {Provider: domain.ProviderLocal, Model: "synthetic"},
	}
}

// DefaultConfig wraps Defaults in a ProviderConfig.
func DefaultConfig() domain.ProviderConfig {
	return domain.ProviderConfig{Capabilities: Defaults()}
}

// Normalize fills missing capabilities with defaults and trims whitespace.
func (d *ProviderDocument) Normalize() {
	if d == nil {
		return
	}
	if d.Version == "" {
		d.Version = DefaultDocumentVersion
	}
	if d.Capabilities == nil {
		d.Capabilities = make(map[string]CapabilityEntry, len(domain.Capabilities))
	}
	defaults := Defaults()
	for _, c := range domain.Capabilities {
		entry, ok := d.Capabilities[string(c)]
		entry.Provider = strings.ToLower(strings.TrimSpace(entry.Provider))
		entry.Model = strings.TrimSpace(entry.Model)
		entry.Credential = strings.TrimSpace(entry.Credential)
		if !ok || entry.Provider == "" {
			def := defaults[c]
			entry.Provider = def.Provider
			if entry.Model == "" {
				entry.Model = def.Model
			}
		}
		d.Capabilities[string(c)] = entry
	}
}

// Validate ensures the document only references known capabilities and that
// every entry names a provider and model.
func (d ProviderDocument) Validate() error {
	keys := make([]string, 0, len(d.Capabilities))
	for k := range d.Capabilities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := domain.ParseCapability(k); err != nil {
			return err
		}
		entry := d.Capabilities[k]
		if strings.TrimSpace(entry.Provider) == "" {
			return fmt.Errorf("%w: capabilities.%s.provider is required", domain.ErrInvalidInput, k)
		}
		if strings.TrimSpace(entry.Model) == "" {
			return fmt.Errorf("%w: capabilities.%s.model is required", domain.ErrInvalidInput, k)
		}
	}
	return nil
}

// ToConfig converts the document into the domain representation.
func (d ProviderDocument) ToConfig() domain.ProviderConfig {
	cfg := domain.ProviderConfig{Capabilities: make(map[domain.Capability]domain.CapabilityConfig, len(d.Capabilities))}
	for k, v := range d.Capabilities {
		cfg.Capabilities[domain.Capability(k)] = domain.CapabilityConfig{
			Provider:   v.Provider,
			Model:      v.Model,
			Credential: v.Credential,
		}
	}
	return cfg
}

// FromConfig builds a document from a domain config.
func FromConfig(cfg domain.ProviderConfig) ProviderDocument {
	doc := ProviderDocument{
		Version:      DefaultDocumentVersion,
		Capabilities: make(map[string]CapabilityEntry, len(cfg.Capabilities)),
	}
	for k, v := range cfg.Capabilities {
		doc.Capabilities[string(k)] = CapabilityEntry{
			Provider:   v.Provider,
			Model:      v.Model,
			Credential: v.Credential,
		}
	}
	return doc
}

// RedactedEntry is the client-facing view of a capability selection.
type RedactedEntry struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Configured       bool   `json:"configured"`
	CredentialSuffix string `json:"credential_suffix,omitempty"`
}

// Redact hides credentials, keeping the last four characters for recognition.
func Redact(cfg domain.ProviderConfig) map[string]RedactedEntry {
	out := make(map[string]RedactedEntry, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		entry := RedactedEntry{Provider: v.Provider, Model: v.Model, Configured: v.Credential != ""}
		if n := len(v.Credential); n > 8 {
			entry.CredentialSuffix = "..." + v.Credential[n-4:]
		}
		out[string(k)] = entry
	}
	return out
}
