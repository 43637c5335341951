package domain

import (
	"fmt"
	"strings"
)

// Capability is a media-generation function routable to a provider.
type Capability string

const (
	CapabilityText   Capability = "text"
	CapabilityImage  Capability = "image"
	CapabilityVideo  Capability = "video"
	CapabilitySpeech Capability = "speech"
)

// Capabilities lists every routable capability.
var Capabilities = []Capability{CapabilityText, CapabilityImage, CapabilityVideo, CapabilitySpeech}

// ParseCapability validates a capability name.
func ParseCapability(v string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Capabilities {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown capability %q", ErrInvalidInput, v)
}

// Provider names known to the registry.
const (
	ProviderGoogle     = "google"
	ProviderReplicate  = "replicate"
	ProviderRunway     = "runway"
	ProviderOpenRouter = "openrouter"
	ProviderQwen       = "qwen"
	ProviderLocal      = "local"
)

// CapabilityConfig selects the provider, model and credential for one capability.
type CapabilityConfig struct {
	Provider   string
	Model      string
	Credential string
}

// ProviderConfig is the active per-capability provider selection.
type ProviderConfig struct {
	Capabilities map[Capability]CapabilityConfig
}

// For returns the selection for a capability.
func (c ProviderConfig) For(capability Capability) (CapabilityConfig, bool) {
	if c.Capabilities == nil {
		return CapabilityConfig{}, false
	}
	v, ok := c.Capabilities[capability]
	return v, ok
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c ProviderConfig) Clone() ProviderConfig {
	out := ProviderConfig{Capabilities: make(map[Capability]CapabilityConfig, len(c.Capabilities))}
	for k, v := range c.Capabilities {
		out.Capabilities[k] = v
	}
	return out
}
