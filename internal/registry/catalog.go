package registry

import (
	"net/http"
	"time"

	"mourne/internal/domain"
	"mourne/internal/infra"
	"mourne/internal/providers"
	"mourne/internal/providers/google"
	"mourne/internal/providers/local"
	"mourne/internal/providers/openrouter"
	"mourne/internal/providers/qwen"
	"mourne/internal/providers/replicate"
	"mourne/internal/providers/runway"
)

// CatalogOptions carries per-provider HTTP settings for the built-in adapters.
type CatalogOptions struct {
	Google     providers.Options
	Replicate  providers.Options
	Runway     providers.Options
	OpenRouter providers.Options
	Qwen       providers.Options
	Local      local.Options
	// RequestsPerMinute paces calls per provider; zero disables pacing.
	RequestsPerMinute int
}

// NewDefault builds a registry with every built-in provider adapter.
func NewDefault(opts CatalogOptions) *Registry {
	r := New()
	pacers := map[string]*providers.Pacer{}
	pace := func(provider string, a providers.Adapter) providers.Adapter {
		p, ok := pacers[provider]
		if !ok {
			p = providers.NewPacer(opts.RequestsPerMinute)
			pacers[provider] = p
		}
		return p.Wrap(a)
	}

	g := google.NewClient(opts.Google)
	r.MustRegister(Registration{Capability: domain.CapabilityText, Provider: domain.ProviderGoogle, Adapter: pace(domain.ProviderGoogle, g.TextAdapter()), RequiresCredential: true, DefaultModel: "gemini-2.5-flash"})
	r.MustRegister(Registration{Capability: domain.CapabilityImage, Provider: domain.ProviderGoogle, Adapter: pace(domain.ProviderGoogle, g.ImageAdapter()), RequiresCredential: true, DefaultModel: "gemini-3-pro-image-preview"})
	r.MustRegister(Registration{Capability: domain.CapabilityVideo, Provider: domain.ProviderGoogle, Adapter: pace(domain.ProviderGoogle, g.VideoAdapter()), RequiresCredential: true, DefaultModel: "veo-3.1-generate-preview"})
	r.MustRegister(Registration{Capability: domain.CapabilitySpeech, Provider: domain.ProviderGoogle, Adapter: pace(domain.ProviderGoogle, g.SpeechAdapter()), RequiresCredential: true, DefaultModel: "gemini-2.5-flash-preview-tts"})

	rep := replicate.NewClient(opts.Replicate)
	r.MustRegister(Registration{Capability: domain.CapabilityImage, Provider: domain.ProviderReplicate, Adapter: pace(domain.ProviderReplicate, rep.ImageAdapter()), RequiresCredential: true, DefaultModel: "black-forest-labs/flux-schnell"})
	r.MustRegister(Registration{Capability: domain.CapabilityVideo, Provider: domain.ProviderReplicate, Adapter: pace(domain.ProviderReplicate, rep.VideoAdapter()), RequiresCredential: true, DefaultModel: "wan-video/wan-2.2-i2v-fast"})

	rw := runway.NewClient(opts.Runway)
	r.MustRegister(Registration{Capability: domain.CapabilityVideo, Provider: domain.ProviderRunway, Adapter: pace(domain.ProviderRunway, rw.VideoAdapter()), RequiresCredential: true, DefaultModel: "gen4_turbo"})

	or := openrouter.NewClient(opts.OpenRouter)
	r.MustRegister(Registration{Capability: domain.CapabilityText, Provider: domain.ProviderOpenRouter, Adapter: pace(domain.ProviderOpenRouter, or.TextAdapter()), RequiresCredential: true, DefaultModel: "openai/gpt-4o-mini"})

	q := qwen.NewClient(opts.Qwen)
	r.MustRegister(Registration{Capability: domain.CapabilityImage, Provider: domain.ProviderQwen, Adapter: pace(domain.ProviderQwen, q.ImageAdapter()), RequiresCredential: true, DefaultModel: "qwen-image-plus"})

	synth := local.New(opts.Local)
	for _, c := range domain.Capabilities {
		r.MustRegister(Registration{Capability: c, Provider: domain.ProviderLocal, Adapter: synth, DefaultModel: "synthetic"})
	}
	return r
}

// OptionsFromConfig derives adapter settings from the process config.
func OptionsFromConfig(cfg *infra.Config, logger *infra.Logger) CatalogOptions {
	client := &http.Client{Timeout: cfg.ProviderHTTPTimeout}
	opts := func(base string) providers.Options {
		return providers.Options{
			BaseURL:      base,
			HTTPClient:   client,
			Logger:       logger,
			PollInterval: cfg.ProviderPollInterval,
			MaxWait:      cfg.ProviderMaxWait,
		}
	}
	return CatalogOptions{
		Google:            opts(cfg.GoogleBaseURL),
		Replicate:         opts(cfg.ReplicateBaseURL),
		Runway:            opts(cfg.RunwayBaseURL),
		OpenRouter:        opts(cfg.OpenRouterBaseURL),
		Qwen:              opts(cfg.QwenBaseURL),
		Local:             local.Options{Step: 250 * time.Millisecond, Logger: logger},
		RequestsPerMinute: cfg.ProviderRequestsPerMinute,
	}
}
