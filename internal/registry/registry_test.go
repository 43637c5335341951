package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"mourne/internal/domain"
	"mourne/internal/domain/jsoncfg"
	"mourne/internal/infra"
	"mourne/internal/providers"
)

type countingAdapter struct{ calls int }

func (a *countingAdapter) Generate(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	a.calls++
	return &providers.Result{}, nil
}

func cfgWith(c domain.Capability, sel domain.CapabilityConfig) domain.ProviderConfig {
	return domain.ProviderConfig{Capabilities: map[domain.Capability]domain.CapabilityConfig{c: sel}}
}

func TestResolve(t *testing.T) {
	video := &countingAdapter{}
	speech := &countingAdapter{}
	r := New()
	r.MustRegister(Registration{Capability: domain.CapabilityVideo, Provider: "runway", Adapter: video, RequiresCredential: true, DefaultModel: "gen4_turbo"})
	r.MustRegister(Registration{Capability: domain.CapabilitySpeech, Provider: "local", Adapter: speech, DefaultModel: "synthetic"})

	tests := []struct {
		name      string
		cap       domain.Capability
		cfg       domain.ProviderConfig
		wantModel string
		wantErr   bool
	}{
		{"configured", domain.CapabilityVideo, cfgWith(domain.CapabilityVideo, domain.CapabilityConfig{Provider: "Runway", Model: "gen3a_turbo", Credential: "k"}), "gen3a_turbo", false},
		{"default model", domain.CapabilityVideo, cfgWith(domain.CapabilityVideo, domain.CapabilityConfig{Provider: "runway", Credential: "k"}), "gen4_turbo", false},
		{"empty credential", domain.CapabilityVideo, cfgWith(domain.CapabilityVideo, domain.CapabilityConfig{Provider: "runway", Model: "gen4_turbo", Credential: "  "}), "", true},
		{"credential not required", domain.CapabilitySpeech, cfgWith(domain.CapabilitySpeech, domain.CapabilityConfig{Provider: "local"}), "synthetic", false},
		{"unregistered pair", domain.CapabilitySpeech, cfgWith(domain.CapabilitySpeech, domain.CapabilityConfig{Provider: "runway", Credential: "k"}), "", true},
		{"no selection", domain.CapabilityImage, domain.ProviderConfig{}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := r.Resolve(tc.cap, tc.cfg)
			if tc.wantErr {
				var cfgErr *domain.ConfigurationError
				if !errors.As(err, &cfgErr) || !errors.Is(err, domain.ErrConfiguration) {
					t.Fatalf("Resolve error = %v, want ConfigurationError", err)
				}
				if cfgErr.Capability != tc.cap {
					t.Fatalf("error capability = %q, want %q", cfgErr.Capability, tc.cap)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if h.Model != tc.wantModel || h.Capability != tc.cap || h.Adapter == nil {
				t.Fatalf("handle = %+v", h)
			}
		})
	}
	if video.calls != 0 || speech.calls != 0 {
		t.Fatalf("Resolve must not invoke adapters (video=%d speech=%d)", video.calls, speech.calls)
	}
}

func TestRegisterValidates(t *testing.T) {
	r := New()
	if err := r.Register(Registration{Capability: "music", Provider: "x", Adapter: &countingAdapter{}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Register error = %v, want ErrInvalidInput", err)
	}
	if err := r.Register(Registration{Capability: domain.CapabilityText, Provider: "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Register error = %v, want ErrInvalidInput", err)
	}
}

func TestDefaultCatalogResolvesDefaults(t *testing.T) {
	r := NewDefault(CatalogOptions{})
	cfg := jsoncfg.DefaultConfig()

	// Defaults need a key for google-backed capabilities but not for speech.
	if _, err := r.Resolve(domain.CapabilityImage, cfg); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Resolve(image) error = %v, want ErrConfiguration", err)
	}
	if _, err := r.Resolve(domain.CapabilitySpeech, cfg); err != nil {
		t.Fatalf("Resolve(speech) error = %v", err)
	}

	want := map[domain.Capability][]string{
		domain.CapabilityText:   {"google", "local", "openrouter"},
		domain.CapabilityImage:  {"google", "local", "qwen", "replicate"},
		domain.CapabilityVideo:  {"google", "local", "replicate", "runway"},
		domain.CapabilitySpeech: {"google", "local"},
	}
	got := map[domain.Capability][]string{}
	for _, info := range r.Catalog() {
		got[info.Capability] = append(got[info.Capability], info.Provider)
	}
	for c, names := range want {
		if len(got[c]) != len(names) {
			t.Fatalf("%s providers = %v, want %v", c, got[c], names)
		}
		for i := range names {
			if got[c][i] != names[i] {
				t.Fatalf("%s providers = %v, want %v", c, got[c], names)
			}
		}
	}
}

func TestDefaultCatalogPacesPerProvider(t *testing.T) {
	r := NewDefault(CatalogOptions{RequestsPerMinute: 30})
	cfg := domain.ProviderConfig{Capabilities: map[domain.Capability]domain.CapabilityConfig{
		domain.CapabilityText:  {Provider: "google", Model: "m", Credential: "k"},
		domain.CapabilityImage: {Provider: "google", Model: "m", Credential: "k"},
		domain.CapabilityVideo: {Provider: "replicate", Model: "m", Credential: "k"},
	}}
	pacerOf := func(c domain.Capability) *providers.Pacer {
		t.Helper()
		h, err := r.Resolve(c, cfg)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", c, err)
		}
		p, ok := h.Adapter.(*providers.Paced)
		if !ok {
			t.Fatalf("%s adapter = %T, want *providers.Paced", c, h.Adapter)
		}
		return p.Pacer()
	}
	text, image, video := pacerOf(domain.CapabilityText), pacerOf(domain.CapabilityImage), pacerOf(domain.CapabilityVideo)
	if text != image {
		t.Fatal("google text and image should share one pacer")
	}
	if text == video {
		t.Fatal("google and replicate should be paced separately")
	}
}

func TestLookup(t *testing.T) {
	r := New()
	r.MustRegister(Registration{Capability: domain.CapabilityImage, Provider: "Qwen", Adapter: &countingAdapter{}, RequiresCredential: true, DefaultModel: "qwen-image-plus"})

	info, ok := r.Lookup(domain.CapabilityImage, " QWEN ")
	if !ok {
		t.Fatalf("expected qwen/image to be registered")
	}
	if info.Provider != "qwen" || info.DefaultModel != "qwen-image-plus" || !info.RequiresCredential {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, ok := r.Lookup(domain.CapabilityVideo, "qwen"); ok {
		t.Fatalf("qwen does not serve video")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &infra.Config{
		RunwayBaseURL:             "http://runway.test",
		ProviderHTTPTimeout:       time.Second,
		ProviderPollInterval:      2 * time.Second,
		ProviderMaxWait:           time.Minute,
		ProviderRequestsPerMinute: 12,
	}
	opts := OptionsFromConfig(cfg, nil)
	if opts.Runway.BaseURL != "http://runway.test" || opts.Runway.MaxWait != time.Minute {
		t.Fatalf("runway options = %+v", opts.Runway)
	}
	if opts.Runway.HTTPClient == nil || opts.Runway.HTTPClient.Timeout != time.Second {
		t.Fatalf("http client not configured")
	}
	if opts.RequestsPerMinute != 12 {
		t.Fatalf("RequestsPerMinute = %d", opts.RequestsPerMinute)
	}
}
