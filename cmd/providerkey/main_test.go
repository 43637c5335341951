package main

import (
	"errors"
	"testing"

	"mourne/internal/domain"
	"mourne/internal/domain/jsoncfg"
	"mourne/internal/registry"
)

func TestApplySwitchesProviderWithDefaults(t *testing.T) {
	reg := registry.NewDefault(registry.CatalogOptions{})
	pc := jsoncfg.DefaultConfig()

	if err := apply(&pc, reg, domain.CapabilityVideo, "runway", "", "rw-key"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := pc.Capabilities[domain.CapabilityVideo]
	if got.Provider != "runway" || got.Model != "gen4_turbo" || got.Credential != "rw-key" {
		t.Fatalf("video selection = %+v", got)
	}
}

func TestApplyKeepsCredentialForSameProvider(t *testing.T) {
	reg := registry.NewDefault(registry.CatalogOptions{})
	pc := jsoncfg.DefaultConfig()
	sel := pc.Capabilities[domain.CapabilityImage]
	sel.Credential = "existing"
	pc.Capabilities[domain.CapabilityImage] = sel

	if err := apply(&pc, reg, domain.CapabilityImage, "", "gemini-2.5-flash-image", ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := pc.Capabilities[domain.CapabilityImage]
	if got.Credential != "existing" || got.Model != "gemini-2.5-flash-image" {
		t.Fatalf("image selection = %+v", got)
	}
}

func TestApplyRejects(t *testing.T) {
	reg := registry.NewDefault(registry.CatalogOptions{})
	t.Setenv("QWEN_API_KEY", "")

	pc := jsoncfg.DefaultConfig()
	if err := apply(&pc, reg, domain.CapabilitySpeech, "runway", "", "k"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unsupported pair error = %v", err)
	}
	if err := apply(&pc, reg, domain.CapabilityImage, "qwen", "", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing key error = %v", err)
	}
	if err := apply(&pc, reg, domain.CapabilitySpeech, "local", "", ""); err != nil {
		t.Fatalf("local needs no key: %v", err)
	}
}
