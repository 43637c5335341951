package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("CONFIG_BACKEND", "")
	t.Setenv("CONFIG_PATH", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.ConfigBackend != ConfigBackendFile {
		t.Fatalf("ConfigBackend = %q, want %q", cfg.ConfigBackend, ConfigBackendFile)
	}
	if cfg.ProviderPollInterval != 5*time.Second {
		t.Fatalf("ProviderPollInterval = %v, want 5s", cfg.ProviderPollInterval)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("CONFIG_BACKEND", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigPostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("CONFIG_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}

	t.Setenv("DATABASE_URL", "postgres://example")
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
}

func TestLoadConfigRejectsUnknownConfigExtension(t *testing.T) {
	t.Setenv("CONFIG_BACKEND", "file")
	t.Setenv("CONFIG_PATH", "providers.yaml")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported config extension")
	}
}

func TestLoadConfigParsesOriginList(t *testing.T) {
	t.Setenv("CONFIG_BACKEND", "")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
}
