package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mourne/internal/configstore"
	"mourne/internal/domain"
	"mourne/internal/infra"
	"mourne/internal/registry"
)

func main() {
	var (
		capabilityFlag string
		providerFlag   string
		modelFlag      string
		keyFlag        string
	)
	flag.StringVar(&capabilityFlag, "capability", "", "Capability to configure (text, image, video or speech)")
	flag.StringVar(&providerFlag, "provider", "", "Provider serving the capability (keeps the current one when empty)")
	flag.StringVar(&modelFlag, "model", "", "Model name (provider default when empty and the provider changes)")
	flag.StringVar(&keyFlag, "key", "", "API key for the provider (falls back to <PROVIDER>_API_KEY)")
	flag.Parse()

	_ = godotenv.Load()

	capability, err := domain.ParseCapability(capabilityFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "providerkey").Str("capability", string(capability)).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	backend, closeBackend, err := configstore.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open config backend: %v\n", err)
		os.Exit(1)
	}
	defer closeBackend()

	store := configstore.New(backend, &logger)
	if _, err := store.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "load provider config: %v\n", err)
		os.Exit(1)
	}

	reg := registry.NewDefault(registry.CatalogOptions{})
	saved, err := store.Update(ctx, func(pc *domain.ProviderConfig) error {
		return apply(pc, reg, capability, providerFlag, modelFlag, keyFlag)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "save provider config: %v\n", err)
		os.Exit(1)
	}

	sel, _ := saved.For(capability)
	fmt.Printf("%s -> %s/%s stored (credential set: %t)\n", capability, sel.Provider, sel.Model, sel.Credential != "")
}

func apply(pc *domain.ProviderConfig, reg *registry.Registry, capability domain.Capability, provider, model, key string) error {
	if pc.Capabilities == nil {
		pc.Capabilities = make(map[domain.Capability]domain.CapabilityConfig)
	}
	cur := pc.Capabilities[capability]
	next := cur
	if p := strings.ToLower(strings.TrimSpace(provider)); p != "" {
		next.Provider = p
	}
	info, ok := reg.Lookup(capability, next.Provider)
	if !ok {
		return fmt.Errorf("%w: provider %q does not support %s", domain.ErrInvalidInput, next.Provider, capability)
	}
	switch m := strings.TrimSpace(model); {
	case m != "":
		next.Model = m
	case next.Provider != cur.Provider:
		next.Model = info.DefaultModel
	}

	key = strings.TrimSpace(key)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(strings.ToUpper(next.Provider) + "_API_KEY"))
	}
	switch {
	case key != "":
		next.Credential = key
	case next.Provider != cur.Provider:
		next.Credential = ""
	}
	if info.RequiresCredential && next.Credential == "" {
		return fmt.Errorf("%w: %s requires an API key via -key or %s_API_KEY", domain.ErrInvalidInput, next.Provider, strings.ToUpper(next.Provider))
	}
	pc.Capabilities[capability] = next
	return nil
}
