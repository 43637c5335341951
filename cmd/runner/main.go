package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mourne/internal/assembly"
	"mourne/internal/configstore"
	"mourne/internal/domain"
	"mourne/internal/generator"
	"mourne/internal/infra"
	"mourne/internal/orchestrator"
	"mourne/internal/registry"
	"mourne/internal/storage"
)

// localConfig routes every capability to the built-in synthesizer.
type localConfig struct{}

func (localConfig) Snapshot() domain.ProviderConfig {
	cfg := domain.ProviderConfig{Capabilities: make(map[domain.Capability]domain.CapabilityConfig)}
	for _, c := range domain.Capabilities {
		cfg.Capabilities[c] = domain.CapabilityConfig{Provider: domain.ProviderLocal, Model: "synthetic"}
	}
	return cfg
}

func main() {
	var (
		manifestPath string
		useLocal     bool
		poll         time.Duration
	)
	flag.StringVar(&manifestPath, "manifest", "job.yaml", "YAML manifest describing the job")
	flag.BoolVar(&useLocal, "local", false, "Use the local synthesizer for every capability instead of the saved provider config")
	flag.DurationVar(&poll, "poll", 2*time.Second, "Status poll interval")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "runner").Logger()

	m, err := loadManifest(manifestPath)
	if err != nil {
		logger.Fatal().Err(err).Str("manifest", manifestPath).Msg("runner: invalid manifest")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: failed to configure storage")
	}

	var source orchestrator.ConfigSource = localConfig{}
	if !useLocal {
		backend, closeBackend, err := configstore.Open(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("runner: failed to open config backend")
		}
		defer closeBackend()
		store := configstore.New(backend, &logger)
		if _, err := store.Load(ctx); err != nil {
			logger.Fatal().Err(err).Msg("runner: failed to load provider config")
		}
		source = store
	}

	jobs, err := orchestrator.New(orchestrator.Options{
		Config:   source,
		Registry: registry.NewDefault(registry.OptionsFromConfig(cfg, &logger)),
		Generator: generator.New(files, generator.Options{
			MaxConcurrent: cfg.MaxConcurrentGenerations,
			Timeout:       cfg.ProviderMaxWait,
			Logger:        &logger,
		}),
		Assembler: assembly.NewBundler(files, &logger),
		Files:     files,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: failed to start orchestrator")
	}
	defer jobs.Close()

	r := &runner{jobs: jobs, poll: poll, logger: logger}
	ref, err := r.run(ctx, m)
	if err != nil {
		logger.Error().Err(err).Msg("runner: job failed")
		jobs.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ref); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
