package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mourne/internal/assembly"
	"mourne/internal/configstore"
	"mourne/internal/generator"
	"mourne/internal/http/handlers"
	httpapi "mourne/internal/http/httpapi"
	"mourne/internal/infra"
	"mourne/internal/infra/geoip"
	"mourne/internal/orchestrator"
	"mourne/internal/registry"
	"mourne/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}

	backend, closeBackend, err := configstore.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.ConfigBackend).Msg("failed to open config backend")
	}
	defer closeBackend()

	configs := configstore.New(backend, &logger)
	if _, err := configs.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load provider config")
	}

	reg := registry.NewDefault(registry.OptionsFromConfig(cfg, &logger))
	gen := generator.New(files, generator.Options{
		MaxConcurrent: cfg.MaxConcurrentGenerations,
		Timeout:       cfg.ProviderMaxWait,
		Logger:        &logger,
	})
	jobs, err := orchestrator.New(orchestrator.Options{
		Config:    configs,
		Registry:  reg,
		Generator: gen,
		Assembler: assembly.NewBundler(files, &logger),
		Files:     files,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start orchestrator")
	}
	defer jobs.Close()

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer geo.Close()

	app := handlers.NewApp(jobs, configs, reg, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   geoip.LookupFunc(geo),
		StaticDir:       files.BasePath(),
	})

	server := infra.NewHTTPServer(cfg, router)
	logger.Info().Str("addr", server.Addr()).Str("config_backend", cfg.ConfigBackend).Msg("API listening")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
