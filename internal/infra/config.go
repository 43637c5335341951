package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	ConfigBackendFile     = "file"
	ConfigBackendPostgres = "postgres"
)

// Config represents application configuration loaded from environment variables.
// Provider credentials are not part of it; they live in the config store.
type Config struct {
	AppEnv             string
	Port               string
	StoragePath        string
	StorageBaseURL     string
	ConfigBackend      string
	ConfigPath         string
	DatabaseURL        string
	GeoIPDBPath        string
	DefaultLocale      string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int

	MaxConcurrentGenerations  int
	ProviderRequestsPerMinute int
	ProviderPollInterval      time.Duration
	ProviderMaxWait           time.Duration
	ProviderHTTPTimeout       time.Duration

	GoogleBaseURL     string
	ReplicateBaseURL  string
	RunwayBaseURL     string
	OpenRouterBaseURL string
	QwenBaseURL       string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		StoragePath:        getEnv("STORAGE_PATH", "./data/storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		ConfigBackend:      strings.ToLower(getEnv("CONFIG_BACKEND", ConfigBackendFile)),
		ConfigPath:         getEnv("CONFIG_PATH", "./data/providers.json"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		HTTPReadTimeout:    getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout:   getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 30),
		HTTPIdleTimeout:    getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		MaxConcurrentGenerations:  getEnvInt("MAX_CONCURRENT_GENERATIONS", 4),
		ProviderRequestsPerMinute: getEnvInt("PROVIDER_REQUESTS_PER_MINUTE", 30),
		ProviderPollInterval:      getEnvSeconds("PROVIDER_POLL_INTERVAL_SECONDS", 5),
		ProviderMaxWait:           getEnvSeconds("PROVIDER_MAX_WAIT_SECONDS", 600),
		ProviderHTTPTimeout:       getEnvSeconds("PROVIDER_HTTP_TIMEOUT_SECONDS", 120),

		GoogleBaseURL:     getEnv("GOOGLE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ReplicateBaseURL:  getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		RunwayBaseURL:     getEnv("RUNWAY_BASE_URL", "https://api.dev.runwayml.com/v1"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		QwenBaseURL:       getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
	}

	switch cfg.ConfigBackend {
	case ConfigBackendFile:
		switch strings.ToLower(filepath.Ext(cfg.ConfigPath)) {
		case ".json", ".toml":
		default:
			return nil, fmt.Errorf("CONFIG_PATH must end in .json or .toml")
		}
	case ConfigBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when CONFIG_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("CONFIG_BACKEND must be %q or %q", ConfigBackendFile, ConfigBackendPostgres)
	}

	if cfg.MaxConcurrentGenerations < 1 {
		cfg.MaxConcurrentGenerations = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
