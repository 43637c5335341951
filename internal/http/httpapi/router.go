package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mourne/internal/http/handlers"
	"mourne/internal/middleware"
)

// Options carries the request pipeline settings.
type Options struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	// RateLimitPerMin is per client IP; zero or less disables limiting.
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	// StaticDir is served under /static; empty disables it.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Handle("/static/*", fs)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		)

		r.Get("/v1/providers", app.Providers)
		r.Route("/v1/config", func(r chi.Router) {
			r.Get("/", app.GetConfig)
			r.Put("/", app.PutConfig)
		})

		r.Post("/v1/artifacts/{artifact_id}/cancel", app.CancelArtifact)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.Post("/", app.CreateJob)

			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", app.GetJob)
				r.Delete("/", app.CloseJob)
				r.Post("/activate", app.SelectJob)
				r.Post("/reset", app.ResetJob)
				r.Post("/abandon", app.AbandonJob)
				r.Get("/render", app.Render)

				r.Put("/script", app.SetScript)
				r.Post("/script/approve", app.ApproveScript)
				r.Post("/script/draft", app.DraftScript)

				r.Route("/scenes/{scene}", func(r chi.Router) {
					r.Put("/", app.PutScene)
					r.Delete("/", app.RemoveScene)
					r.Post("/abandon", app.AbandonScene)
					r.Post("/generate", app.Generate)
				})

				r.Route("/assets", func(r chi.Router) {
					r.Get("/", app.ListAssets)
					r.Post("/", app.UploadAsset)
					r.Delete("/{asset_id}", app.RemoveAsset)
					r.Post("/{asset_id}/bind", app.BindAsset)
					r.Post("/{asset_id}/unbind", app.UnbindAsset)
				})
			})
		})
	})

	return r
}
