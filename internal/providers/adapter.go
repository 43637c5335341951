// Package providers defines the contract every generation backend implements
// and the HTTP plumbing shared by the remote adapters.
package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mourne/internal/domain"
	"mourne/internal/infra"
)

// SourceMedia is conditioning input, e.g. the still a video is animated from.
type SourceMedia struct {
	URL  string
	MIME string
	Data []byte
}

// Request is the normalized input handed to an adapter.
type Request struct {
	Capability domain.Capability
	Model      string
	Credential string
	Prompt     string
	Locale     string
	RequestID  string
	Source     *SourceMedia
}

// Result is what an adapter produced. Data holds media bytes when the
// provider returned them; URL is set when the media lives remotely only.
// Text carries text-capability output.
type Result struct {
	Data []byte
	MIME string
	URL  string
	Text string
}

// ProgressFunc receives provider progress as an integer percentage.
// Adapters may report values out of order; consumers filter.
type ProgressFunc func(percent int)

// Adapter performs one generation call. Cancellation is signalled through
// ctx; adapters that hold a remote task must release it before returning.
type Adapter interface {
	Generate(ctx context.Context, req Request, progress ProgressFunc) (*Result, error)
}

// AdapterFunc lets plain functions satisfy Adapter.
type AdapterFunc func(ctx context.Context, req Request, progress ProgressFunc) (*Result, error)

func (f AdapterFunc) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	return f(ctx, req, progress)
}

// Options carries settings shared by the HTTP-backed adapters.
type Options struct {
	BaseURL      string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Normalize applies defaults and returns the adjusted copy.
func (o Options) Normalize(defaultBaseURL string) Options {
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if o.Logger == nil {
		l := infra.Logger(zerolog.Nop())
		o.Logger = &l
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Minute
	}
	return o
}

// Report calls progress when it is set.
func Report(progress ProgressFunc, percent int) {
	if progress != nil {
		progress(percent)
	}
}
