// Package runway animates scene stills with the Runway image_to_video task API.
package runway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mourne/internal/infra"
	"mourne/internal/providers"
)

const (
	providerName   = "runway"
	defaultBaseURL = "https://api.dev.runwayml.com/v1"
	apiVersion     = "2024-11-06"
	defaultRatio   = "1280:720"
	defaultSeconds = 5
	cancelTimeout  = 10 * time.Second
)

type Client struct {
	opts   providers.Options
	logger *infra.Logger
}

func NewClient(opts providers.Options) *Client {
	opts = opts.Normalize(defaultBaseURL)
	return &Client{opts: opts, logger: opts.Logger}
}

type imageToVideoRequest struct {
	PromptText  string `json:"promptText,omitempty"`
	PromptImage string `json:"promptImage"`
	Model       string `json:"model"`
	Ratio       string `json:"ratio"`
	Duration    int    `json:"duration"`
}

type task struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	Output   []string `json:"output,omitempty"`
	Failure  string   `json:"failure,omitempty"`
}

// VideoAdapter returns the image-to-video adapter. A source still is required.
func (c *Client) VideoAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generate)
}

func (c *Client) header(credential string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+credential)
	h.Set("X-Runway-Version", apiVersion)
	return h
}

func promptImage(src *providers.SourceMedia) string {
	if src == nil {
		return ""
	}
	if len(src.Data) > 0 {
		mime := src.MIME
		if mime == "" {
			mime = "image/png"
		}
		return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(src.Data))
	}
	return strings.TrimSpace(src.URL)
}

func (c *Client) generate(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, providers.ErrMissingCredential
	}
	image := promptImage(req.Source)
	if image == "" {
		return nil, providers.Rejected(providerName, "image_to_video requires a source image")
	}
	var t task
	err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodPost, c.opts.BaseURL+"/image_to_video", c.header(req.Credential), imageToVideoRequest{
		PromptText:  strings.TrimSpace(req.Prompt),
		PromptImage: image,
		Model:       req.Model,
		Ratio:       defaultRatio,
		Duration:    defaultSeconds,
	}, &t)
	if err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, providers.Invalid(providerName, "task id missing")
	}
	c.logger.Debug().Str("request_id", req.RequestID).Str("task", t.ID).Msg("runway: task created")
	providers.Report(progress, 0)

	taskURL := c.opts.BaseURL + "/tasks/" + url.PathEscape(t.ID)
	err = providers.Poll(ctx, c.opts.PollInterval, c.opts.MaxWait, func(ctx context.Context) (bool, error) {
		var next task
		if err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodGet, taskURL, c.header(req.Credential), nil, &next); err != nil {
			return false, err
		}
		t = next
		if t.Progress != nil {
			providers.Report(progress, int(*t.Progress*100))
		}
		switch t.Status {
		case "SUCCEEDED", "FAILED", "CANCELLED":
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		c.cancel(taskURL, t.ID, req.Credential)
		return nil, err
	}

	switch t.Status {
	case "SUCCEEDED":
	case "CANCELLED":
		return nil, context.Canceled
	default:
		return nil, providers.Rejected(providerName, firstNonEmpty(t.Failure, "task failed"))
	}
	if len(t.Output) == 0 {
		return nil, providers.Invalid(providerName, "task succeeded without output")
	}
	data, mime, err := providers.Download(ctx, c.opts.HTTPClient, providerName, t.Output[0], nil)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mime, "video/") {
		mime = "video/mp4"
	}
	providers.Report(progress, 100)
	return &providers.Result{Data: data, MIME: mime, URL: t.Output[0]}, nil
}

// cancel deletes the remote task on a fresh context.
func (c *Client) cancel(taskURL, id, credential string) {
	ctx, done := context.WithTimeout(context.Background(), cancelTimeout)
	defer done()
	if err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodDelete, taskURL, c.header(credential), nil, nil); err != nil {
		c.logger.Warn().Err(err).Str("task", id).Msg("runway: cancel task failed")
		return
	}
	c.logger.Debug().Str("task", id).Msg("runway: task cancelled")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
