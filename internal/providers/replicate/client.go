// Package replicate runs image and video models through Replicate
// predictions, polling for completion and cancelling abandoned predictions.
package replicate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mourne/internal/domain"
	"mourne/internal/infra"
	"mourne/internal/providers"
)

const (
	providerName   = "replicate"
	defaultBaseURL = "https://api.replicate.com/v1"
	cancelTimeout  = 10 * time.Second
)

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// Client submits predictions to Replicate.
type Client struct {
	opts   providers.Options
	logger *infra.Logger
}

func NewClient(opts providers.Options) *Client {
	opts = opts.Normalize(defaultBaseURL)
	return &Client{opts: opts, logger: opts.Logger}
}

type predictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Logs   string          `json:"logs"`
	Error  json.RawMessage `json:"error"`
	Output json.RawMessage `json:"output"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

// ImageAdapter runs a text-to-image model.
func (c *Client) ImageAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generate)
}

// VideoAdapter runs a text- or image-to-video model.
func (c *Client) VideoAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generate)
}

func (c *Client) header(credential string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+credential)
	return h
}

func buildInput(req providers.Request) map[string]any {
	input := map[string]any{"prompt": strings.TrimSpace(req.Prompt)}
	switch req.Capability {
	case domain.CapabilityImage:
		input["aspect_ratio"] = "16:9"
	case domain.CapabilityVideo:
		if src := req.Source; src != nil {
			switch {
			case len(src.Data) > 0:
				mime := src.MIME
				if mime == "" {
					mime = "image/png"
				}
				input["image"] = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(src.Data))
			case src.URL != "":
				input["image"] = src.URL
			}
		}
	}
	return input
}

// endpointFor accepts "owner/name" (official model endpoint) or
// "owner/name:version" (versioned predictions endpoint).
func (c *Client) endpointFor(model string) (string, string, error) {
	model = strings.TrimSpace(model)
	name, version, hasVersion := strings.Cut(model, ":")
	if !strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%s: model %q must be owner/name: %w", providerName, model, domain.ErrInvalidInput)
	}
	if hasVersion && version != "" {
		return c.opts.BaseURL + "/predictions", version, nil
	}
	return c.opts.BaseURL + "/models/" + name + "/predictions", "", nil
}

func (c *Client) generate(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, providers.ErrMissingCredential
	}
	endpoint, version, err := c.endpointFor(req.Model)
	if err != nil {
		return nil, err
	}
	var pred prediction
	err = providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodPost, endpoint, c.header(req.Credential),
		predictionRequest{Version: version, Input: buildInput(req)}, &pred)
	if err != nil {
		return nil, err
	}
	if pred.URLs.Get == "" {
		return nil, providers.Invalid(providerName, "prediction has no poll url")
	}
	c.logger.Debug().Str("request_id", req.RequestID).Str("prediction", pred.ID).Msg("replicate: prediction created")
	providers.Report(progress, 0)

	if !terminal(pred.Status) {
		err = providers.Poll(ctx, c.opts.PollInterval, c.opts.MaxWait, func(ctx context.Context) (bool, error) {
			if err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodGet, pred.URLs.Get, c.header(req.Credential), nil, &pred); err != nil {
				return false, err
			}
			if pct, ok := parseLogProgress(pred.Logs); ok {
				providers.Report(progress, pct)
			}
			return terminal(pred.Status), nil
		})
		if err != nil {
			c.cancel(pred, req.Credential)
			return nil, err
		}
	}

	switch pred.Status {
	case "succeeded":
	case "canceled":
		return nil, context.Canceled
	default:
		return nil, providers.Rejected(providerName, errorText(pred.Error))
	}
	target, err := firstOutput(pred.Output)
	if err != nil {
		return nil, err
	}
	data, mime, err := providers.Download(ctx, c.opts.HTTPClient, providerName, target, nil)
	if err != nil {
		return nil, err
	}
	providers.Report(progress, 100)
	return &providers.Result{Data: data, MIME: mime, URL: target}, nil
}

// cancel releases the remote prediction. It runs on a fresh context because
// the caller's has usually ended already.
func (c *Client) cancel(pred prediction, credential string) {
	if pred.URLs.Cancel == "" || terminal(pred.Status) {
		return
	}
	ctx, done := context.WithTimeout(context.Background(), cancelTimeout)
	defer done()
	if err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodPost, pred.URLs.Cancel, c.header(credential), nil, nil); err != nil {
		c.logger.Warn().Err(err).Str("prediction", pred.ID).Msg("replicate: cancel prediction failed")
		return
	}
	c.logger.Debug().Str("prediction", pred.ID).Msg("replicate: prediction cancelled")
}

func terminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// parseLogProgress returns the last percentage printed in prediction logs,
// as emitted by tqdm-style progress bars.
func parseLogProgress(logs string) (int, bool) {
	matches := percentPattern.FindAllStringSubmatch(logs, -1)
	if len(matches) == 0 {
		return 0, false
	}
	pct, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || pct > 100 {
		return 0, false
	}
	return pct, true
}

func firstOutput(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0] != "" {
		return list[0], nil
	}
	return "", providers.Invalid(providerName, "prediction output is empty")
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "prediction failed"
	}
	return string(raw)
}
