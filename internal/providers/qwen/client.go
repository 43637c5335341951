// Package qwen generates scene stills with the DashScope Qwen image API.
package qwen

import (
	"context"
	"net/http"
	"strings"

	"mourne/internal/infra"
	"mourne/internal/providers"
)

const (
	providerName   = "qwen"
	defaultBaseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	// 16:9 canvas accepted by qwen-image models.
	defaultSize = "1664*928"
)

// Client performs HTTP calls to the DashScope multimodal generation API.
type Client struct {
	opts        providers.Options
	logger      *infra.Logger
	defaultSize string
	watermark   bool
}

func NewClient(opts providers.Options) *Client {
	opts = opts.Normalize(defaultBaseURL)
	return &Client{opts: opts, logger: opts.Logger, defaultSize: defaultSize}
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Text string `json:"text,omitempty"`
}

type generationParams struct {
	Size         string `json:"size,omitempty"`
	PromptExtend *bool  `json:"prompt_extend,omitempty"`
	Watermark    *bool  `json:"watermark,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// ImageAdapter returns the text-to-image adapter.
func (c *Client) ImageAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generate)
}

func (c *Client) generate(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, providers.ErrMissingCredential
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, providers.Rejected(providerName, "prompt is required")
	}
	extend := true
	watermark := c.watermark
	payload := generationRequest{
		Model: req.Model,
		Input: generationInput{Messages: []generationMessage{{
			Role:    "user",
			Content: []generationContent{{Text: prompt}},
		}}},
		Parameters: generationParams{Size: c.defaultSize, PromptExtend: &extend, Watermark: &watermark},
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+req.Credential)

	providers.Report(progress, 10)
	var decoded generationResponse
	endpoint := c.opts.BaseURL + "/services/aigc/multimodal-generation/generation"
	if err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodPost, endpoint, h, payload, &decoded); err != nil {
		return nil, err
	}
	if decoded.Code != "" {
		return nil, providers.Rejected(providerName, decoded.Message+" ("+decoded.Code+")")
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, providers.Invalid(providerName, "empty image url")
	}
	providers.Report(progress, 60)
	data, mime, err := providers.Download(ctx, c.opts.HTTPClient, providerName, imageURL, nil)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = "image/png"
	}
	c.logger.Debug().
		Str("model", req.Model).
		Str("request_id", decoded.RequestID).
		Str("url", imageURL).
		Msg("qwen: generated image asset")
	providers.Report(progress, 100)
	return &providers.Result{Data: data, MIME: mime, URL: imageURL}, nil
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if url := strings.TrimSpace(content.Image); url != "" {
				return url
			}
		}
	}
	return ""
}
