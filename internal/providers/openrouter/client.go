// Package openrouter drafts text through the OpenAI-compatible chat
// completions endpoint exposed by OpenRouter.
package openrouter

import (
	"context"
	"net/http"
	"strings"

	"mourne/internal/infra"
	"mourne/internal/providers"
)

const (
	providerName   = "openrouter"
	defaultBaseURL = "https://openrouter.ai/api/v1"
	systemPrompt   = "You are a screenwriter for short music videos. Reply with the requested text only."
)

type Client struct {
	opts    providers.Options
	logger  *infra.Logger
	referer string
}

func NewClient(opts providers.Options) *Client {
	opts = opts.Normalize(defaultBaseURL)
	return &Client{opts: opts, logger: opts.Logger, referer: "https://github.com/mourne"}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// TextAdapter returns the chat-completions text adapter.
func (c *Client) TextAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generate)
}

func (c *Client) generate(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, providers.ErrMissingCredential
	}
	prompt := strings.TrimSpace(req.Prompt)
	if locale := strings.TrimSpace(req.Locale); locale != "" && locale != "en" {
		prompt += "\nWrite in locale: " + locale
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+req.Credential)
	h.Set("HTTP-Referer", c.referer)
	h.Set("X-Title", "mourne")

	var out chatResponse
	err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodPost, c.opts.BaseURL+"/chat/completions", h, chatRequest{
		Model:       req.Model,
		Temperature: 0.7,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, providers.Invalid(providerName, "no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, providers.Invalid(providerName, "empty response")
	}
	c.logger.Debug().Str("request_id", req.RequestID).Str("model", req.Model).Int("chars", len(text)).Msg("openrouter: text generated")
	providers.Report(progress, 100)
	return &providers.Result{Text: text, MIME: "text/plain; charset=utf-8"}, nil
}
