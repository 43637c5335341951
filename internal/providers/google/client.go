// Package google adapts the Gemini API: generateContent for text, image and
// speech, and the Veo long-running predict operation for video.
package google

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
	providerName   = "google"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultVoice   = "Kore"
	// veoExpected is the typical Veo turnaround used to pace synthetic progress.
	veoExpected = 90 * time.Second
)

// Client talks to the Gemini REST API.
type Client struct {
	opts   providers.Options
	logger *infra.Logger
	voice  string
}

// NewClient constructs a Gemini client with sane defaults.
func NewClient(opts providers.Options) *Client {
	opts = opts.Normalize(defaultBaseURL)
	return &Client{opts: opts, logger: opts.Logger, voice: defaultVoice}
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

func (c *Client) header(credential string) http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", credential)
	return h
}

func (c *Client) generateContent(ctx context.Context, req providers.Request, payload generateContentRequest) (*generateContentResponse, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, providers.ErrMissingCredential
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.opts.BaseURL, url.PathEscape(req.Model))
	var out generateContentResponse
	if err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodPost, endpoint, c.header(req.Credential), payload, &out); err != nil {
		return nil, err
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return nil, providers.Rejected(providerName, "prompt blocked: "+out.PromptFeedback.BlockReason)
	}
	return &out, nil
}

func userContent(req providers.Request, prompt string) []content {
	parts := []part{{Text: prompt}}
	if src := req.Source; src != nil && len(src.Data) > 0 {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: firstNonEmpty(src.MIME, "image/png"),
			Data:     base64.StdEncoding.EncodeToString(src.Data),
		}})
	}
	return []content{{Role: "user", Parts: parts}}
}

// firstInline returns the first inline blob whose MIME starts with prefix.
func firstInline(resp *generateContentResponse, prefix string) ([]byte, string, error) {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if !strings.HasPrefix(p.InlineData.MimeType, prefix) {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, "", providers.Invalid(providerName, "decode inline data: %v", err)
			}
			return data, p.InlineData.MimeType, nil
		}
	}
	return nil, "", providers.Invalid(providerName, "no %s data in response", strings.TrimSuffix(prefix, "/"))
}

func withLocale(prompt, locale string) string {
	prompt = strings.TrimSpace(prompt)
	if locale = strings.TrimSpace(locale); locale != "" && locale != "en" {
		return prompt + "\nLocale: " + locale
	}
	return prompt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
