package google

import (
	"context"
	"strings"

	"mourne/internal/providers"
)

// TextAdapter generates plain text with a Gemini model.
func (c *Client) TextAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generateText)
}

// ImageAdapter generates a still with a Gemini image model.
func (c *Client) ImageAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generateImage)
}

// SpeechAdapter narrates text with Gemini TTS and returns a WAV file.
func (c *Client) SpeechAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generateSpeech)
}

func (c *Client) generateText(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	resp, err := c.generateContent(ctx, req, generateContentRequest{Contents: userContent(req, withLocale(req.Prompt, req.Locale))})
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, providers.Invalid(providerName, "empty text response")
	}
	providers.Report(progress, 100)
	return &providers.Result{Text: text, MIME: "text/plain; charset=utf-8"}, nil
}

func (c *Client) generateImage(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	providers.Report(progress, 10)
	resp, err := c.generateContent(ctx, req, generateContentRequest{
		Contents:         userContent(req, withLocale(req.Prompt, req.Locale)),
		GenerationConfig: &generationConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	})
	if err != nil {
		return nil, err
	}
	data, mime, err := firstInline(resp, "image/")
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", req.Model).
		Int("bytes", len(data)).
		Msg("google: generated image")
	providers.Report(progress, 100)
	return &providers.Result{Data: data, MIME: mime}, nil
}

func (c *Client) generateSpeech(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	providers.Report(progress, 10)
	resp, err := c.generateContent(ctx, req, generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: strings.TrimSpace(req.Prompt)}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       &speechConfig{VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: c.voice}}},
		},
	})
	if err != nil {
		return nil, err
	}
	pcm, _, err := firstInline(resp, "audio/")
	if err != nil {
		return nil, err
	}
	providers.Report(progress, 100)
	return &providers.Result{
		Data: providers.WrapPCM(pcm, providers.PCMSampleRate, providers.PCMChannels, providers.PCMBitsPerSample),
		MIME: "audio/wav",
	}, nil
}
