package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mourne/internal/domain"
	"mourne/internal/providers"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(providers.Options{
		BaseURL:      srv.URL,
		HTTPClient:   srv.Client(),
		PollInterval: time.Millisecond,
		MaxWait:      time.Second,
	})
}

func TestImageAdapterDecodesInlineData(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var gotKey, gotPath string
	var body generateContentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{
				map[string]any{"text": "here you go"},
				map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(png)}},
			}}}},
		})
	}))
	defer srv.Close()

	var progress []int
	res, err := newTestClient(srv).ImageAdapter().Generate(context.Background(), providers.Request{
		Capability: domain.CapabilityImage,
		Model:      "gemini-3-pro-image-preview",
		Credential: "key-1",
		Prompt:     "a lighthouse at dusk",
	}, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if gotKey != "key-1" {
		t.Fatalf("api key header = %q, want key-1", gotKey)
	}
	if gotPath != "/models/gemini-3-pro-image-preview:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if body.GenerationConfig == nil || body.GenerationConfig.ResponseModalities[0] != "IMAGE" {
		t.Fatalf("generation config = %+v", body.GenerationConfig)
	}
	if string(res.Data) != string(png) || res.MIME != "image/png" {
		t.Fatalf("result = %+v", res)
	}
	if progress[len(progress)-1] != 100 {
		t.Fatalf("last progress = %d, want 100", progress[len(progress)-1])
	}
}

func TestImageAdapterWithoutImageIsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"no image"}]}}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ImageAdapter().Generate(context.Background(), providers.Request{Model: "m", Credential: "k", Prompt: "x"}, nil)
	if !errors.Is(err, providers.ErrInvalidResponse) {
		t.Fatalf("Generate error = %v, want ErrInvalidResponse", err)
	}
}

func TestSpeechAdapterWrapsPCM(t *testing.T) {
	pcm := make([]byte, 96)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{"mimeType": "audio/L16;codec=pcm;rate=24000", "data": base64.StdEncoding.EncodeToString(pcm)}},
			}}}},
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv).SpeechAdapter().Generate(context.Background(), providers.Request{Model: "gemini-2.5-flash-preview-tts", Credential: "k", Prompt: "hello"}, nil)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.MIME != "audio/wav" || len(res.Data) != 44+len(pcm) || string(res.Data[:4]) != "RIFF" {
		t.Fatalf("result mime=%q len=%d", res.MIME, len(res.Data))
	}
}

func TestTextAdapterRequiresCredential(t *testing.T) {
	c := NewClient(providers.Options{BaseURL: "http://127.0.0.1:0"})
	_, err := c.TextAdapter().Generate(context.Background(), providers.Request{Model: "m", Prompt: "x"}, nil)
	if !errors.Is(err, providers.ErrMissingCredential) {
		t.Fatalf("Generate error = %v, want ErrMissingCredential", err)
	}
}

func TestVideoAdapterPollsOperation(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
			var req veoRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Instances[0].Image == nil {
				t.Errorf("expected source image in request")
			}
			w.Write([]byte(`{"name":"models/veo/operations/op-1"}`))
		case r.URL.Path == "/models/veo/operations/op-1":
			polls++
			if polls < 3 {
				w.Write([]byte(`{"name":"models/veo/operations/op-1","done":false}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"name": "models/veo/operations/op-1",
				"done": true,
				"response": map[string]any{"generateVideoResponse": map[string]any{
					"generatedSamples": []any{map[string]any{"video": map[string]any{"uri": srvURL + "/files/clip.mp4"}}},
				}},
			})
		case r.URL.Path == "/files/clip.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			w.Write([]byte("mp4-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	var progress []int
	res, err := newTestClient(srv).VideoAdapter().Generate(context.Background(), providers.Request{
		Model:      "veo",
		Credential: "k",
		Prompt:     "pan across the harbour",
		Source:     &providers.SourceMedia{Data: []byte{1, 2, 3}, MIME: "image/png"},
	}, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if string(res.Data) != "mp4-bytes" || res.MIME != "video/mp4" {
		t.Fatalf("result = %+v", res)
	}
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
	if progress[len(progress)-1] != 100 {
		t.Fatalf("last progress = %d, want 100", progress[len(progress)-1])
	}
}

func TestVideoAdapterOperationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":predictLongRunning") {
			w.Write([]byte(`{"name":"operations/op-2"}`))
			return
		}
		w.Write([]byte(`{"name":"operations/op-2","done":true,"error":{"code":3,"message":"unsafe prompt"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).VideoAdapter().Generate(context.Background(), providers.Request{Model: "veo", Credential: "k", Prompt: "x"}, nil)
	if !errors.Is(err, providers.ErrRejected) {
		t.Fatalf("Generate error = %v, want ErrRejected", err)
	}
}

func TestEstimateIsCapped(t *testing.T) {
	if got := estimate(0); got != 5 {
		t.Fatalf("estimate(0) = %d, want 5", got)
	}
	if got := estimate(time.Hour); got != 95 {
		t.Fatalf("estimate(1h) = %d, want 95", got)
	}
}
