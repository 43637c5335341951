package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mourne/internal/domain"
	"mourne/internal/providers"
)

func TestTextAdapterSendsChatCompletion(t *testing.T) {
	var body chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"choices":[{"message":{"content":"  Verse one.  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(providers.Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := c.TextAdapter().Generate(context.Background(), providers.Request{
		Capability: domain.CapabilityText, Model: "openai/gpt-4o-mini", Credential: "sk-or", Prompt: "write a verse", Locale: "id",
	}, nil)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Text != "Verse one." {
		t.Fatalf("text = %q", res.Text)
	}
	if auth != "Bearer sk-or" {
		t.Fatalf("authorization = %q", auth)
	}
	if body.Model != "openai/gpt-4o-mini" || len(body.Messages) != 2 {
		t.Fatalf("request = %+v", body)
	}
	if body.Messages[1].Content != "write a verse\nWrite in locale: id" {
		t.Fatalf("user message = %q", body.Messages[1].Content)
	}
}

func TestTextAdapterEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(providers.Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.TextAdapter().Generate(context.Background(), providers.Request{Model: "m", Credential: "k", Prompt: "x"}, nil)
	if !errors.Is(err, providers.ErrInvalidResponse) {
		t.Fatalf("Generate error = %v, want ErrInvalidResponse", err)
	}
}
