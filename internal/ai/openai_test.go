package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIClientFallsBackAcrossModels(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		models = append(models, body.Model)

		w.Header().Set("Content-Type", "application/json")
		if body.Model != "working-model" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"message":"model not found","type":"not_found"}}`)
			return
		}
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"compatible answer"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Models:  []string{"missing-model", "working-model"},
	}, testLogger)

	text, tokens := client.GetResponse(context.Background(), Request{Prompt: "Hello"})
	if text != "compatible answer" {
		t.Errorf("Expected answer from second model, got %q", text)
	}
	if tokens == 0 {
		t.Error("Expected a nonzero token estimate")
	}
	if len(models) != 2 || models[0] != "missing-model" {
		t.Errorf("Unexpected model order %v", models)
	}
}

func TestOpenAIClientAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"down"}}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Models: []string{"a", "b"}}, testLogger)

	text, tokens := client.GetResponse(context.Background(), Request{Prompt: "Hello"})
	if !IsFallbackText(text) || tokens != 0 {
		t.Errorf("Expected fallback, got %q/%d", text, tokens)
	}
}
