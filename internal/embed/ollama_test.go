package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/engramlabs/engram/internal/config"
)

func ollamaCfg() config.EmbeddingConfig {
	return config.EmbeddingConfig{Provider: "ollama", OllamaURL: "http://localhost:11434"}
}

func openaiCfg(key string) config.EmbeddingConfig {
	return config.EmbeddingConfig{Provider: "openai", OpenAIAPIKey: key}
}

func noneCfg() config.EmbeddingConfig {
	return config.EmbeddingConfig{Provider: "none"}
}

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q, want nomic-embed-text", req.Model)
		}
		if req.Input != "I like hiking" {
			t.Errorf("input = %q", req.Input)
		}

		json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})

	vec, err := client.Embed(context.Background(), "I like hiking")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestOllamaEmbedErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server_error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"empty_embeddings", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(embedResponse{})
		}},
		{"malformed_json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})
			if _, err := client.Embed(context.Background(), "text"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"version":"0.5.0"}`))
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	client = NewOllamaClient(OllamaConfig{BaseURL: "http://127.0.0.1:1"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check failure for unreachable server")
	}
}

func TestOllamaDefaults(t *testing.T) {
	client := NewOllamaClient(OllamaConfig{})
	if client.Model() != "nomic-embed-text" {
		t.Errorf("default model = %q", client.Model())
	}
	if client.baseURL != "http://localhost:11434" {
		t.Errorf("default base URL = %q", client.baseURL)
	}
}

func TestNewGeneratorSelection(t *testing.T) {
	gen, err := NewGenerator(ollamaCfg())
	if err != nil || gen == nil {
		t.Fatalf("ollama generator: %v", err)
	}
	if _, ok := gen.(*OllamaClient); !ok {
		t.Errorf("expected *OllamaClient, got %T", gen)
	}

	gen, err = NewGenerator(openaiCfg("sk-test"))
	if err != nil || gen == nil {
		t.Fatalf("openai generator: %v", err)
	}
	if _, ok := gen.(*OpenAIClient); !ok {
		t.Errorf("expected *OpenAIClient, got %T", gen)
	}

	if _, err := NewGenerator(openaiCfg("")); err == nil {
		t.Error("openai without API key should fail")
	}

	gen, err = NewGenerator(noneCfg())
	if err != nil {
		t.Fatalf("none provider: %v", err)
	}
	if gen != nil {
		t.Error("none provider should return a nil generator")
	}
}
