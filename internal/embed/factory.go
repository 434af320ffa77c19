package embed

import (
	"fmt"
	"log"

	"github.com/engramlabs/engram/internal/config"
)

// NewGenerator creates the appropriate embedding Generator from config.
// Returns (nil, nil) when the provider is "none": the engine runs without
// embeddings and every memory operation degrades to its non-semantic path.
func NewGenerator(cfg config.EmbeddingConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("embed: openai provider requires an API key")
		}
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("embed: unsupported embedding provider: %q", cfg.Provider)
	}
}

// WarnUnknownModel logs a warning when the configured model is not in the
// registry. Unknown models still work; the registry only provides metadata.
func WarnUnknownModel(model string) {
	reg, err := config.Models()
	if err != nil {
		log.Printf("embed: model registry unavailable: %v", err)
		return
	}
	if _, ok := reg.Lookup(model); !ok {
		log.Printf("embed: model %q is not in the registry; dimension metadata unavailable", model)
	}
}
