// Package embed provides vector-embedding generation clients.
//
// The memory engine treats embedding generation as a best-effort external
// capability: clients return an error on any failure and the engine converts
// that into "no embedding" rather than surfacing it to the caller.
package embed

import "context"

// Generator is the interface for generating vector embeddings.
type Generator interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the embedding model name in use.
	Model() string
}
