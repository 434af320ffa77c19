// Package types defines the core data structures for the Engram memory engine.
// A MemoryRecord is the unit of storage: one free-text memory scoped to an
// owner/persona pair, optionally carrying a vector embedding.
package types

import (
	"errors"
	"time"
)

// MemoryType classifies the purpose/nature of a memory.
type MemoryType string

// Memory type constants. Each type carries a fixed base importance weight
// (see the engine's importance scorer).
const (
	MemoryFact        MemoryType = "fact"        // Stable statements about the user ("I am a nurse")
	MemoryPreference  MemoryType = "preference"  // Likes, dislikes, tastes ("I love jazz")
	MemoryExperience  MemoryType = "experience"  // Events the user took part in
	MemoryEmotional   MemoryType = "emotional"   // Feelings and emotional reactions
	MemoryContext     MemoryType = "context"     // Situational/background annotations
	MemoryInstruction MemoryType = "instruction" // Standing directives ("always answer in French")
	MemoryGeneral     MemoryType = "general"     // Anything that matches no other type
)

// ValidMemoryTypes is a slice of all valid memory types for validation.
var ValidMemoryTypes = []MemoryType{
	MemoryFact,
	MemoryPreference,
	MemoryExperience,
	MemoryEmotional,
	MemoryContext,
	MemoryInstruction,
	MemoryGeneral,
}

// IsValidMemoryType checks if the given memory type is valid.
func IsValidMemoryType(memoryType MemoryType) bool {
	for _, validType := range ValidMemoryTypes {
		if validType == memoryType {
			return true
		}
	}
	return false
}

// MemoryRecord represents a single persona memory.
//
// ID, OwnerID, PersonaID, Content, Timestamp, Context, and MemoryType are
// immutable after creation. Consolidation never rewrites an existing record's
// content; it inserts a new record and deletes the sources.
type MemoryRecord struct {
	ID        string `json:"id"`         // Unique identifier, assigned at creation
	OwnerID   string `json:"owner_id"`   // Owning user; half of the partition key
	PersonaID string `json:"persona_id"` // Persona within the owner; other half of the partition key

	Content   string    `json:"content"`           // Raw memory text
	Timestamp time.Time `json:"timestamp"`         // Creation time
	Context   string    `json:"context,omitempty"` // Optional free-text annotation

	// Embedding is the vector representation of Content, or nil when
	// embedding generation failed at write time. A record without an
	// embedding is still stored and listable but is excluded from
	// similarity search and deduplication.
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`

	ImportanceScore float64    `json:"importance_score"` // Always within [0.1, 1.0]
	MemoryType      MemoryType `json:"memory_type"`

	// Access tracking. AccessCount and LastAccessedAt are bumped on every
	// retrieval or reinforcement event.
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// DecayFactor is the informational ratio of post-decay to pre-decay
	// importance, recomputed on each global decay pass. 1.0 for fresh records.
	DecayFactor float64 `json:"decay_factor"`

	// ConsolidatedFrom lists the source record IDs, set only on records
	// produced by consolidation, in cluster order (seed first).
	ConsolidatedFrom []string `json:"consolidated_from,omitempty"`
}

// HasEmbedding reports whether the record carries a usable embedding.
func (m *MemoryRecord) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// Validate checks that the record satisfies storage invariants.
func (m *MemoryRecord) Validate() error {
	if m.ID == "" {
		return errors.New("memory record: ID is required")
	}
	if m.OwnerID == "" {
		return errors.New("memory record: owner ID is required")
	}
	if m.PersonaID == "" {
		return errors.New("memory record: persona ID is required")
	}
	if m.Content == "" {
		return errors.New("memory record: content is required")
	}
	if !IsValidMemoryType(m.MemoryType) {
		return errors.New("memory record: invalid memory type")
	}
	if m.ImportanceScore < 0.1 || m.ImportanceScore > 1.0 {
		return errors.New("memory record: importance score out of range [0.1, 1.0]")
	}
	return nil
}
