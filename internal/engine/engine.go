// Package engine implements the persona memory engine: classification,
// importance scoring, deduplication, semantic search, decay, and
// consolidation over per-(owner, persona) memory records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramlabs/engram/internal/embed"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// ErrEmptyContent is returned when a caller tries to store blank content.
var ErrEmptyContent = errors.New("memory content is empty")

// MemoryEngine coordinates storage and embedding generation for one record
// store. Safe for concurrent use; each public method runs to completion
// against the store before returning, with no background work of its own.
type MemoryEngine struct {
	store    storage.MemoryStore
	embedder embed.Generator

	mu        sync.RWMutex
	callbacks Callbacks
}

// NewMemoryEngine creates an engine over the given store. The embedder may
// be nil, in which case every operation takes its non-semantic path: stores
// persist without embeddings and searches return empty results.
func NewMemoryEngine(store storage.MemoryStore, embedder embed.Generator) *MemoryEngine {
	return &MemoryEngine{store: store, embedder: embedder}
}

// SetCallbacks installs the activity hooks. Pass a zero Callbacks to clear.
func (e *MemoryEngine) SetCallbacks(cb Callbacks) {
	e.mu.Lock()
	e.callbacks = cb
	e.mu.Unlock()
}

func (e *MemoryEngine) hooks() Callbacks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.callbacks
}

// embedText generates an embedding for text, absorbing all failures.
// Returns nil when no embedder is configured or generation fails; callers
// degrade to their non-semantic path.
func (e *MemoryEngine) embedText(ctx context.Context, text string) []float32 {
	if e.embedder == nil {
		return nil
	}
	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("engine: embedding generation failed, continuing without vector: %v", err)
		return nil
	}
	return vector
}

func (e *MemoryEngine) embeddingModel() string {
	if e.embedder == nil {
		return ""
	}
	return e.embedder.Model()
}

// StoreMemory classifies, scores, deduplicates, embeds, and persists one
// memory. When the content is semantically close to an existing memory
// (similarity above 0.85), the existing record is reinforced and returned
// instead of inserting a near-duplicate.
func (e *MemoryEngine) StoreMemory(ctx context.Context, scope storage.Scope, content string, opts StoreOptions) (*StoreResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, ErrEmptyContent
	}

	memoryType := opts.TypeOverride
	if !types.IsValidMemoryType(memoryType) {
		memoryType = ClassifyMemoryType(content)
	}

	var importance float64
	if opts.ImportanceOverride != nil {
		importance = clampImportance(*opts.ImportanceOverride)
	} else {
		importance = ScoreImportance(content, memoryType)
	}

	embedding := e.embedText(ctx, content)

	if embedding != nil {
		match, similarity, err := e.findDuplicate(ctx, scope, embedding)
		if err != nil {
			return nil, err
		}
		if match != nil {
			if err := e.store.Reinforce(ctx, scope, match.ID, reinforcementDelta); err != nil {
				return nil, fmt.Errorf("failed to reinforce duplicate %s: %w", match.ID, err)
			}
			refreshed, err := e.store.Get(ctx, scope, match.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload reinforced record: %w", err)
			}
			log.Printf("engine: deduplicated memory for %s/%s onto %s (similarity %.3f)",
				scope.OwnerID, scope.PersonaID, match.ID, similarity)
			if cb := e.hooks(); cb.OnMemoryReinforced != nil {
				cb.OnMemoryReinforced(scope, match.ID)
			}
			return &StoreResult{Record: *refreshed, Deduplicated: true}, nil
		}
	}

	record := &types.MemoryRecord{
		ID:              uuid.NewString(),
		OwnerID:         scope.OwnerID,
		PersonaID:       scope.PersonaID,
		Content:         content,
		Timestamp:       time.Now().UTC(),
		Context:         opts.Context,
		Embedding:       embedding,
		EmbeddingModel:  e.embeddingModel(),
		ImportanceScore: importance,
		MemoryType:      memoryType,
		AccessCount:     0,
		DecayFactor:     1.0,
	}

	if err := e.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}

	if cb := e.hooks(); cb.OnMemoryStored != nil {
		cb.OnMemoryStored(scope, *record, false)
	}
	return &StoreResult{Record: *record}, nil
}

// findDuplicate returns the most similar embedded record in scope when its
// similarity reaches the deduplication threshold, else nil.
func (e *MemoryEngine) findDuplicate(ctx context.Context, scope storage.Scope, embedding []float32) (*types.MemoryRecord, float64, error) {
	candidates, err := e.duplicateCandidates(ctx, scope, embedding)
	if err != nil {
		return nil, 0, err
	}

	var best *types.MemoryRecord
	bestSim := 0.0
	for i := range candidates {
		sim := CosineSimilarity(embedding, candidates[i].Embedding)
		if sim >= dedupThreshold && sim > bestSim {
			best = &candidates[i]
			bestSim = sim
		}
	}
	return best, bestSim, nil
}

// duplicateCandidates loads embedded records for duplicate detection,
// preferring the store's vector index when it offers one. The nearest-by-
// similarity set always contains the most similar record, so capping it is
// safe here; composite-ranked search is not, and scans the full scope.
func (e *MemoryEngine) duplicateCandidates(ctx context.Context, scope storage.Scope, query []float32) ([]types.MemoryRecord, error) {
	if provider, ok := e.store.(storage.VectorCandidateProvider); ok {
		records, err := provider.NearestByVector(ctx, scope, query, candidateLimit)
		if err == nil {
			return records, nil
		}
		log.Printf("engine: vector candidate lookup failed, falling back to scan: %v", err)
	}
	return e.store.List(ctx, scope, storage.ListOptions{
		OnlyEmbedded: true,
	})
}

// SearchMemories embeds the query and ranks in-scope memories by composite
// relevance. A failed query embedding degrades to an empty result set, and
// every returned record is reinforced, modeling recall making a memory more
// salient.
func (e *MemoryEngine) SearchMemories(ctx context.Context, scope storage.Scope, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	queryVector := e.embedText(ctx, query)
	if queryVector == nil {
		return []SearchResult{}, nil
	}

	// A low-similarity record can still win on decayed importance and
	// recency, so no similarity index can pre-select here. Scan every
	// embedded record in scope.
	records, err := e.store.List(ctx, scope, storage.ListOptions{
		Types:        opts.Types,
		OnlyEmbedded: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load search candidates: %w", err)
	}

	now := time.Now().UTC()
	results := make([]SearchResult, 0, len(records))
	for _, record := range records {
		similarity := CosineSimilarity(queryVector, record.Embedding)
		if similarity < opts.MinSimilarity {
			continue
		}
		results = append(results, SearchResult{
			Record:     record,
			Similarity: similarity,
			Score:      compositeScore(similarity, record, now),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}

	cb := e.hooks()
	for i := range results {
		results[i].Rank = i + 1
		id := results[i].Record.ID
		if err := e.store.Reinforce(ctx, scope, id, reinforcementDelta); err != nil {
			log.Printf("engine: failed to reinforce recalled memory %s: %v", id, err)
			continue
		}
		// Mirror the persisted reinforcement in the returned copy.
		results[i].Record.AccessCount++
		results[i].Record.LastAccessedAt = &now
		results[i].Record.ImportanceScore = clampImportance(results[i].Record.ImportanceScore + reinforcementDelta)
		if cb.OnMemoryReinforced != nil {
			cb.OnMemoryReinforced(scope, id)
		}
	}

	return results, nil
}

// compositeScore blends similarity with decayed importance and a recency
// bonus. Fresh, important, on-topic memories outrank stale topical ones.
func compositeScore(similarity float64, record types.MemoryRecord, now time.Time) float64 {
	decayed := DecayedImportance(record.ImportanceScore, record.Timestamp, record.AccessCount, record.LastAccessedAt, now)

	bonus := 0.0
	age := now.Sub(record.Timestamp)
	switch {
	case age < 24*time.Hour:
		bonus = recencyBonusDay
	case age < 7*24*time.Hour:
		bonus = recencyBonusWeek
	}

	return similarityWeight*similarity + importanceWeight*decayed + bonus
}

// GetMemories returns a page of raw records in scope, newest first.
func (e *MemoryEngine) GetMemories(ctx context.Context, scope storage.Scope, limit, offset int) ([]types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return e.store.List(ctx, scope, storage.ListOptions{
		Limit:     limit,
		Offset:    offset,
		SortBy:    "timestamp",
		SortOrder: "desc",
	})
}

// GetMemoryCount returns the number of records in scope.
func (e *MemoryEngine) GetMemoryCount(ctx context.Context, scope storage.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	return e.store.Count(ctx, scope)
}

// GetMemoryStatus returns the record count and approximate storage size.
func (e *MemoryEngine) GetMemoryStatus(ctx context.Context, scope storage.Scope) (*MemoryStatus, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	stats, err := e.store.Stats(ctx, scope)
	if err != nil {
		return nil, err
	}
	return &MemoryStatus{Count: stats.Count, ApproxSizeBytes: stats.ApproxSizeBytes}, nil
}

// GetMemoryStats returns aggregate statistics for the scope.
func (e *MemoryEngine) GetMemoryStats(ctx context.Context, scope storage.Scope) (*storage.ScopeStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return e.store.Stats(ctx, scope)
}

// WipeMemories deletes every record in scope and returns the count removed.
func (e *MemoryEngine) WipeMemories(ctx context.Context, scope storage.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	deleted, err := e.store.DeleteAll(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to wipe memories: %w", err)
	}
	log.Printf("engine: wiped %d memories for %s/%s", deleted, scope.OwnerID, scope.PersonaID)
	return deleted, nil
}

// ExportMemories returns every record in scope for backup.
func (e *MemoryEngine) ExportMemories(ctx context.Context, scope storage.Scope) ([]types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return e.store.List(ctx, scope, storage.ListOptions{
		SortBy:    "timestamp",
		SortOrder: "asc",
	})
}

// ImportMemories inserts previously exported records, re-keyed to the
// target scope with fresh ids. Malformed records are logged and skipped;
// the return value is the count actually imported.
func (e *MemoryEngine) ImportMemories(ctx context.Context, scope storage.Scope, records []types.MemoryRecord) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	imported := 0
	for i := range records {
		record := records[i]
		record.ID = uuid.NewString()
		record.OwnerID = scope.OwnerID
		record.PersonaID = scope.PersonaID
		if record.Timestamp.IsZero() {
			record.Timestamp = time.Now().UTC()
		}
		if !types.IsValidMemoryType(record.MemoryType) {
			record.MemoryType = types.MemoryGeneral
		}
		record.ImportanceScore = clampImportance(record.ImportanceScore)
		if record.DecayFactor == 0 {
			record.DecayFactor = 1.0
		}

		if err := record.Validate(); err != nil {
			log.Printf("engine: skipping import record %d: %v", i, err)
			continue
		}
		if err := e.store.Insert(ctx, &record); err != nil {
			log.Printf("engine: failed to import record %d: %v", i, err)
			continue
		}
		imported++
	}

	log.Printf("engine: imported %d/%d memories into %s/%s", imported, len(records), scope.OwnerID, scope.PersonaID)
	return imported, nil
}

// UpdateMemoryImportance sets a record's importance explicitly, clamped to
// the valid range. The decay factor resets to 1.0.
func (e *MemoryEngine) UpdateMemoryImportance(ctx context.Context, scope storage.Scope, id string, importance float64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return e.store.UpdateImportance(ctx, scope, id, clampImportance(importance), 1.0)
}

// CleanupOldMemories deletes records older than the retention window whose
// importance is below 0.7. Important memories are retained regardless of
// age.
func (e *MemoryEngine) CleanupOldMemories(ctx context.Context, scope storage.Scope, retentionDays int) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := e.store.DeleteOlderThan(ctx, scope, cutoff, cleanupImportanceCeiling)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old memories: %w", err)
	}
	if deleted > 0 {
		log.Printf("engine: cleaned up %d memories older than %d days for %s/%s",
			deleted, retentionDays, scope.OwnerID, scope.PersonaID)
	}
	return deleted, nil
}

// ApplyGlobalDecay recomputes every record's effective importance from the
// decay curve and persists the result. Returns the number of records
// updated.
func (e *MemoryEngine) ApplyGlobalDecay(ctx context.Context, scope storage.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	records, err := e.store.List(ctx, scope, storage.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to load memories for decay: %w", err)
	}

	now := time.Now().UTC()
	updated := 0
	for _, record := range records {
		decayed := DecayedImportance(record.ImportanceScore, record.Timestamp, record.AccessCount, record.LastAccessedAt, now)
		if decayed == record.ImportanceScore {
			continue
		}
		factor := 1.0
		if record.ImportanceScore > 0 {
			factor = decayed / record.ImportanceScore
		}
		if err := e.store.UpdateImportance(ctx, scope, record.ID, decayed, factor); err != nil {
			return updated, fmt.Errorf("failed to apply decay to %s: %w", record.ID, err)
		}
		updated++
	}

	log.Printf("engine: applied decay to %d/%d memories for %s/%s", updated, len(records), scope.OwnerID, scope.PersonaID)
	return updated, nil
}

// GetCoreMemories returns high-importance facts, preferences, and
// instructions for unconditional prompt injection, ordered by importance
// then access count. No embedding is required, so this works even when the
// embedding provider is down.
func (e *MemoryEngine) GetCoreMemories(ctx context.Context, scope storage.Scope, limit int) ([]types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	records, err := e.store.List(ctx, scope, storage.ListOptions{
		Types: []types.MemoryType{
			types.MemoryFact,
			types.MemoryPreference,
			types.MemoryInstruction,
		},
		SortBy:    "importance",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load core memories: %w", err)
	}

	core := make([]types.MemoryRecord, 0, len(records))
	for _, record := range records {
		if record.ImportanceScore >= coreImportanceThreshold {
			core = append(core, record)
		}
	}

	sort.SliceStable(core, func(i, j int) bool {
		if core[i].ImportanceScore != core[j].ImportanceScore {
			return core[i].ImportanceScore > core[j].ImportanceScore
		}
		return core[i].AccessCount > core[j].AccessCount
	})

	if limit > 0 && len(core) > limit {
		core = core[:limit]
	}
	return core, nil
}
