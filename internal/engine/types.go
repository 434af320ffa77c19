package engine

import (
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

const (
	// dedupThreshold is the similarity above which an incoming memory is
	// treated as a duplicate of an existing one and reinforces it instead
	// of inserting a new record.
	dedupThreshold = 0.85

	// defaultConsolidationThreshold is the cluster membership similarity
	// used when the caller does not supply one.
	defaultConsolidationThreshold = 0.8

	// Composite relevance weights for search ranking. Pure similarity
	// would surface stale-but-topical memories over fresh important ones.
	similarityWeight = 0.5
	importanceWeight = 0.25

	// Recency bonuses by record age.
	recencyBonusDay  = 0.1
	recencyBonusWeek = 0.05

	// reinforcementDelta is the importance bump applied whenever a memory
	// is recalled or matched by deduplication.
	reinforcementDelta = 0.05

	// coreImportanceThreshold is the minimum importance for a memory to
	// qualify as a core memory.
	coreImportanceThreshold = 0.7

	// cleanupImportanceCeiling protects important memories from retention
	// cleanup regardless of age.
	cleanupImportanceCeiling = 0.7

	// defaultSearchLimit and candidateLimit bound search result size and
	// vector-index candidate pre-selection.
	defaultSearchLimit = 5
	candidateLimit     = 200
)

// StoreOptions carries optional caller overrides for StoreMemory.
type StoreOptions struct {
	// Context is an optional free-text annotation stored with the record.
	Context string

	// TypeOverride skips classification when set to a valid memory type.
	TypeOverride types.MemoryType

	// ImportanceOverride skips heuristic scoring when non-nil. The value
	// is clamped to [0.1, 1.0].
	ImportanceOverride *float64
}

// StoreResult is the outcome of a StoreMemory call.
type StoreResult struct {
	// Record is the stored record, or the existing record that absorbed
	// the write when Deduplicated is true.
	Record types.MemoryRecord `json:"record"`

	// Deduplicated reports whether the content matched an existing memory
	// and reinforced it instead of creating a new one.
	Deduplicated bool `json:"deduplicated"`
}

// SearchOptions controls SearchMemories.
type SearchOptions struct {
	// Limit is the maximum number of results (default 5).
	Limit int

	// MinSimilarity discards candidates below this cosine similarity.
	MinSimilarity float64

	// Types restricts the search to a subset of memory types when
	// non-empty.
	Types []types.MemoryType
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Record     types.MemoryRecord `json:"record"`
	Similarity float64            `json:"similarity"`
	Score      float64            `json:"score"`
	Rank       int                `json:"rank"`
}

// ConsolidationGroup describes one merged cluster.
type ConsolidationGroup struct {
	// Record is the newly inserted merged record.
	Record types.MemoryRecord `json:"record"`

	// MemberIDs lists the ids of the records merged into it, in cluster
	// order.
	MemberIDs []string `json:"member_ids"`
}

// ConsolidationResult summarizes one consolidation pass.
type ConsolidationResult struct {
	Groups       []ConsolidationGroup `json:"groups"`
	DeletedCount int                  `json:"deleted_count"`
}

// MemoryStatus is a lightweight summary of a scope's footprint.
type MemoryStatus struct {
	Count           int   `json:"count"`
	ApproxSizeBytes int64 `json:"approx_size_bytes"`
}

// Callbacks are optional hooks fired after engine operations commit. Used
// by the activity feed; all callbacks run synchronously on the calling
// goroutine and must be fast.
type Callbacks struct {
	OnMemoryStored     func(scope storage.Scope, record types.MemoryRecord, deduplicated bool)
	OnMemoryReinforced func(scope storage.Scope, id string)
	OnConsolidated     func(scope storage.Scope, result ConsolidationResult)
}
