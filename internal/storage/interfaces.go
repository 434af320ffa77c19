// Package storage provides the persistence interfaces for the Engram memory
// engine.
//
// The engine treats the store as a keyed record store with scoped
// scan/filter/insert/update/delete. Backends must guarantee atomic
// single-record writes; cross-record consistency (e.g. the delete-then-insert
// pair in consolidation) is the engine's responsibility.
package storage

import (
	"context"
	"time"

	"github.com/engramlabs/engram/pkg/types"
)

// MemoryStore provides scoped CRUD operations over memory records.
type MemoryStore interface {
	// Insert persists a new record. The record must pass Validate and its ID
	// must not already exist.
	Insert(ctx context.Context, record *types.MemoryRecord) error

	// Get retrieves a record by ID within the scope.
	// Returns ErrNotFound if the record doesn't exist in that scope.
	Get(ctx context.Context, scope Scope, id string) (*types.MemoryRecord, error)

	// List retrieves records in scope with filtering and pagination.
	List(ctx context.Context, scope Scope, opts ListOptions) ([]types.MemoryRecord, error)

	// Count returns the number of records in scope.
	Count(ctx context.Context, scope Scope) (int, error)

	// Stats aggregates per-scope statistics in a single pass.
	Stats(ctx context.Context, scope Scope) (*ScopeStats, error)

	// Reinforce atomically applies one reinforcement event to a record:
	// access_count + 1, last_accessed_at = now, importance bumped by
	// importanceDelta capped at 1.0. Returns ErrNotFound if the record
	// doesn't exist in scope.
	Reinforce(ctx context.Context, scope Scope, id string, importanceDelta float64) error

	// UpdateImportance sets the importance score and decay factor of a record.
	// Returns ErrNotFound if the record doesn't exist in scope.
	UpdateImportance(ctx context.Context, scope Scope, id string, importance, decayFactor float64) error

	// Delete removes a record by ID.
	// Returns ErrNotFound if the record doesn't exist in scope.
	Delete(ctx context.Context, scope Scope, id string) error

	// DeleteBatch removes the given records in one statement and returns the
	// number actually deleted. Missing IDs are not an error.
	DeleteBatch(ctx context.Context, scope Scope, ids []string) (int, error)

	// DeleteAll removes every record in scope and returns the count deleted.
	DeleteAll(ctx context.Context, scope Scope) (int, error)

	// DeleteOlderThan removes records created before cutoff whose importance
	// is strictly below maxImportance, returning the count deleted. Important
	// old records are retained regardless of age.
	DeleteOlderThan(ctx context.Context, scope Scope, cutoff time.Time, maxImportance float64) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// VectorCandidateProvider is an optional store capability: backends with a
// native vector index (PostgreSQL + pgvector) can pre-select the nearest
// candidates by cosine distance instead of handing the engine a full scan.
// The engine falls back to List when the store does not implement this.
type VectorCandidateProvider interface {
	// NearestByVector returns up to limit embedded records in scope ordered
	// by ascending cosine distance to the query vector.
	NearestByVector(ctx context.Context, scope Scope, query []float32, limit int) ([]types.MemoryRecord, error)
}
