package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/engramlabs/engram/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found in scope.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Scope is the composite partition key for all memory operations.
// Every read and write is constrained to one (owner, persona) pair;
// no operation may see or mutate another scope's records.
type Scope struct {
	OwnerID   string
	PersonaID string
}

// Validate checks that both halves of the scope are present.
func (s Scope) Validate() error {
	if s.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", ErrInvalidInput)
	}
	if s.PersonaID == "" {
		return fmt.Errorf("%w: persona ID is required", ErrInvalidInput)
	}
	return nil
}

// ListOptions provides filtering and pagination for scoped list operations.
type ListOptions struct {
	// Types restricts results to the given memory types. Empty means all types.
	Types []types.MemoryType

	// OnlyEmbedded restricts results to records that carry an embedding.
	// Used by similarity search and deduplication, which must never see
	// embedding-less records.
	OnlyEmbedded bool

	// Limit caps the number of records returned. 0 means no limit.
	Limit int

	// Offset skips the first N records (for pagination).
	Offset int

	// SortBy specifies the field to sort by: "timestamp", "importance",
	// or "access_count".
	SortBy string

	// SortOrder is "asc" or "desc" (default: "desc").
	SortOrder string
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection.
	allowedSortFields := map[string]bool{
		"timestamp":    true,
		"importance":   true,
		"access_count": true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "timestamp"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Limit < 0 {
		o.Limit = 0
	}

	if o.Offset < 0 {
		o.Offset = 0
	}
}

// ScopeStats aggregates per-scope statistics for reporting.
type ScopeStats struct {
	// Count is the total number of records in scope.
	Count int

	// CountByType breaks Count down per memory type.
	CountByType map[types.MemoryType]int

	// AverageImportance is the mean importance score, 0 when empty.
	AverageImportance float64

	// OldestTimestamp and NewestTimestamp bound the records' creation times.
	// Nil when the scope is empty.
	OldestTimestamp *time.Time
	NewestTimestamp *time.Time

	// TotalAccessCount sums access counts across all records in scope.
	TotalAccessCount int

	// ApproxSizeBytes estimates stored size: content plus embedding bytes.
	ApproxSizeBytes int64
}
