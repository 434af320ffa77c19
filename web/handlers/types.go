package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StoreMemoryRequest is the body for POST .../memories.
type StoreMemoryRequest struct {
	Content    string   `json:"content"`
	Context    string   `json:"context,omitempty"`
	MemoryType string   `json:"memory_type,omitempty"`
	Importance *float64 `json:"importance,omitempty"`
}

// SearchRequest is the body for POST .../memories/search.
type SearchRequest struct {
	Query         string   `json:"query"`
	Limit         int      `json:"limit,omitempty"`
	MinSimilarity float64  `json:"min_similarity,omitempty"`
	Types         []string `json:"types,omitempty"`
}

// ImportRequest is the body for POST .../memories/import.
type ImportRequest struct {
	Memories []types.MemoryRecord `json:"memories"`
}

// ImportResponse reports how many records were actually imported.
type ImportResponse struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// UpdateImportanceRequest is the body for PATCH .../memories/{id}/importance.
type UpdateImportanceRequest struct {
	Importance float64 `json:"importance"`
}

// ConsolidateRequest is the body for POST .../maintenance/consolidate.
type ConsolidateRequest struct {
	Threshold float64 `json:"threshold,omitempty"`
}

// CleanupRequest is the body for POST .../maintenance/cleanup.
type CleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

// CountResponse wraps a bare count.
type CountResponse struct {
	Count int `json:"count"`
}

// ListResponse is a paginated listing of raw memory records.
type ListResponse struct {
	Memories []types.MemoryRecord `json:"memories"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
}

// scopeFromRequest builds the (owner, persona) scope from path values.
func scopeFromRequest(r *http.Request) storage.Scope {
	return storage.Scope{
		OwnerID:   r.PathValue("owner"),
		PersonaID: r.PathValue("persona"),
	}
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; log and move on.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
