package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// MemoryHandlers contains the HTTP handlers for the memory REST API. Every
// route is scoped by {owner} and {persona} path values.
type MemoryHandlers struct {
	engine *engine.MemoryEngine
}

// NewMemoryHandlers creates a new MemoryHandlers instance.
func NewMemoryHandlers(eng *engine.MemoryEngine) *MemoryHandlers {
	return &MemoryHandlers{engine: eng}
}

// StoreMemory handles POST /api/personas/{owner}/{persona}/memories.
func (h *MemoryHandlers) StoreMemory(w http.ResponseWriter, r *http.Request) {
	var req StoreMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	opts := engine.StoreOptions{
		Context:            req.Context,
		TypeOverride:       types.MemoryType(req.MemoryType),
		ImportanceOverride: req.Importance,
	}
	if req.MemoryType != "" && !types.IsValidMemoryType(opts.TypeOverride) {
		respondError(w, http.StatusBadRequest, "invalid memory type", nil)
		return
	}

	result, err := h.engine.StoreMemory(r.Context(), scopeFromRequest(r), req.Content, opts)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyContent), errors.Is(err, storage.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, "invalid memory", err)
		default:
			respondError(w, http.StatusInternalServerError, "failed to store memory", err)
		}
		return
	}

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

// ListMemories handles GET /api/personas/{owner}/{persona}/memories.
func (h *MemoryHandlers) ListMemories(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	// Cap page size to prevent resource exhaustion.
	if limit > 1000 {
		limit = 1000
	}

	memories, err := h.engine.GetMemories(r.Context(), scopeFromRequest(r), limit, offset)
	if err != nil {
		respondStorageError(w, "failed to list memories", err)
		return
	}
	respondJSON(w, http.StatusOK, ListResponse{Memories: memories, Limit: limit, Offset: offset})
}

// SearchMemories handles POST /api/personas/{owner}/{persona}/memories/search.
func (h *MemoryHandlers) SearchMemories(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required", nil)
		return
	}

	typeFilter := make([]types.MemoryType, 0, len(req.Types))
	for _, t := range req.Types {
		mt := types.MemoryType(t)
		if !types.IsValidMemoryType(mt) {
			respondError(w, http.StatusBadRequest, "invalid memory type in filter", nil)
			return
		}
		typeFilter = append(typeFilter, mt)
	}

	results, err := h.engine.SearchMemories(r.Context(), scopeFromRequest(r), req.Query, engine.SearchOptions{
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Types:         typeFilter,
	})
	if err != nil {
		respondStorageError(w, "search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// GetCoreMemories handles GET /api/personas/{owner}/{persona}/memories/core.
func (h *MemoryHandlers) GetCoreMemories(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 10)
	memories, err := h.engine.GetCoreMemories(r.Context(), scopeFromRequest(r), limit)
	if err != nil {
		respondStorageError(w, "failed to load core memories", err)
		return
	}
	respondJSON(w, http.StatusOK, memories)
}

// GetCount handles GET /api/personas/{owner}/{persona}/memories/count.
func (h *MemoryHandlers) GetCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.GetMemoryCount(r.Context(), scopeFromRequest(r))
	if err != nil {
		respondStorageError(w, "failed to count memories", err)
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: count})
}

// GetStatus handles GET /api/personas/{owner}/{persona}/memories/status.
func (h *MemoryHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.GetMemoryStatus(r.Context(), scopeFromRequest(r))
	if err != nil {
		respondStorageError(w, "failed to load memory status", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetStats handles GET /api/personas/{owner}/{persona}/memories/stats.
func (h *MemoryHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetMemoryStats(r.Context(), scopeFromRequest(r))
	if err != nil {
		respondStorageError(w, "failed to load memory stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// WipeMemories handles DELETE /api/personas/{owner}/{persona}/memories.
func (h *MemoryHandlers) WipeMemories(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.engine.WipeMemories(r.Context(), scopeFromRequest(r))
	if err != nil {
		respondStorageError(w, "failed to wipe memories", err)
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: deleted})
}

// ExportMemories handles GET /api/personas/{owner}/{persona}/memories/export.
func (h *MemoryHandlers) ExportMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := h.engine.ExportMemories(r.Context(), scopeFromRequest(r))
	if err != nil {
		respondStorageError(w, "failed to export memories", err)
		return
	}
	respondJSON(w, http.StatusOK, ImportRequest{Memories: memories})
}

// ImportMemories handles POST /api/personas/{owner}/{persona}/memories/import.
func (h *MemoryHandlers) ImportMemories(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	imported, err := h.engine.ImportMemories(r.Context(), scopeFromRequest(r), req.Memories)
	if err != nil {
		respondStorageError(w, "import failed", err)
		return
	}
	respondJSON(w, http.StatusOK, ImportResponse{Imported: imported, Total: len(req.Memories)})
}

// UpdateImportance handles PATCH /api/personas/{owner}/{persona}/memories/{id}/importance.
func (h *MemoryHandlers) UpdateImportance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	var req UpdateImportanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.engine.UpdateMemoryImportance(r.Context(), scopeFromRequest(r), id, req.Importance); err != nil {
		respondStorageError(w, "failed to update importance", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Consolidate handles POST /api/personas/{owner}/{persona}/maintenance/consolidate.
func (h *MemoryHandlers) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req ConsolidateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	result, err := h.engine.ConsolidateMemories(r.Context(), scopeFromRequest(r), req.Threshold)
	if err != nil {
		respondStorageError(w, "consolidation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ApplyDecay handles POST /api/personas/{owner}/{persona}/maintenance/decay.
func (h *MemoryHandlers) ApplyDecay(w http.ResponseWriter, r *http.Request) {
	updated, err := h.engine.ApplyGlobalDecay(r.Context(), scopeFromRequest(r))
	if err != nil {
		respondStorageError(w, "decay pass failed", err)
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: updated})
}

// Cleanup handles POST /api/personas/{owner}/{persona}/maintenance/cleanup.
func (h *MemoryHandlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.RetentionDays <= 0 {
		respondError(w, http.StatusBadRequest, "retention_days must be positive", nil)
		return
	}

	deleted, err := h.engine.CleanupOldMemories(r.Context(), scopeFromRequest(r), req.RetentionDays)
	if err != nil {
		respondStorageError(w, "cleanup failed", err)
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: deleted})
}

// respondStorageError maps storage-level sentinel errors onto HTTP status
// codes, defaulting to 500.
func respondStorageError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}
