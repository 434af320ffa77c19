package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/storage/sqlite"
	"github.com/engramlabs/engram/pkg/types"
)

// hashEmbedder derives a deterministic pseudo-random vector from the text, so
// identical texts deduplicate and distinct texts stay dissimilar.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, 64)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int32(seed>>32)) / float32(1<<31)
	}
	return vec, nil
}

func (hashEmbedder) Model() string { return "test-hash" }

func newTestHandlers(t *testing.T) *MemoryHandlers {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "engram_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewMemoryHandlers(engine.NewMemoryEngine(store, hashEmbedder{}))
}

// scopedRequest builds a request with the owner/persona path values set, the
// way the server's route patterns would.
func scopedRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.SetPathValue("owner", "owner-1")
	r.SetPathValue("persona", "persona-1")
	return r
}

func storeOne(t *testing.T, h *MemoryHandlers, content string) engine.StoreResult {
	t.Helper()
	w := httptest.NewRecorder()
	h.StoreMemory(w, scopedRequest(http.MethodPost, "/api/personas/owner-1/persona-1/memories", StoreMemoryRequest{Content: content}))
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, w.Code, w.Body.String())

	var result engine.StoreResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestStoreMemoryHandler(t *testing.T) {
	h := newTestHandlers(t)

	result := storeOne(t, h, "I am a nurse")
	assert.False(t, result.Deduplicated)
	assert.Equal(t, types.MemoryFact, result.Record.MemoryType)
	assert.NotEmpty(t, result.Record.ID)

	// Same content again returns 200 with the deduplicated record.
	w := httptest.NewRecorder()
	h.StoreMemory(w, scopedRequest(http.MethodPost, "/x", StoreMemoryRequest{Content: "I am a nurse"}))
	assert.Equal(t, http.StatusOK, w.Code)

	var dup engine.StoreResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dup))
	assert.True(t, dup.Deduplicated)
	assert.Equal(t, result.Record.ID, dup.Record.ID)
}

func TestStoreMemoryHandlerRejectsBadInput(t *testing.T) {
	h := newTestHandlers(t)

	w := httptest.NewRecorder()
	h.StoreMemory(w, scopedRequest(http.MethodPost, "/x", StoreMemoryRequest{Content: ""}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.StoreMemory(w, scopedRequest(http.MethodPost, "/x", StoreMemoryRequest{Content: "hi", MemoryType: "bogus"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString("{not json"))
	r.SetPathValue("owner", "owner-1")
	r.SetPathValue("persona", "persona-1")
	h.StoreMemory(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndCountHandlers(t *testing.T) {
	h := newTestHandlers(t)
	storeOne(t, h, "I am a nurse")
	storeOne(t, h, "I like hiking on weekends in the hills")

	w := httptest.NewRecorder()
	h.ListMemories(w, scopedRequest(http.MethodGet, "/x?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Memories, 2)
	assert.Equal(t, 10, list.Limit)

	w = httptest.NewRecorder()
	h.GetCount(w, scopedRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var count CountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &count))
	assert.Equal(t, 2, count.Count)
}

func TestSearchHandler(t *testing.T) {
	h := newTestHandlers(t)
	storeOne(t, h, "I like hiking")

	w := httptest.NewRecorder()
	h.SearchMemories(w, scopedRequest(http.MethodPost, "/x", SearchRequest{Query: "I like hiking"}))
	require.Equal(t, http.StatusOK, w.Code)

	var results []engine.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Rank)
	assert.Greater(t, results[0].Similarity, 0.99)

	// Missing query is a client error.
	w = httptest.NewRecorder()
	h.SearchMemories(w, scopedRequest(http.MethodPost, "/x", SearchRequest{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown type filter is a client error.
	w = httptest.NewRecorder()
	h.SearchMemories(w, scopedRequest(http.MethodPost, "/x", SearchRequest{Query: "q", Types: []string{"bogus"}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWipeHandler(t *testing.T) {
	h := newTestHandlers(t)
	storeOne(t, h, "I am a nurse")
	storeOne(t, h, "I like hiking on weekends in the hills")

	w := httptest.NewRecorder()
	h.WipeMemories(w, scopedRequest(http.MethodDelete, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var count CountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &count))
	assert.Equal(t, 2, count.Count)

	w = httptest.NewRecorder()
	h.GetCount(w, scopedRequest(http.MethodGet, "/x", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &count))
	assert.Equal(t, 0, count.Count)
}

func TestExportImportHandlers(t *testing.T) {
	h := newTestHandlers(t)
	storeOne(t, h, "I am a nurse")

	w := httptest.NewRecorder()
	h.ExportMemories(w, scopedRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var exported ImportRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	require.Len(t, exported.Memories, 1)

	// Import into a different persona.
	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/x", bytes.NewReader(mustJSON(t, exported)))
	r.SetPathValue("owner", "owner-1")
	r.SetPathValue("persona", "persona-2")
	h.ImportMemories(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var imported ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imported))
	assert.Equal(t, 1, imported.Imported)
	assert.Equal(t, 1, imported.Total)
}

func TestUpdateImportanceHandler(t *testing.T) {
	h := newTestHandlers(t)
	result := storeOne(t, h, "I am a nurse")

	w := httptest.NewRecorder()
	r := scopedRequest(http.MethodPatch, "/x", UpdateImportanceRequest{Importance: 0.9})
	r.SetPathValue("id", result.Record.ID)
	h.UpdateImportance(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r = scopedRequest(http.MethodPatch, "/x", UpdateImportanceRequest{Importance: 0.9})
	r.SetPathValue("id", "missing")
	h.UpdateImportance(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaintenanceHandlers(t *testing.T) {
	h := newTestHandlers(t)
	storeOne(t, h, "I am a nurse")

	w := httptest.NewRecorder()
	h.ApplyDecay(w, scopedRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Consolidate(w, scopedRequest(http.MethodPost, "/x", ConsolidateRequest{Threshold: 0.9}))
	require.Equal(t, http.StatusOK, w.Code)

	var result engine.ConsolidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Empty(t, result.Groups)

	w = httptest.NewRecorder()
	h.Cleanup(w, scopedRequest(http.MethodPost, "/x", CleanupRequest{RetentionDays: 30}))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Cleanup(w, scopedRequest(http.MethodPost, "/x", CleanupRequest{RetentionDays: 0}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsHandlers(t *testing.T) {
	h := newTestHandlers(t)
	storeOne(t, h, "I am a nurse")

	w := httptest.NewRecorder()
	h.GetStatus(w, scopedRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status engine.MemoryStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Count)
	assert.Greater(t, status.ApproxSizeBytes, int64(0))

	w = httptest.NewRecorder()
	h.GetStats(w, scopedRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.GetCoreMemories(w, scopedRequest(http.MethodGet, "/x?limit=5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
