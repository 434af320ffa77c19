package engine_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// stubEmbedder returns canned vectors keyed by exact text. Texts without a
// vector produce an error, which the engine treats as an embedding failure.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedding provider down")
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return nil, errors.New("no vector for text")
}

func (s *stubEmbedder) Model() string { return "stub-embed" }

// fakeStore is an in-memory MemoryStore for engine tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]types.MemoryRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]types.MemoryRecord)}
}

func (f *fakeStore) inScope(r types.MemoryRecord, scope storage.Scope) bool {
	return r.OwnerID == scope.OwnerID && r.PersonaID == scope.PersonaID
}

func (f *fakeStore) Insert(_ context.Context, record *types.MemoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := record.Validate(); err != nil {
		return err
	}
	if _, exists := f.records[record.ID]; exists {
		return errors.New("duplicate id")
	}
	f.records[record.ID] = *record
	return nil
}

func (f *fakeStore) Get(_ context.Context, scope storage.Scope, id string) (*types.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || !f.inScope(r, scope) {
		return nil, storage.ErrNotFound
	}
	out := r
	return &out, nil
}

func (f *fakeStore) List(_ context.Context, scope storage.Scope, opts storage.ListOptions) ([]types.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts.Normalize()

	var out []types.MemoryRecord
	for _, r := range f.records {
		if !f.inScope(r, scope) {
			continue
		}
		if opts.OnlyEmbedded && !r.HasEmbedding() {
			continue
		}
		if len(opts.Types) > 0 {
			match := false
			for _, t := range opts.Types {
				if r.MemoryType == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		var less bool
		switch opts.SortBy {
		case "importance":
			less = out[i].ImportanceScore < out[j].ImportanceScore
		case "access_count":
			less = out[i].AccessCount < out[j].AccessCount
		default:
			less = out[i].Timestamp.Before(out[j].Timestamp)
		}
		if opts.SortOrder == "desc" {
			return !less
		}
		return less
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) Count(_ context.Context, scope storage.Scope) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.records {
		if f.inScope(r, scope) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) Stats(_ context.Context, scope storage.Scope) (*storage.ScopeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &storage.ScopeStats{CountByType: make(map[types.MemoryType]int)}
	var importanceSum float64
	for _, r := range f.records {
		if !f.inScope(r, scope) {
			continue
		}
		stats.Count++
		stats.CountByType[r.MemoryType]++
		importanceSum += r.ImportanceScore
		stats.TotalAccessCount += r.AccessCount
		stats.ApproxSizeBytes += int64(len(r.Content) + 4*len(r.Embedding))
		ts := r.Timestamp
		if stats.OldestTimestamp == nil || ts.Before(*stats.OldestTimestamp) {
			stats.OldestTimestamp = &ts
		}
		if stats.NewestTimestamp == nil || ts.After(*stats.NewestTimestamp) {
			stats.NewestTimestamp = &ts
		}
	}
	if stats.Count > 0 {
		stats.AverageImportance = importanceSum / float64(stats.Count)
	}
	return stats, nil
}

func (f *fakeStore) Reinforce(_ context.Context, scope storage.Scope, id string, importanceDelta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || !f.inScope(r, scope) {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	r.AccessCount++
	r.LastAccessedAt = &now
	r.ImportanceScore += importanceDelta
	if r.ImportanceScore > 1.0 {
		r.ImportanceScore = 1.0
	}
	f.records[id] = r
	return nil
}

func (f *fakeStore) UpdateImportance(_ context.Context, scope storage.Scope, id string, importance, decayFactor float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || !f.inScope(r, scope) {
		return storage.ErrNotFound
	}
	r.ImportanceScore = importance
	r.DecayFactor = decayFactor
	f.records[id] = r
	return nil
}

func (f *fakeStore) Delete(_ context.Context, scope storage.Scope, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || !f.inScope(r, scope) {
		return storage.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) DeleteBatch(_ context.Context, scope storage.Scope, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if r, ok := f.records[id]; ok && f.inScope(r, scope) {
			delete(f.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) DeleteAll(_ context.Context, scope storage.Scope) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, r := range f.records {
		if f.inScope(r, scope) {
			delete(f.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, scope storage.Scope, cutoff time.Time, maxImportance float64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, r := range f.records {
		if f.inScope(r, scope) && r.Timestamp.Before(cutoff) && r.ImportanceScore < maxImportance {
			delete(f.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) Close() error { return nil }

var _ storage.MemoryStore = (*fakeStore)(nil)

// indexedFakeStore adds a deliberately tiny vector index on top of fakeStore:
// NearestByVector returns only the single closest record, so any caller that
// relies on it for more than max-similarity lookups loses records.
type indexedFakeStore struct {
	*fakeStore
	nearestCalls int
}

func (s *indexedFakeStore) NearestByVector(_ context.Context, scope storage.Scope, query []float32, _ int) ([]types.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nearestCalls++

	var best *types.MemoryRecord
	bestSim := -2.0
	for _, r := range s.records {
		if !s.inScope(r, scope) || !r.HasEmbedding() {
			continue
		}
		if sim := engine.CosineSimilarity(query, r.Embedding); sim > bestSim {
			r := r
			best = &r
			bestSim = sim
		}
	}
	if best == nil {
		return nil, nil
	}
	return []types.MemoryRecord{*best}, nil
}

func (s *indexedFakeStore) nearestCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nearestCalls
}

var _ storage.VectorCandidateProvider = (*indexedFakeStore)(nil)

// snapshot returns a copy of a stored record for assertions.
func (f *fakeStore) snapshot(id string) (types.MemoryRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

func (f *fakeStore) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}
