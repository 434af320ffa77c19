package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// ConsolidateMemories merges clusters of near-duplicate memories into
// single summary records. Clustering is greedy single-link against each
// seed: records are visited by importance then recency, and each
// unprocessed record joins the first seed it is similar enough to. A
// threshold <= 0 selects the default of 0.8.
//
// The pass is additive-then-subtractive: one merged record is inserted per
// cluster and every member is deleted in a single batch afterwards, so the
// store never retains both the originals and their merge. Running the pass
// twice with no intervening writes is a no-op the second time.
func (e *MemoryEngine) ConsolidateMemories(ctx context.Context, scope storage.Scope, threshold float64) (*ConsolidationResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = defaultConsolidationThreshold
	}

	records, err := e.store.List(ctx, scope, storage.ListOptions{OnlyEmbedded: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load memories for consolidation: %w", err)
	}

	// Most important, most recent records seed clusters first.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ImportanceScore != records[j].ImportanceScore {
			return records[i].ImportanceScore > records[j].ImportanceScore
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	result := &ConsolidationResult{}
	processed := make(map[string]bool, len(records))
	var toDelete []string

	for i := range records {
		seed := &records[i]
		if processed[seed.ID] {
			continue
		}
		processed[seed.ID] = true

		cluster := []*types.MemoryRecord{seed}
		for j := range records {
			candidate := &records[j]
			if processed[candidate.ID] {
				continue
			}
			if CosineSimilarity(seed.Embedding, candidate.Embedding) >= threshold {
				processed[candidate.ID] = true
				cluster = append(cluster, candidate)
			}
		}

		if len(cluster) < 2 {
			continue
		}

		merged := e.mergeCluster(ctx, scope, cluster)
		if err := e.store.Insert(ctx, merged); err != nil {
			return nil, fmt.Errorf("failed to insert consolidated memory: %w", err)
		}

		memberIDs := make([]string, len(cluster))
		for k, member := range cluster {
			memberIDs[k] = member.ID
		}
		toDelete = append(toDelete, memberIDs...)
		result.Groups = append(result.Groups, ConsolidationGroup{
			Record:    *merged,
			MemberIDs: memberIDs,
		})
	}

	if len(toDelete) > 0 {
		deleted, err := e.store.DeleteBatch(ctx, scope, toDelete)
		if err != nil {
			return nil, fmt.Errorf("failed to delete consolidated members: %w", err)
		}
		result.DeletedCount = deleted
	}

	log.Printf("engine: consolidated %d clusters (%d records removed) for %s/%s",
		len(result.Groups), result.DeletedCount, scope.OwnerID, scope.PersonaID)
	if cb := e.hooks(); cb.OnConsolidated != nil && len(result.Groups) > 0 {
		cb.OnConsolidated(scope, *result)
	}
	return result, nil
}

// mergeCluster builds the replacement record for a cluster of two or more
// members. The merged content is re-embedded fresh; if that fails the
// record is still produced without an embedding rather than losing the
// members' data, and a later consolidation or re-embed pass can restore
// searchability.
func (e *MemoryEngine) mergeCluster(ctx context.Context, scope storage.Scope, cluster []*types.MemoryRecord) *types.MemoryRecord {
	base := cluster[0]
	var importanceSum float64
	accessSum := 0
	typeVotes := make(map[types.MemoryType]int, len(cluster))
	memberIDs := make([]string, len(cluster))

	for i, member := range cluster {
		if len(member.Content) > len(base.Content) {
			base = member
		}
		importanceSum += member.ImportanceScore
		accessSum += member.AccessCount
		typeVotes[member.MemoryType]++
		memberIDs[i] = member.ID
	}

	content := base.Content
	contextNote := ""
	if len(cluster) > 2 {
		contextNote = fmt.Sprintf("consolidated from %d memories", len(cluster))
		content = fmt.Sprintf("%s [%s]", content, contextNote)
	}

	importance := importanceSum / float64(len(cluster)) * 1.1
	if importance > 1.0 {
		importance = 1.0
	}

	// Majority type, ties broken by cluster iteration order.
	mergedType := cluster[0].MemoryType
	bestVotes := 0
	for _, member := range cluster {
		if votes := typeVotes[member.MemoryType]; votes > bestVotes {
			mergedType = member.MemoryType
			bestVotes = votes
		}
	}

	now := time.Now().UTC()
	return &types.MemoryRecord{
		ID:               uuid.NewString(),
		OwnerID:          scope.OwnerID,
		PersonaID:        scope.PersonaID,
		Content:          content,
		Timestamp:        now,
		Context:          contextNote,
		Embedding:        e.embedText(ctx, content),
		EmbeddingModel:   e.embeddingModel(),
		ImportanceScore:  clampImportance(importance),
		MemoryType:       mergedType,
		AccessCount:      accessSum,
		LastAccessedAt:   &now,
		DecayFactor:      1.0,
		ConsolidatedFrom: memberIDs,
	}
}
