// Command engram-maint runs maintenance operations against a memory store:
// decay passes, consolidation, retention cleanup, export/import, and wipe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/embed"
	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/internal/storage/postgres"
	"github.com/engramlabs/engram/internal/storage/sqlite"
	"github.com/engramlabs/engram/pkg/types"
)

var (
	ownerID       = flag.String("owner", "", "Owner ID (required)")
	personaID     = flag.String("persona", "", "Persona ID (required)")
	decayCmd      = flag.Bool("decay", false, "Apply the decay curve to all memories and exit")
	consolidate   = flag.Bool("consolidate", false, "Consolidate near-duplicate memories and exit")
	threshold     = flag.Float64("threshold", 0, "Consolidation similarity threshold (0 uses the default)")
	cleanupDays   = flag.Int("cleanup", 0, "Delete low-importance memories older than N days and exit")
	exportPath    = flag.String("export", "", "Export all memories to a JSON file and exit")
	importPath    = flag.String("import", "", "Import memories from a JSON file and exit")
	wipe          = flag.Bool("wipe", false, "Delete every memory in scope and exit")
	statsCmd      = flag.Bool("stats", false, "Print scope statistics and exit")
	withEmbedding = flag.Bool("embeddings", true, "Use the configured embedding provider (consolidation re-embeds merged records)")
)

func main() {
	flag.Parse()

	if *ownerID == "" || *personaID == "" {
		fmt.Fprintln(os.Stderr, "both -owner and -persona are required")
		flag.Usage()
		os.Exit(2)
	}
	scope := storage.Scope{OwnerID: *ownerID, PersonaID: *personaID}

	cfg := config.Load()
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	var embedder embed.Generator
	if *withEmbedding {
		embedder, err = embed.NewGenerator(cfg.Embedding)
		if err != nil {
			log.Fatalf("Failed to initialize embedding provider: %v", err)
		}
	}

	eng := engine.NewMemoryEngine(store, embedder)
	ctx := context.Background()

	switch {
	case *decayCmd:
		updated, err := eng.ApplyGlobalDecay(ctx, scope)
		if err != nil {
			log.Fatalf("Decay pass failed: %v", err)
		}
		fmt.Printf("Applied decay to %d memories\n", updated)

	case *consolidate:
		result, err := eng.ConsolidateMemories(ctx, scope, *threshold)
		if err != nil {
			log.Fatalf("Consolidation failed: %v", err)
		}
		fmt.Printf("Consolidated %d clusters, removed %d records\n", len(result.Groups), result.DeletedCount)

	case *cleanupDays > 0:
		deleted, err := eng.CleanupOldMemories(ctx, scope, *cleanupDays)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Deleted %d memories older than %d days\n", deleted, *cleanupDays)

	case *exportPath != "":
		if err := exportMemories(ctx, eng, scope, *exportPath); err != nil {
			log.Fatalf("Export failed: %v", err)
		}

	case *importPath != "":
		if err := importMemories(ctx, eng, scope, *importPath); err != nil {
			log.Fatalf("Import failed: %v", err)
		}

	case *wipe:
		deleted, err := eng.WipeMemories(ctx, scope)
		if err != nil {
			log.Fatalf("Wipe failed: %v", err)
		}
		fmt.Printf("Deleted %d memories\n", deleted)

	case *statsCmd:
		stats, err := eng.GetMemoryStats(ctx, scope)
		if err != nil {
			log.Fatalf("Stats failed: %v", err)
		}
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))

	default:
		fmt.Fprintln(os.Stderr, "no operation selected")
		flag.Usage()
		os.Exit(2)
	}
}

func exportMemories(ctx context.Context, eng *engine.MemoryEngine, scope storage.Scope, path string) error {
	records, err := eng.ExportMemories(ctx, scope)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Exported %d memories to %s\n", len(records), path)
	return nil
}

func importMemories(ctx context.Context, eng *engine.MemoryEngine, scope storage.Scope, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []types.MemoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	imported, err := eng.ImportMemories(ctx, scope, records)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d/%d memories\n", imported, len(records))
	return nil
}

// openStore builds the configured storage backend.
func openStore(cfg *config.Config) (storage.MemoryStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	}
	return sqlite.NewStore(cfg.Storage.SQLitePath)
}
