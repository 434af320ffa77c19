// Command engramd runs the Engram memory API server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/embed"
	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/server"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/internal/storage/postgres"
	"github.com/engramlabs/engram/internal/storage/sqlite"
)

func main() {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	embedder, err := embed.NewGenerator(cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to initialize embedding provider: %v", err)
	}
	if embedder != nil {
		embed.WarnUnknownModel(embedder.Model())
	} else {
		log.Println("Running without an embedding provider; semantic search disabled")
	}

	eng := engine.NewMemoryEngine(store, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _ := server.Start(ctx, cfg, eng)
	log.Printf("Engram API listening on http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore builds the configured storage backend.
func openStore(cfg *config.Config) (storage.MemoryStore, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewStore(cfg.Storage.SQLitePath)
	}
}
