// Package server provides HTTP server initialization and lifecycle
// management for the Engram API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server, wiring the engine's
// activity callbacks into the WebSocket feed. Returns the actual listen
// address (useful for testing with port 0). The server shuts down when ctx
// is cancelled.
func Start(ctx context.Context, cfg *config.Config, eng *engine.MemoryEngine) (string, *handlers.WebSocketHub) {
	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub(cfg.Server.Port)
	go wsHub.Run()

	// Engine events feed the activity stream.
	wireActivityFeed(eng, wsHub)

	rateLimiter := handlers.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	api := handlers.NewMemoryHandlers(eng)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/personas/{owner}/{persona}/memories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.ListMemories(w, r)
		case http.MethodPost:
			api.StoreMemory(w, r)
		case http.MethodDelete:
			api.WipeMemories(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("POST /api/personas/{owner}/{persona}/memories/search", api.SearchMemories)
	apiMux.HandleFunc("GET /api/personas/{owner}/{persona}/memories/core", api.GetCoreMemories)
	apiMux.HandleFunc("GET /api/personas/{owner}/{persona}/memories/count", api.GetCount)
	apiMux.HandleFunc("GET /api/personas/{owner}/{persona}/memories/status", api.GetStatus)
	apiMux.HandleFunc("GET /api/personas/{owner}/{persona}/memories/stats", api.GetStats)
	apiMux.HandleFunc("GET /api/personas/{owner}/{persona}/memories/export", api.ExportMemories)
	apiMux.HandleFunc("POST /api/personas/{owner}/{persona}/memories/import", api.ImportMemories)
	apiMux.HandleFunc("PATCH /api/personas/{owner}/{persona}/memories/{id}/importance", api.UpdateImportance)
	apiMux.HandleFunc("POST /api/personas/{owner}/{persona}/maintenance/consolidate", api.Consolidate)
	apiMux.HandleFunc("POST /api/personas/{owner}/{persona}/maintenance/decay", api.ApplyDecay)
	apiMux.HandleFunc("POST /api/personas/{owner}/{persona}/maintenance/cleanup", api.Cleanup)

	// Health endpoint is unauthenticated for monitoring.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket activity feed; origin validation handles access control.
	mux.Handle("/ws", wsHub)

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("server: failed to listen on %s: %v", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub
}

// wireActivityFeed broadcasts engine events to connected WebSocket clients.
func wireActivityFeed(eng *engine.MemoryEngine, hub *handlers.WebSocketHub) {
	eng.SetCallbacks(engine.Callbacks{
		OnMemoryStored: func(scope storage.Scope, record types.MemoryRecord, deduplicated bool) {
			hub.Broadcast(handlers.NewActivityEvent("memory_stored", scope, map[string]interface{}{
				"memory_id":    record.ID,
				"memory_type":  record.MemoryType,
				"importance":   record.ImportanceScore,
				"deduplicated": deduplicated,
			}))
		},
		OnMemoryReinforced: func(scope storage.Scope, id string) {
			hub.Broadcast(handlers.NewActivityEvent("memory_reinforced", scope, map[string]interface{}{
				"memory_id": id,
			}))
		},
		OnConsolidated: func(scope storage.Scope, result engine.ConsolidationResult) {
			hub.Broadcast(handlers.NewActivityEvent("consolidated", scope, map[string]interface{}{
				"groups":  len(result.Groups),
				"deleted": result.DeletedCount,
			}))
		},
	})
}
