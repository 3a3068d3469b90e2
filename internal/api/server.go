// Package api exposes the management HTTP surface: key registration,
// watch-list inspection, stats and health.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/observability"
	"wallet-indexer/internal/registry"
	"wallet-indexer/internal/storage"
)

// StreamStatsSource is the subscriber surface the API reads for /stats and
// /health.
type StreamStatsSource interface {
	Stats() domain.StreamStats
}

// Server serves the management API.
type Server struct {
	registry *registry.Registry
	stream   StreamStatsSource
	pinger   storage.Pinger
	logger   *log.Logger
}

// NewServer creates the management API server.
func NewServer(reg *registry.Registry, stream StreamStatsSource, pinger storage.Pinger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		registry: reg,
		stream:   stream,
		pinger:   pinger,
		logger:   logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /keys", s.handleAddKey)
	mux.HandleFunc("DELETE /keys", s.handleRemoveKey)
	mux.HandleFunc("POST /keys/bulk", s.handleBulkAdd)
	mux.HandleFunc("GET /keys/{public_key}", s.handleGetKey)
	mux.HandleFunc("GET /users/{owner_id}/keys", s.handleKeysByOwner)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /cache/refresh", s.handleRefresh)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

// ListenAndServe runs the HTTP server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("[api] listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
