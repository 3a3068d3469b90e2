package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/registry"
	"wallet-indexer/internal/solana"
	"wallet-indexer/internal/storage"
)

// keyRequest is the registration payload. Kind defaults to "both".
type keyRequest struct {
	OwnerID   string `json:"owner_id"`
	PublicKey string `json:"public_key"`
	Kind      string `json:"kind,omitempty"`
}

func (r keyRequest) kind() (domain.SubscriptionKind, error) {
	if r.Kind == "" {
		return domain.SubscriptionBoth, nil
	}
	return domain.ParseSubscriptionKind(r.Kind)
}

func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	kind, err := req.kind()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := s.registry.Add(r.Context(), req.OwnerID, req.PublicKey, kind)
	if err != nil {
		if errors.Is(err, solana.ErrInvalidPublicKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Printf("[api] add key failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to register key")
		return
	}

	writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleRemoveKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	removed, err := s.registry.Remove(r.Context(), req.OwnerID, req.PublicKey)
	if err != nil {
		s.logger.Printf("[api] remove key failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to remove key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleBulkAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []keyRequest `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entries := make([]registry.BulkEntry, 0, len(req.Keys))
	for _, k := range req.Keys {
		kind := domain.SubscriptionKind(k.Kind)
		if k.Kind == "" {
			kind = domain.SubscriptionBoth
		}
		// Invalid kinds surface through the per-key result.
		entries = append(entries, registry.BulkEntry{
			OwnerID:   k.OwnerID,
			PublicKey: k.PublicKey,
			Kind:      kind,
		})
	}

	writeJSON(w, http.StatusOK, s.registry.BulkAdd(r.Context(), entries))
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	publicKey := r.PathValue("public_key")

	key, err := s.registry.KeyByPublicKey(r.Context(), publicKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "key not found")
			return
		}
		s.logger.Printf("[api] get key failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load key")
		return
	}

	writeJSON(w, http.StatusOK, key)
}

func (s *Server) handleKeysByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner_id")

	keys, err := s.registry.KeysByOwner(r.Context(), ownerID)
	if err != nil {
		s.logger.Printf("[api] keys by owner failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load keys")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner_id": ownerID,
		"keys":     keys,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	regStats, err := s.registry.Stats(r.Context())
	if err != nil {
		s.logger.Printf("[api] registry stats failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"registry": regStats,
		"stream":   s.stream.Stats(),
		"cached":   s.registry.Len(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Refresh(r.Context()); err != nil {
		s.logger.Printf("[api] cache refresh failed: %v", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed":    true,
		"watched_keys": s.registry.Len(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	streamStats := s.stream.Stats()
	body := map[string]any{
		"status":       "ok",
		"store":        "ok",
		"watched_keys": s.registry.Len(),
		"stream":       streamStats,
	}

	status := http.StatusOK
	if err := s.pinger.Ping(r.Context()); err != nil {
		body["status"] = "degraded"
		body["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, body)
}
