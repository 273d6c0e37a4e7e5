package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/conversation"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Server exposes the memory and conversation operations over HTTP
type Server struct {
	memories      *memory.UseCase
	conversations *conversation.UseCase
}

// New builds the HTTP handler with all routes registered
func New(memories *memory.UseCase, conversations *conversation.UseCase) http.Handler {
	s := &Server{
		memories:      memories,
		conversations: conversations,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/memories", s.handleStoreMemory)
	mux.HandleFunc("GET /api/memories", s.handleSearchMemories)
	mux.HandleFunc("POST /api/conversations", s.handleUpsertConversation)
	mux.HandleFunc("GET /api/conversations", s.handleSearchConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.memories.HealthCheck(r.Context()) {
		respondJSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
		return
	}
	// Embedder outage only degrades search to text mode, so it does not
	// flip the status.
	respondJSON(w, r, http.StatusOK, map[string]any{
		"status":   "ok",
		"embedder": s.memories.EmbedderReady(r.Context()),
	})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.From(r.Context()).Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]string{"error": message})
}

// handleError maps validation failures to 400 and everything else to 500
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrInvalidArgument) {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	logging.From(r.Context()).Error("request failed", "error", err)
	respondError(w, r, http.StatusInternalServerError, "internal error")
}
