package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/kioku/pkg/model"
)

type memoryResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toMemoryResponse(mem *model.Memory) memoryResponse {
	return memoryResponse{
		ID:        string(mem.ID),
		Content:   mem.Content,
		Tags:      mem.Tags,
		Score:     mem.Score,
		CreatedAt: mem.CreatedAt,
		UpdatedAt: mem.UpdatedAt,
	}
}

type storeMemoryRequest struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (s *Server) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	var req storeMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	mem, err := s.memories.Store(r.Context(), req.Content, req.Tags)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, toMemoryResponse(mem))
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	results, err := s.memories.Fetch(r.Context(),
		r.URL.Query().Get("query"),
		parseCSV(r.URL.Query().Get("tags")),
		limit,
	)
	if err != nil {
		handleError(w, r, err)
		return
	}

	memories := make([]memoryResponse, len(results))
	for i, mem := range results {
		memories[i] = toMemoryResponse(mem)
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"memories": memories,
		"total":    len(memories),
	})
}
