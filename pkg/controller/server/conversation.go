package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/conversation"
)

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// upsertConversationRequest uses pointer fields so that an absent field
// and an explicitly empty one can be told apart.
type upsertConversationRequest struct {
	SourceID string            `json:"sourceId"`
	Title    *string           `json:"title"`
	Source   *string           `json:"source"`
	UserID   *string           `json:"userId"`
	Tags     *[]string         `json:"tags"`
	Messages *[]messageRequest `json:"messages"`
}

type messageResponse struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

type conversationResponse struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Source       string            `json:"source,omitempty"`
	SourceID     string            `json:"sourceId,omitempty"`
	UserID       string            `json:"userId,omitempty"`
	Tags         []string          `json:"tags"`
	Messages     []messageResponse `json:"messages"`
	AvgEmbedding []float32         `json:"avgEmbedding,omitempty"`
	Centroids    [][]float32       `json:"centroids,omitempty"`
	Score        float64           `json:"score,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func toConversationResponse(conv *model.Conversation) conversationResponse {
	messages := make([]messageResponse, len(conv.Messages))
	for i, msg := range conv.Messages {
		messages[i] = messageResponse{
			ID:       string(msg.ID),
			Role:     msg.Role,
			Content:  msg.Content,
			Position: msg.Position,
		}
	}

	return conversationResponse{
		ID:           string(conv.ID),
		Title:        conv.Title,
		Source:       conv.Source,
		SourceID:     conv.SourceID,
		UserID:       conv.UserID,
		Tags:         conv.Tags,
		Messages:     messages,
		AvgEmbedding: conv.AvgEmbedding,
		Centroids:    conv.Centroids,
		Score:        conv.Score,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
}

func (s *Server) handleUpsertConversation(w http.ResponseWriter, r *http.Request) {
	var req upsertConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	if strings.TrimSpace(req.SourceID) == "" {
		respondError(w, r, http.StatusBadRequest, "sourceId is required")
		return
	}
	if req.Messages != nil && len(*req.Messages) == 0 {
		respondError(w, r, http.StatusBadRequest, "messages must not be empty when provided")
		return
	}

	input := conversation.UpsertInput{
		SourceID: req.SourceID,
		Title:    req.Title,
		Source:   req.Source,
		UserID:   req.UserID,
		Tags:     req.Tags,
	}
	if req.Messages != nil {
		input.Messages = make([]conversation.Message, len(*req.Messages))
		for i, msg := range *req.Messages {
			input.Messages[i] = conversation.Message{Role: msg.Role, Content: msg.Content}
		}
	}

	conv, err := s.conversations.Upsert(r.Context(), input)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toConversationResponse(conv))
}

func (s *Server) handleSearchConversations(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	include, err := model.ParseInclude(parseCSV(r.URL.Query().Get("include")))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.conversations.Search(r.Context(), conversation.SearchInput{
		Query:   r.URL.Query().Get("query"),
		Tags:    parseCSV(r.URL.Query().Get("tags")),
		UserID:  r.URL.Query().Get("userId"),
		Limit:   limit,
		Include: include,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	conversations := make([]conversationResponse, len(results))
	for i, conv := range results {
		conversations[i] = toConversationResponse(conv)
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"conversations": conversations,
		"total":         len(conversations),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := model.ConversationID(r.PathValue("id"))

	conv, err := s.conversations.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if conv == nil {
		respondError(w, r, http.StatusNotFound, "conversation not found")
		return
	}

	respondJSON(w, r, http.StatusOK, toConversationResponse(conv))
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}

	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		respondError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
