package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/vector"
)

// Memory implements Repository with in-process maps. It mirrors every
// semantic of the Postgres variant, including position assignment and
// aggregate recomputation, and is intended for tests and local runs.
// All record collections are instance-private: construct one per test.
type Memory struct {
	mu            sync.RWMutex
	memories      map[model.MemoryID]*model.Memory
	conversations map[model.ConversationID]*model.Conversation
	bySourceID    map[string]model.ConversationID
}

// NewMemory creates an empty in-process repository
func NewMemory() *Memory {
	return &Memory{
		memories:      make(map[model.MemoryID]*model.Memory),
		conversations: make(map[model.ConversationID]*model.Conversation),
		bySourceID:    make(map[string]model.ConversationID),
	}
}

func (r *Memory) PutMemory(ctx context.Context, memory *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.memories[memory.ID]; ok {
		return goerr.New("memory already exists", goerr.V("id", memory.ID))
	}
	r.memories[memory.ID] = memory.Clone()
	return nil
}

func (r *Memory) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.memories[id].Clone(), nil
}

func (r *Memory) SearchMemories(ctx context.Context, q model.MemoryQuery) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(q.QueryEmbedding) > 0 {
		return r.searchMemoriesByVector(q), nil
	}
	return r.searchMemoriesByText(q), nil
}

func (r *Memory) searchMemoriesByVector(q model.MemoryQuery) []*model.Memory {
	var results []*model.Memory
	for _, m := range r.memories {
		if len(m.Embedding) == 0 || !model.MatchTags(m.Tags, q.Tags) {
			continue
		}
		c := m.Clone()
		c.Score = vector.CosineSimilarity(m.Embedding, q.QueryEmbedding)
		results = append(results, c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return limitMemories(results, q.Limit)
}

func (r *Memory) searchMemoriesByText(q model.MemoryQuery) []*model.Memory {
	needle := strings.ToLower(q.Query)
	var results []*model.Memory
	for _, m := range r.memories {
		if !model.MatchTags(m.Tags, q.Tags) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		results = append(results, m.Clone())
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return limitMemories(results, q.Limit)
}

func (r *Memory) CreateConversation(ctx context.Context, input CreateConversationInput) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if input.SourceID != "" {
		if _, ok := r.bySourceID[input.SourceID]; ok {
			return nil, goerr.New("source_id already exists", goerr.V("source_id", input.SourceID))
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:        model.NewConversationID(),
		Title:     input.Title,
		Source:    input.Source,
		SourceID:  input.SourceID,
		UserID:    input.UserID,
		Tags:      append([]string{}, input.Tags...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	appendMessages(conv, input.Messages, now)
	conv.AvgEmbedding, conv.Centroids = computeAggregates(conv.Messages)

	r.conversations[conv.ID] = conv
	if conv.SourceID != "" {
		r.bySourceID[conv.SourceID] = conv.ID
	}

	return conv.Clone(), nil
}

func (r *Memory) UpsertConversation(ctx context.Context, input UpsertConversationInput) (*model.Conversation, error) {
	if input.SourceID == "" {
		return nil, goerr.New("source_id is required for upsert")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	id, ok := r.bySourceID[input.SourceID]
	if !ok {
		conv := &model.Conversation{
			ID:        model.NewConversationID(),
			SourceID:  input.SourceID,
			Tags:      []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if input.Title != nil {
			conv.Title = *input.Title
		}
		if input.Source != nil {
			conv.Source = *input.Source
		}
		if input.UserID != nil {
			conv.UserID = *input.UserID
		}
		if input.Tags != nil {
			conv.Tags = append([]string{}, (*input.Tags)...)
		}
		appendMessages(conv, input.Messages, now)
		conv.AvgEmbedding, conv.Centroids = computeAggregates(conv.Messages)

		r.conversations[conv.ID] = conv
		r.bySourceID[conv.SourceID] = conv.ID
		return conv.Clone(), nil
	}

	conv := r.conversations[id]
	if input.Title != nil {
		conv.Title = *input.Title
	}
	if input.Source != nil {
		conv.Source = *input.Source
	}
	if input.UserID != nil {
		conv.UserID = *input.UserID
	}
	if input.Tags != nil {
		conv.Tags = append([]string{}, (*input.Tags)...)
	}
	conv.UpdatedAt = now

	if len(input.Messages) > 0 {
		appendMessages(conv, input.Messages, now)
		conv.AvgEmbedding, conv.Centroids = computeAggregates(conv.Messages)
	}

	return conv.Clone(), nil
}

// appendMessages inserts messages continuing from max(position)+1
func appendMessages(conv *model.Conversation, messages []MessageInput, now time.Time) {
	next := 0
	for _, m := range conv.Messages {
		if m.Position >= next {
			next = m.Position + 1
		}
	}
	for _, in := range messages {
		conv.Messages = append(conv.Messages, &model.ConversationMessage{
			ID:             model.NewMessageID(),
			ConversationID: conv.ID,
			Role:           in.Role,
			Content:        in.Content,
			Position:       next,
			Embedding:      append([]float32(nil), in.Embedding...),
			CreatedAt:      now,
		})
		next++
	}
}

func (r *Memory) SearchConversations(ctx context.Context, q model.ConversationQuery) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Tags and user filters narrow the candidate set before ranking
	var candidates []*model.Conversation
	for _, c := range r.conversations {
		if q.UserID != "" && c.UserID != q.UserID {
			continue
		}
		if !model.MatchTags(c.Tags, q.Tags) {
			continue
		}
		candidates = append(candidates, c)
	}

	var results []*model.Conversation
	if len(q.QueryEmbedding) > 0 {
		results = searchConversationsByVector(candidates, q)
	} else {
		results = searchConversationsByText(candidates, q)
	}

	for _, c := range results {
		applyInclude(c, q.Include)
	}
	return results, nil
}

func searchConversationsByVector(candidates []*model.Conversation, q model.ConversationQuery) []*model.Conversation {
	var results []*model.Conversation
	for _, c := range candidates {
		best := 0.0
		found := false
		for _, m := range c.Messages {
			if len(m.Embedding) == 0 {
				continue
			}
			if sim := vector.CosineSimilarity(m.Embedding, q.QueryEmbedding); !found || sim > best {
				best = sim
				found = true
			}
		}
		if !found {
			continue
		}
		clone := c.Clone()
		clone.Score = best
		results = append(results, clone)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return limitConversations(results, q.Limit)
}

func searchConversationsByText(candidates []*model.Conversation, q model.ConversationQuery) []*model.Conversation {
	needle := strings.ToLower(q.Query)
	var results []*model.Conversation
	for _, c := range candidates {
		if needle != "" && !matchConversationText(c, needle) {
			continue
		}
		results = append(results, c.Clone())
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return limitConversations(results, q.Limit)
}

func matchConversationText(c *model.Conversation, needle string) bool {
	if strings.Contains(strings.ToLower(c.Title), needle) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			return true
		}
	}
	return false
}

func (r *Memory) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.conversations[id].Clone(), nil
}

func (r *Memory) GetConversationBySourceID(ctx context.Context, sourceID string) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySourceID[sourceID]
	if !ok {
		return nil, nil
	}
	return r.conversations[id].Clone(), nil
}

func (r *Memory) HealthCheck(ctx context.Context) bool {
	return true
}

func (r *Memory) Close() {}

func applyInclude(c *model.Conversation, inc model.Include) {
	if !inc.AvgEmbedding {
		c.AvgEmbedding = nil
	}
	if !inc.Centroids {
		c.Centroids = nil
	}
}

func limitMemories(items []*model.Memory, limit int) []*model.Memory {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func limitConversations(items []*model.Conversation, limit int) []*model.Conversation {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
