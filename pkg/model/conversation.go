package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// Conversation represents a multi-turn conversation with derived aggregate
// vectors. SourceID, when non-empty, is unique across all conversations and
// acts as the upsert key for repeated imports.
type Conversation struct {
	ID       ConversationID
	Title    string
	Source   string
	SourceID string
	UserID   string
	Tags     []string

	// AvgEmbedding and Centroids are fully recomputed from the message
	// embedding set on every mutating call. Both are nil when no message
	// has an embedding.
	AvgEmbedding []float32
	Centroids    [][]float32

	Messages []*ConversationMessage

	// Score is set only on vector search results and is never persisted.
	Score float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the conversation including its messages
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	d := *c
	d.Tags = append([]string(nil), c.Tags...)
	d.AvgEmbedding = append([]float32(nil), c.AvgEmbedding...)
	if c.Centroids != nil {
		d.Centroids = make([][]float32, len(c.Centroids))
		for i, v := range c.Centroids {
			d.Centroids[i] = append([]float32(nil), v...)
		}
	}
	if c.Messages != nil {
		d.Messages = make([]*ConversationMessage, len(c.Messages))
		for i, m := range c.Messages {
			d.Messages[i] = m.Clone()
		}
	}
	return &d
}

// ConversationMessage is a single turn owned by exactly one conversation.
/// Position is a zero-based, contiguous, append-only ordinal: appends always
// continue from max(position)+1 and positions are never renumbered.
type ConversationMessage struct {
	ID             MessageID
	ConversationID ConversationID
	Role           string
	Content        string
	Position       int
	Embedding      []float32
	CreatedAt      time.Time
}

// Clone returns a deep copy of the message
func (m *ConversationMessage) Clone() *ConversationMessage {
	if m == nil {
		return nil
	}
	c := *m
	c.Embedding = append([]float32(nil), m.Embedding...)
	return &c
}

// ConversationQuery is the search request for conversations. When
// QueryEmbedding is set the store ranks each conversation by its best
// message match, otherwise it falls back to substring match on message
// content or title. Tags and UserID narrow the candidate set before
// ranking.
type ConversationQuery struct {
	Query          string
	Tags           []string
	UserID         string
	QueryEmbedding []float32
	Limit          int
	Include        Include
}

// Include selects which derived fields are materialized on search results.
// Both are omitted by default to keep responses small.
type Include struct {
	AvgEmbedding bool
	Centroids    bool
}

// ParseInclude builds an Include from field names such as the include=
// query parameter. Unknown names are rejected.
func ParseInclude(fields []string) (Include, error) {
	var inc Include
	for _, f := range fields {
		switch f {
		case "avg_embedding":
			inc.AvgEmbedding = true
		case "centroids":
			inc.Centroids = true
		case "":
		default:
			return Include{}, ErrInvalidInclude
		}
	}
	return inc, nil
}
