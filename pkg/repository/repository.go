package repository

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/model"
)

// Repository defines the persistence contract for memories and
// conversations. Two variants implement it: an in-process volatile store
// used in tests, and a transactional Postgres store for deployments.
// Lookup misses return (nil, nil), never an error.
type Repository interface {
	// PutMemory stores a new memory record
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a memory by ID
	GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// SearchMemories performs vector or text search depending on whether
	// the query carries an embedding
	SearchMemories(ctx context.Context, q model.MemoryQuery) ([]*model.Memory, error)

	// CreateConversation creates a brand-new conversation, assigning
	// message positions 0..n-1 and computing the aggregate vectors
	CreateConversation(ctx context.Context, input CreateConversationInput) (*model.Conversation, error)

	// UpsertConversation creates or patches a conversation keyed by
	// source ID, appending any provided messages after the existing ones
	UpsertConversation(ctx context.Context, input UpsertConversationInput) (*model.Conversation, error)

	// SearchConversations performs vector or text search depending on
	// whether the query carries an embedding
	SearchConversations(ctx context.Context, q model.ConversationQuery) ([]*model.Conversation, error)

	// GetConversation retrieves a conversation with its ordered messages
	GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// GetConversationBySourceID retrieves a conversation by its upsert key
	GetConversationBySourceID(ctx context.Context, sourceID string) (*model.Conversation, error)

	// HealthCheck reports whether the backing storage is reachable
	HealthCheck(ctx context.Context) bool

	// Close releases pooled resources; safe to call more than once
	Close()
}

// MessageInput is a message to append, with its embedding already resolved
// by the service layer (nil when the message did not qualify or the
// provider failed).
type MessageInput struct {
	Role      string
	Content   string
	Embedding []float32
}

// CreateConversationInput carries the fields for a brand-new conversation
type CreateConversationInput struct {
	Title    string
	Source   string
	SourceID string
	UserID   string
	Tags     []string
	Messages []MessageInput
}

// UpsertConversationInput patches the conversation identified by SourceID.
// Nil pointer fields are left untouched; non-nil fields overwrite the
// stored value even when they point at an empty value.
type UpsertConversationInput struct {
	SourceID string
	Title    *string
	Source   *string
	UserID   *string
	Tags     *[]string
	Messages []MessageInput
}
