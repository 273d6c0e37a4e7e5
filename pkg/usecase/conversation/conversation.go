package conversation

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

// UseCase provides conversation operations: it decides which messages
// get embedded, orchestrates concurrent embedding calls, and delegates
// storage and aggregate maintenance to the repository.
type UseCase struct {
	repo     repository.Repository
	embedder adapter.Embedder
}

// New creates a new conversation UseCase instance
func New(repo repository.Repository, embedder adapter.Embedder) *UseCase {
	return &UseCase{
		repo:     repo,
		embedder: embedder,
	}
}

// Message is an incoming conversation message before embedding
type Message struct {
	Role    string
	Content string
}

// GetByID retrieves a conversation with its ordered messages, returning
// nil when it does not exist
func (u *UseCase) GetByID(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	return u.repo.GetConversation(ctx, id)
}

// GetBySourceID retrieves a conversation by its upsert key, returning
// nil when it does not exist
func (u *UseCase) GetBySourceID(ctx context.Context, sourceID string) (*model.Conversation, error) {
	return u.repo.GetConversationBySourceID(ctx, sourceID)
}

// HealthCheck reports whether the backing store is reachable
func (u *UseCase) HealthCheck(ctx context.Context) bool {
	return u.repo.HealthCheck(ctx)
}

// Close releases repository resources
func (u *UseCase) Close() {
	u.repo.Close()
}
