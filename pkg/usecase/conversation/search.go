package conversation

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// SearchInput narrows a conversation search
type SearchInput struct {
	Query   string
	Tags    []string
	UserID  string
	Limit   int
	Include model.Include
}

// Search finds conversations. A query is embedded first; when the
// provider yields a vector the store ranks by best-message similarity,
// otherwise the same query falls back to substring matching over titles
// and message contents. Tags and user ID filter in both modes.
func (u *UseCase) Search(ctx context.Context, input SearchInput) ([]*model.Conversation, error) {
	q := model.ConversationQuery{
		Query:   input.Query,
		Tags:    input.Tags,
		UserID:  input.UserID,
		Limit:   input.Limit,
		Include: input.Include,
	}

	if input.Query != "" {
		embedding, err := u.embedder.Embed(ctx, input.Query)
		if err != nil {
			logging.From(ctx).Warn("failed to embed query, falling back to text search", "error", err)
		} else {
			q.QueryEmbedding = embedding
		}
	}

	return u.repo.SearchConversations(ctx, q)
}
