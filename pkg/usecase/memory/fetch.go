package memory

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Fetch searches memories. A query is embedded first; when the provider
// yields a vector the store ranks by similarity, otherwise the same query
// falls back to substring matching. Tags filter in both modes.
func (u *UseCase) Fetch(ctx context.Context, query string, tags []string, limit int) ([]*model.Memory, error) {
	q := model.MemoryQuery{
		Query: query,
		Tags:  tags,
		Limit: limit,
	}

	if query != "" {
		embedding, err := u.embedder.Embed(ctx, query)
		if err != nil {
			logging.From(ctx).Warn("failed to embed query, falling back to text search", "error", err)
		} else {
			q.QueryEmbedding = embedding
		}
	}

	return u.repo.SearchMemories(ctx, q)
}
