package memory

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Store persists a new memory. The content is always sent to the
// embedding provider regardless of length; a provider failure is logged
// and the memory is stored without a vector.
func (u *UseCase) Store(ctx context.Context, content string, tags []string) (*model.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "content is empty")
	}
	if tags == nil {
		tags = []string{}
	}

	embedding, err := u.embedder.Embed(ctx, content)
	if err != nil {
		logging.From(ctx).Warn("failed to embed memory content, storing without vector", "error", err)
		embedding = nil
	}

	now := time.Now()
	mem := &model.Memory{
		ID:        model.NewMemoryID(),
		Content:   content,
		Tags:      tags,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := u.repo.PutMemory(ctx, mem); err != nil {
		return nil, err
	}

	return mem, nil
}
