package memory

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

// UseCase provides memory-related operations: it orchestrates embedding
// calls around the repository and owns the search fallback policy.
type UseCase struct {
	repo     repository.Repository
	embedder adapter.Embedder
}

// New creates a new memory UseCase instance
func New(repo repository.Repository, embedder adapter.Embedder) *UseCase {
	return &UseCase{
		repo:     repo,
		embedder: embedder,
	}
}

// GetByID retrieves a memory, returning nil when it does not exist
func (u *UseCase) GetByID(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	return u.repo.GetMemory(ctx, id)
}

// HealthCheck reports whether the backing store is reachable
func (u *UseCase) HealthCheck(ctx context.Context) bool {
	return u.repo.HealthCheck(ctx)
}

// EmbedderReady reports whether the embedding provider responds. A false
// result is not fatal: search degrades to text mode.
func (u *UseCase) EmbedderReady(ctx context.Context) bool {
	return u.embedder.HealthCheck(ctx)
}

// Close releases repository resources
func (u *UseCase) Close() {
	u.repo.Close()
}
