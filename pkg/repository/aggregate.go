package repository

import (
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/vector"
)

// maxCentroids caps the number of cluster centroids kept per conversation
const maxCentroids = 3

// computeAggregates derives the running mean and cluster centroids from a
// conversation's message embeddings. Both are nil when no message has an
// embedding. Called on every mutating operation: aggregates are recomputed
// from scratch, never updated incrementally.
func computeAggregates(messages []*model.ConversationMessage) ([]float32, [][]float32) {
	var embeddings [][]float32
	for _, m := range messages {
		if len(m.Embedding) > 0 {
			embeddings = append(embeddings, m.Embedding)
		}
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	k := len(embeddings)
	if k > maxCentroids {
		k = maxCentroids
	}

	return vector.Mean(embeddings), vector.KMeans(embeddings, k)
}
