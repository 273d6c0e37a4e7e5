package conversation

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// embedMinContentLength is the minimum trimmed content length, in bytes,
// for a user message to be worth embedding. Short acknowledgements ("ok",
// "thanks") carry no retrieval value.
const embedMinContentLength = 50

func shouldEmbed(msg Message) bool {
	return msg.Role == "user" && len(strings.TrimSpace(msg.Content)) >= embedMinContentLength
}

// embedMessages resolves embeddings for the qualifying messages
// concurrently and reassembles the results in the original order.
// Provider failures leave the embedding absent; they never fail the
// whole batch.
func (u *UseCase) embedMessages(ctx context.Context, messages []Message) []repository.MessageInput {
	inputs := make([]repository.MessageInput, len(messages))

	var wg sync.WaitGroup
	for i, msg := range messages {
		inputs[i] = repository.MessageInput{
			Role:    msg.Role,
			Content: msg.Content,
		}

		if !shouldEmbed(msg) {
			continue
		}

		wg.Add(1)
		go func(i int, content string) {
			defer wg.Done()

			embedding, err := u.embedder.Embed(ctx, content)
			if err != nil {
				logging.From(ctx).Warn("failed to embed message, storing without vector",
					"index", i,
					"error", err,
				)
				return
			}
			inputs[i].Embedding = embedding
		}(i, msg.Content)
	}
	wg.Wait()

	return inputs
}
