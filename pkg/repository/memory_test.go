package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

func strPtr(s string) *string { return &s }

func tagsPtr(tags ...string) *[]string { return &tags }

func TestMemoryPutAndGetMemory(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	now := time.Now()
	mem := &model.Memory{
		ID:        model.NewMemoryID(),
		Content:   "the deployment runs in us-central1",
		Tags:      []string{"infra", "Deploy"},
		Embedding: []float32{0.1, 0.2, 0.3},
		CreatedAt: now,
		UpdatedAt: now,
	}

	gt.NoError(t, repo.PutMemory(ctx, mem))

	retrieved, err := repo.GetMemory(ctx, mem.ID)
	gt.NoError(t, err)
	gt.V(t, retrieved).NotNil()
	gt.Equal(t, retrieved.Content, mem.Content)
	gt.Equal(t, retrieved.Tags, mem.Tags)

	// Mutating the returned record must not touch the stored one
	retrieved.Tags[0] = "changed"
	again, err := repo.GetMemory(ctx, mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, again.Tags[0], "infra")
}

func TestMemoryGetMemoryMiss(t *testing.T) {
	repo := repository.NewMemory()

	retrieved, err := repo.GetMemory(context.Background(), model.MemoryID("no-such-id"))
	gt.NoError(t, err)
	gt.Nil(t, retrieved)
}

func TestMemorySearchMemoriesByVector(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	put := func(content string, emb []float32, tags ...string) {
		gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
			ID:        model.NewMemoryID(),
			Content:   content,
			Tags:      tags,
			Embedding: emb,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}))
	}

	put("close match", []float32{1, 0.1})
	put("far match", []float32{0, 1})
	put("no embedding at all", nil)

	results, err := repo.SearchMemories(ctx, model.MemoryQuery{
		QueryEmbedding: []float32{1, 0},
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Content, "close match")
	gt.N(t, results[0].Score).Greater(results[1].Score)
}

func TestMemorySearchMemoriesByText(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	base := time.Now()
	for i, content := range []string{"alpha note", "beta note", "gamma entry"} {
		gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
			ID:        model.NewMemoryID(),
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	t.Run("substring match is case-insensitive", func(t *testing.T) {
		results, err := repo.SearchMemories(ctx, model.MemoryQuery{Query: "NOTE"})
		gt.NoError(t, err)
		gt.A(t, results).Length(2)
		// Newest first
		gt.Equal(t, results[0].Content, "beta note")
	})

	t.Run("empty query matches all", func(t *testing.T) {
		results, err := repo.SearchMemories(ctx, model.MemoryQuery{})
		gt.NoError(t, err)
		gt.A(t, results).Length(3)
	})

	t.Run("limit applied last", func(t *testing.T) {
		results, err := repo.SearchMemories(ctx, model.MemoryQuery{Limit: 1})
		gt.NoError(t, err)
		gt.A(t, results).Length(1)
		gt.Equal(t, results[0].Content, "gamma entry")
	})
}

func TestMemoryTagFilter(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID: model.NewMemoryID(), Content: "work item", Tags: []string{"Work"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID: model.NewMemoryID(), Content: "personal item", Tags: []string{"Personal"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	results, err := repo.SearchMemories(ctx, model.MemoryQuery{Tags: []string{"work"}})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Content, "work item")
}

func TestMemoryCreateConversation(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, repository.CreateConversationInput{
		Title:    "debug session",
		SourceID: "src-1",
		Tags:     []string{"debug"},
		Messages: []repository.MessageInput{
			{Role: "user", Content: "why does it crash", Embedding: []float32{1, 0}},
			{Role: "assistant", Content: "stack trace points to nil map"},
			{Role: "user", Content: "fixed, thanks", Embedding: []float32{0, 1}},
		},
	})
	gt.NoError(t, err)
	gt.A(t, conv.Messages).Length(3)
	for i, m := range conv.Messages {
		gt.Equal(t, m.Position, i)
		gt.Equal(t, m.ConversationID, conv.ID)
	}

	// Aggregates derived from the two embedded messages
	gt.V(t, conv.AvgEmbedding).Equal([]float32{0.5, 0.5})
	gt.A(t, conv.Centroids).Length(2)
}

func TestMemoryCreateConversationNoEmbeddings(t *testing.T) {
	repo := repository.NewMemory()

	conv, err := repo.CreateConversation(context.Background(), repository.CreateConversationInput{
		Messages: []repository.MessageInput{
			{Role: "user", Content: "hi"},
		},
	})
	gt.NoError(t, err)
	gt.Nil(t, conv.AvgEmbedding)
	gt.Nil(t, conv.Centroids)
}

func TestMemoryCreateConversationDuplicateSourceID(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	_, err := repo.CreateConversation(ctx, repository.CreateConversationInput{SourceID: "dup"})
	gt.NoError(t, err)

	_, err = repo.CreateConversation(ctx, repository.CreateConversationInput{SourceID: "dup"})
	gt.Error(t, err)
}

func TestMemoryUpsertAppendsPositions(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	first, err := repo.UpsertConversation(ctx, repository.UpsertConversationInput{
		SourceID: "src-X",
		Messages: []repository.MessageInput{
			{Role: "user", Content: "m0"},
			{Role: "assistant", Content: "m1"},
		},
	})
	gt.NoError(t, err)
	gt.A(t, first.Messages).Length(2)

	second, err := repo.UpsertConversation(ctx, repository.UpsertConversationInput{
		SourceID: "src-X",
		Messages: []repository.MessageInput{
			{Role: "user", Content: "m2"},
			{Role: "assistant", Content: "m3"},
		},
	})
	gt.NoError(t, err)
	gt.Equal(t, second.ID, first.ID)
	gt.A(t, second.Messages).Length(4)
	for i, m := range second.Messages {
		gt.Equal(t, m.Position, i)
	}
	gt.Equal(t, second.Messages[2].Content, "m2")
}

func TestMemoryUpsertCreatesWithDefaults(t *testing.T) {
	repo := repository.NewMemory()

	conv, err := repo.UpsertConversation(context.Background(), repository.UpsertConversationInput{
		SourceID: "src-Y",
	})
	gt.NoError(t, err)
	gt.Equal(t, conv.Title, "")
	gt.Equal(t, conv.Source, "")
	gt.Equal(t, conv.Tags, []string{})
	gt.A(t, conv.Messages).Length(0)
}

func TestMemoryUpsertPatchSemantics(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	_, err := repo.UpsertConversation(ctx, repository.UpsertConversationInput{
		SourceID: "src-Z",
		Title:    strPtr("original title"),
		Source:   strPtr("slack"),
		Tags:     tagsPtr("a", "b"),
	})
	gt.NoError(t, err)

	// Absent fields stay untouched; provided empty values overwrite
	patched, err := repo.UpsertConversation(ctx, repository.UpsertConversationInput{
		SourceID: "src-Z",
		Title:    strPtr(""),
		Tags:     tagsPtr(),
	})
	gt.NoError(t, err)
	gt.Equal(t, patched.Title, "")
	gt.Equal(t, patched.Source, "slack")
	gt.Equal(t, patched.Tags, []string{})
}

func TestMemoryUpsertRequiresSourceID(t *testing.T) {
	repo := repository.NewMemory()

	_, err := repo.UpsertConversation(context.Background(), repository.UpsertConversationInput{})
	gt.Error(t, err)
}

func TestMemoryUpsertRecomputesAggregates(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	first, err := repo.UpsertConversation(ctx, repository.UpsertConversationInput{
		SourceID: "src-agg",
		Messages: []repository.MessageInput{
			{Role: "user", Content: "m0", Embedding: []float32{1, 0}},
		},
	})
	gt.NoError(t, err)
	gt.V(t, first.AvgEmbedding).Equal([]float32{1, 0})

	second, err := repo.UpsertConversation(ctx, repository.UpsertConversationInput{
		SourceID: "src-agg",
		Messages: []repository.MessageInput{
			{Role: "user", Content: "m1", Embedding: []float32{0, 1}},
		},
	})
	gt.NoError(t, err)
	gt.V(t, second.AvgEmbedding).Equal([]float32{0.5, 0.5})
	gt.A(t, second.Centroids).Length(2)
}

func TestMemorySearchConversationsByVector(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	mk := func(sourceID, userID string, tags []string, embs ...[]float32) {
		msgs := make([]repository.MessageInput, len(embs))
		for i, e := range embs {
			msgs[i] = repository.MessageInput{Role: "user", Content: "msg", Embedding: e}
		}
		_, err := repo.CreateConversation(ctx, repository.CreateConversationInput{
			SourceID: sourceID,
			UserID:   userID,
			Tags:     tags,
			Messages: msgs,
		})
		gt.NoError(t, err)
	}

	mk("conv-close", "u1", []string{"work"}, []float32{1, 0}, []float32{0, 1})
	mk("conv-far", "u1", []string{"work"}, []float32{-1, 0})
	mk("conv-other-user", "u2", []string{"work"}, []float32{1, 0})
	mk("conv-no-emb", "u1", []string{"work"})

	results, err := repo.SearchConversations(ctx, model.ConversationQuery{
		UserID:         "u1",
		QueryEmbedding: []float32{1, 0},
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	// Best message match wins even when other messages are far
	gt.Equal(t, results[0].SourceID, "conv-close")
	gt.N(t, results[0].Score).Greater(results[1].Score)

	// Aggregates omitted unless requested
	gt.Nil(t, results[0].AvgEmbedding)
	gt.Nil(t, results[0].Centroids)
}

func TestMemorySearchConversationsInclude(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	_, err := repo.CreateConversation(ctx, repository.CreateConversationInput{
		Messages: []repository.MessageInput{
			{Role: "user", Content: "hello there", Embedding: []float32{1, 0}},
		},
	})
	gt.NoError(t, err)

	results, err := repo.SearchConversations(ctx, model.ConversationQuery{
		Query:   "hello",
		Include: model.Include{AvgEmbedding: true},
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.V(t, results[0].AvgEmbedding).Equal([]float32{1, 0})
	gt.Nil(t, results[0].Centroids)
}

func TestMemorySearchConversationsByText(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	_, err := repo.CreateConversation(ctx, repository.CreateConversationInput{
		Title: "Deploy checklist",
		Messages: []repository.MessageInput{
			{Role: "user", Content: "remember to bump the version"},
		},
	})
	gt.NoError(t, err)
	_, err = repo.CreateConversation(ctx, repository.CreateConversationInput{
		Title: "Lunch plans",
		Messages: []repository.MessageInput{
			{Role: "user", Content: "sushi or ramen"},
		},
	})
	gt.NoError(t, err)

	t.Run("matches title", func(t *testing.T) {
		results, err := repo.SearchConversations(ctx, model.ConversationQuery{Query: "deploy"})
		gt.NoError(t, err)
		gt.A(t, results).Length(1)
		gt.Equal(t, results[0].Title, "Deploy checklist")
	})

	t.Run("matches message content", func(t *testing.T) {
		results, err := repo.SearchConversations(ctx, model.ConversationQuery{Query: "RAMEN"})
		gt.NoError(t, err)
		gt.A(t, results).Length(1)
		gt.Equal(t, results[0].Title, "Lunch plans")
	})

	t.Run("tag exclusion is case-insensitive", func(t *testing.T) {
		_, err := repo.CreateConversation(ctx, repository.CreateConversationInput{
			Title: "tagged", Tags: []string{"Personal"},
		})
		gt.NoError(t, err)

		results, err := repo.SearchConversations(ctx, model.ConversationQuery{Tags: []string{"work"}})
		gt.NoError(t, err)
		gt.A(t, results).Length(0)
	})
}

func TestMemoryGetConversationBySourceID(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	created, err := repo.CreateConversation(ctx, repository.CreateConversationInput{SourceID: "src-get"})
	gt.NoError(t, err)

	found, err := repo.GetConversationBySourceID(ctx, "src-get")
	gt.NoError(t, err)
	gt.V(t, found).NotNil()
	gt.Equal(t, found.ID, created.ID)

	missing, err := repo.GetConversationBySourceID(ctx, "nope")
	gt.NoError(t, err)
	gt.Nil(t, missing)
}

func TestMemoryHealthCheckAndClose(t *testing.T) {
	repo := repository.NewMemory()
	gt.True(t, repo.HealthCheck(context.Background()))
	repo.Close()
	repo.Close() // idempotent
}
