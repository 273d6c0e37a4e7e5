package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/controller/server"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/usecase/conversation"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
)

type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, nil
}

func (f *fixedEmbedder) HealthCheck(_ context.Context) bool {
	return true
}

func setupServer(t *testing.T) http.Handler {
	t.Helper()

	repo := repository.NewMemory()
	embedder := &fixedEmbedder{vector: []float32{1, 0}}
	return server.New(memory.New(repo, embedder), conversation.New(repo, embedder))
}

func post(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	gt.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	gt.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func TestHealth(t *testing.T) {
	rec := get(t, setupServer(t), "/health")
	gt.Equal(t, rec.Code, http.StatusOK)
	gt.S(t, rec.Body.String()).Contains(`"status":"ok"`)
}

func TestStoreMemory(t *testing.T) {
	handler := setupServer(t)

	rec := post(t, handler, "/api/memories", map[string]any{
		"content": "the deploy window is friday",
		"tags":    []string{"ops"},
	})
	gt.Equal(t, rec.Code, http.StatusCreated)

	var created struct {
		ID      string   `json:"id"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	decode(t, rec, &created)
	gt.S(t, created.ID).NotContains(" ")
	gt.Equal(t, created.Content, "the deploy window is friday")
	gt.Equal(t, created.Tags, []string{"ops"})
}

func TestStoreMemoryRejectsBlankContent(t *testing.T) {
	rec := post(t, setupServer(t), "/api/memories", map[string]any{"content": "  "})
	gt.Equal(t, rec.Code, http.StatusBadRequest)
	gt.S(t, rec.Body.String()).Contains("error")
}

func TestStoreMemoryRejectsMalformedBody(t *testing.T) {
	handler := setupServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/memories", strings.NewReader("{not json"))
	handler.ServeHTTP(rec, req)
	gt.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestSearchMemories(t *testing.T) {
	handler := setupServer(t)

	rec := post(t, handler, "/api/memories", map[string]any{
		"content": "weekly planning notes",
		"tags":    []string{"work"},
	})
	gt.Equal(t, rec.Code, http.StatusCreated)

	rec = get(t, handler, "/api/memories?query=planning&tags=work&limit=10")
	gt.Equal(t, rec.Code, http.StatusOK)

	var result struct {
		Memories []json.RawMessage `json:"memories"`
		Total    int               `json:"total"`
	}
	decode(t, rec, &result)
	gt.Equal(t, result.Total, 1)
	gt.A(t, result.Memories).Length(1)
}

func TestSearchMemoriesRejectsBadLimit(t *testing.T) {
	rec := get(t, setupServer(t), "/api/memories?limit=abc")
	gt.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestUpsertConversation(t *testing.T) {
	handler := setupServer(t)

	rec := post(t, handler, "/api/conversations", map[string]any{
		"sourceId": "slack-1",
		"title":    "standup",
		"messages": []map[string]string{
			{"role": "user", "content": "what shipped yesterday"},
			{"role": "assistant", "content": "the search fallback"},
		},
	})
	gt.Equal(t, rec.Code, http.StatusOK)

	var conv struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Messages []struct {
			Position int `json:"position"`
		} `json:"messages"`
	}
	decode(t, rec, &conv)
	gt.Equal(t, conv.Title, "standup")
	gt.A(t, conv.Messages).Length(2)
	gt.Equal(t, conv.Messages[1].Position, 1)

	// Second upsert with the same sourceId appends
	rec = post(t, handler, "/api/conversations", map[string]any{
		"sourceId": "slack-1",
		"messages": []map[string]string{
			{"role": "user", "content": "and today?"},
		},
	})
	gt.Equal(t, rec.Code, http.StatusOK)
	decode(t, rec, &conv)
	gt.A(t, conv.Messages).Length(3)
	gt.Equal(t, conv.Messages[2].Position, 2)
}

func TestUpsertConversationValidation(t *testing.T) {
	handler := setupServer(t)

	t.Run("missing sourceId", func(t *testing.T) {
		rec := post(t, handler, "/api/conversations", map[string]any{"title": "x"})
		gt.Equal(t, rec.Code, http.StatusBadRequest)
	})

	t.Run("empty messages list", func(t *testing.T) {
		rec := post(t, handler, "/api/conversations", map[string]any{
			"sourceId": "slack-2",
			"messages": []map[string]string{},
		})
		gt.Equal(t, rec.Code, http.StatusBadRequest)
	})

	t.Run("message without role", func(t *testing.T) {
		rec := post(t, handler, "/api/conversations", map[string]any{
			"sourceId": "slack-2",
			"messages": []map[string]string{{"content": "orphan"}},
		})
		gt.Equal(t, rec.Code, http.StatusBadRequest)
	})
}

func TestSearchConversations(t *testing.T) {
	handler := setupServer(t)

	rec := post(t, handler, "/api/conversations", map[string]any{
		"sourceId": "slack-3",
		"title":    "release planning",
		"userId":   "u-1",
		"tags":     []string{"work"},
		"messages": []map[string]string{
			{"role": "user", "content": "when do we cut the release branch and who owns the changelog this time"},
		},
	})
	gt.Equal(t, rec.Code, http.StatusOK)

	rec = get(t, handler, "/api/conversations?query=release&userId=u-1&include=avg_embedding")
	gt.Equal(t, rec.Code, http.StatusOK)

	var result struct {
		Conversations []struct {
			Title        string    `json:"title"`
			AvgEmbedding []float32 `json:"avgEmbedding"`
		} `json:"conversations"`
		Total int `json:"total"`
	}
	decode(t, rec, &result)
	gt.Equal(t, result.Total, 1)
	gt.Equal(t, result.Conversations[0].Title, "release planning")
	gt.A(t, result.Conversations[0].AvgEmbedding).Length(2)

	t.Run("invalid include field", func(t *testing.T) {
		rec := get(t, handler, "/api/conversations?include=bogus")
		gt.Equal(t, rec.Code, http.StatusBadRequest)
	})
}

func TestGetConversation(t *testing.T) {
	handler := setupServer(t)

	rec := post(t, handler, "/api/conversations", map[string]any{"sourceId": "slack-4"})
	gt.Equal(t, rec.Code, http.StatusOK)

	var conv struct {
		ID string `json:"id"`
	}
	decode(t, rec, &conv)

	rec = get(t, handler, "/api/conversations/"+conv.ID)
	gt.Equal(t, rec.Code, http.StatusOK)

	rec = get(t, handler, "/api/conversations/no-such-id")
	gt.Equal(t, rec.Code, http.StatusNotFound)
	gt.S(t, rec.Body.String()).Contains("conversation not found")
}
