package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Postgres implements Repository backed by PostgreSQL with the pgvector
// extension. Every mutating call runs as one transaction: a failure
// partway rolls back message inserts, metadata updates and aggregate
// recomputation together.
type Postgres struct {
	pool      *pgxpool.Pool
	dimension int
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so loads can run
// inside or outside a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres connects to the database and registers pgvector codecs.
// dimension is the deployment-fixed embedding dimensionality and must
// match the provisioned vector columns.
func NewPostgres(ctx context.Context, dsn string, dimension int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse database DSN")
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection pool")
	}

	return &Postgres{pool: pool, dimension: dimension}, nil
}

// Migrate provisions the schema: vector extension, tables and indexes.
// All statements are idempotent.
func (r *Postgres) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return goerr.Wrap(err, "failed to create vector extension")
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memories (
  id TEXT PRIMARY KEY,
  content TEXT NOT NULL,
  tags JSONB NOT NULL DEFAULT '[]'::jsonb,
  embedding VECTOR(%[1]d),
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  source TEXT NOT NULL DEFAULT '',
  source_id TEXT,
  user_id TEXT,
  tags JSONB NOT NULL DEFAULT '[]'::jsonb,
  avg_embedding VECTOR(%[1]d),
  centroids JSONB,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_messages (
  id TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL REFERENCES conversations(id),
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  "position" INT NOT NULL,
  embedding VECTOR(%[1]d),
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE(conversation_id, "position")
);
`, r.dimension)

	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return goerr.Wrap(err, "failed to create tables")
	}

	indexes := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_source_id ON conversations(source_id) WHERE source_id IS NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_conversations_tags_gin ON conversations USING GIN (tags)",
		"CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_memories_tags_gin ON memories USING GIN (tags)",
		"CREATE INDEX IF NOT EXISTS idx_memories_embedding ON memories USING hnsw (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(conversation_id)",
		"CREATE INDEX IF NOT EXISTS idx_messages_embedding ON conversation_messages USING hnsw (embedding vector_cosine_ops)",
	}
	for _, stmt := range indexes {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to create index", goerr.V("stmt", stmt))
		}
	}

	return nil
}

func (r *Postgres) PutMemory(ctx context.Context, memory *model.Memory) error {
	tagsJSON, err := json.Marshal(memory.Tags)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal tags")
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO memories (id, content, tags, embedding, created_at, updated_at)
VALUES ($1, $2, $3::jsonb, $4, $5, $6)`,
		string(memory.ID),
		memory.Content,
		string(tagsJSON),
		nullableVector(memory.Embedding),
		memory.CreatedAt,
		memory.UpdatedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert memory", goerr.V("id", memory.ID))
	}
	return nil
}

func (r *Postgres) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, content, tags, COALESCE(embedding::text, ''), created_at, updated_at
FROM memories
WHERE id = $1`, string(id))

	memory, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}
	return memory, nil
}

func (r *Postgres) SearchMemories(ctx context.Context, q model.MemoryQuery) ([]*model.Memory, error) {
	if len(q.QueryEmbedding) > 0 {
		return r.searchMemoriesByVector(ctx, q)
	}
	return r.searchMemoriesByText(ctx, q)
}

func (r *Postgres) searchMemoriesByVector(ctx context.Context, q model.MemoryQuery) ([]*model.Memory, error) {
	query := `
SELECT id, content, tags, COALESCE(embedding::text, ''), created_at, updated_at,
       (embedding <=> $1) AS distance
FROM memories
WHERE embedding IS NOT NULL`
	args := []any{pgvector.NewVector(q.QueryEmbedding)}
	query, args = appendTagFilter(query, args, q.Tags)
	query += " ORDER BY embedding <=> $1"
	query, args = appendLimit(query, args, q.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories by vector")
	}
	defer rows.Close()

	var results []*model.Memory
	for rows.Next() {
		var (
			m        model.Memory
			tagsJSON []byte
			embText  string
			distance float64
		)
		if err := rows.Scan(&m.ID, &m.Content, &tagsJSON, &embText, &m.CreatedAt, &m.UpdatedAt, &distance); err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory row")
		}
		if err := decodeMemoryColumns(&m, tagsJSON, embText); err != nil {
			return nil, err
		}
		m.Score = 1 - distance
		results = append(results, &m)
	}
	return results, rows.Err()
}

func (r *Postgres) searchMemoriesByText(ctx context.Context, q model.MemoryQuery) ([]*model.Memory, error) {
	query := `
SELECT id, content, tags, COALESCE(embedding::text, ''), created_at, updated_at
FROM memories
WHERE ($1 = '' OR content ILIKE $2)`
	args := []any{q.Query, likePattern(q.Query)}
	query, args = appendTagFilter(query, args, q.Tags)
	query += " ORDER BY created_at DESC"
	query, args = appendLimit(query, args, q.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories by text")
	}
	defer rows.Close()

	var results []*model.Memory
	for rows.Next() {
		var (
			m        model.Memory
			tagsJSON []byte
			embText  string
		)
		if err := rows.Scan(&m.ID, &m.Content, &tagsJSON, &embText, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory row")
		}
		if err := decodeMemoryColumns(&m, tagsJSON, embText); err != nil {
			return nil, err
		}
		results = append(results, &m)
	}
	return results, rows.Err()
}

func (r *Postgres) CreateConversation(ctx context.Context, input CreateConversationInput) (*model.Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	id := model.NewConversationID()

	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal tags")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO conversations (id, title, source, source_id, user_id, tags, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		string(id),
		input.Title,
		input.Source,
		nullableString(input.SourceID),
		nullableString(input.UserID),
		string(tagsJSON),
		now,
		now,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert conversation", goerr.V("source_id", input.SourceID))
	}

	if err := insertMessages(ctx, tx, id, 0, input.Messages, now); err != nil {
		return nil, err
	}
	if err := recomputeAggregates(ctx, tx, id, now); err != nil {
		return nil, err
	}

	conv, err := loadConversation(ctx, tx, id, model.Include{AvgEmbedding: true, Centroids: true})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to commit transaction")
	}
	return conv, nil
}

func (r *Postgres) UpsertConversation(ctx context.Context, input UpsertConversationInput) (*model.Conversation, error) {
	if input.SourceID == "" {
		return nil, goerr.New("source_id is required for upsert")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()

	// Row lock serializes concurrent upserts of the same source_id so the
	// position read below cannot race with another append.
	var id model.ConversationID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE source_id = $1 FOR UPDATE`,
		input.SourceID).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id, err = createForUpsert(ctx, tx, input, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, goerr.Wrap(err, "failed to look up conversation", goerr.V("source_id", input.SourceID))
	default:
		if err := patchConversation(ctx, tx, id, input, now); err != nil {
			return nil, err
		}
		if len(input.Messages) > 0 {
			var next int
			err := tx.QueryRow(ctx,
				`SELECT COALESCE(MAX("position") + 1, 0) FROM conversation_messages WHERE conversation_id = $1`,
				string(id)).Scan(&next)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to compute next position")
			}
			if err := insertMessages(ctx, tx, id, next, input.Messages, now); err != nil {
				return nil, err
			}
		}
	}

	// The embedding set only changes when messages were appended; a
	// metadata-only patch keeps the stored aggregates.
	if len(input.Messages) > 0 {
		if err := recomputeAggregates(ctx, tx, id, now); err != nil {
			return nil, err
		}
	}

	conv, err := loadConversation(ctx, tx, id, model.Include{AvgEmbedding: true, Centroids: true})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to commit transaction")
	}
	return conv, nil
}

func createForUpsert(ctx context.Context, tx pgx.Tx, input UpsertConversationInput, now time.Time) (model.ConversationID, error) {
	id := model.NewConversationID()

	title, source, userID := "", "", ""
	tags := []string{}
	if input.Title != nil {
		title = *input.Title
	}
	if input.Source != nil {
		source = *input.Source
	}
	if input.UserID != nil {
		userID = *input.UserID
	}
	if input.Tags != nil {
		tags = *input.Tags
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal tags")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO conversations (id, title, source, source_id, user_id, tags, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		string(id), title, source, input.SourceID, nullableString(userID), string(tagsJSON), now, now)
	if err != nil {
		return "", goerr.Wrap(err, "failed to insert conversation", goerr.V("source_id", input.SourceID))
	}

	if err := insertMessages(ctx, tx, id, 0, input.Messages, now); err != nil {
		return "", err
	}
	return id, nil
}

func patchConversation(ctx context.Context, tx pgx.Tx, id model.ConversationID, input UpsertConversationInput, now time.Time) error {
	sets := []string{"updated_at = $2"}
	args := []any{string(id), now}

	if input.Title != nil {
		args = append(args, *input.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if input.Source != nil {
		args = append(args, *input.Source)
		sets = append(sets, fmt.Sprintf("source = $%d", len(args)))
	}
	if input.UserID != nil {
		args = append(args, nullableString(*input.UserID))
		sets = append(sets, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if input.Tags != nil {
		tagsJSON, err := json.Marshal(*input.Tags)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal tags")
		}
		args = append(args, string(tagsJSON))
		sets = append(sets, fmt.Sprintf("tags = $%d::jsonb", len(args)))
	}

	query := "UPDATE conversations SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return goerr.Wrap(err, "failed to patch conversation", goerr.V("id", id))
	}
	return nil
}

func insertMessages(ctx context.Context, tx pgx.Tx, id model.ConversationID, next int, messages []MessageInput, now time.Time) error {
	for i, m := range messages {
		_, err := tx.Exec(ctx, `
INSERT INTO conversation_messages (id, conversation_id, role, content, "position", embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(model.NewMessageID()),
			string(id),
			m.Role,
			m.Content,
			next+i,
			nullableVector(m.Embedding),
			now,
		)
		if err != nil {
			return goerr.Wrap(err, "failed to insert message",
				goerr.V("conversation_id", id),
				goerr.V("position", next+i))
		}
	}
	return nil
}

// recomputeAggregates rebuilds avg_embedding and centroids from the full
// message embedding set inside the same transaction as the write that
// changed it.
func recomputeAggregates(ctx context.Context, tx pgx.Tx, id model.ConversationID, now time.Time) error {
	rows, err := tx.Query(ctx, `
SELECT embedding::text
FROM conversation_messages
WHERE conversation_id = $1 AND embedding IS NOT NULL
ORDER BY "position"`, string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to load message embeddings")
	}
	defer rows.Close()

	var messages []*model.ConversationMessage
	for rows.Next() {
		var embText string
		if err := rows.Scan(&embText); err != nil {
			return goerr.Wrap(err, "failed to scan embedding")
		}
		emb, err := parseVector(embText)
		if err != nil {
			return err
		}
		messages = append(messages, &model.ConversationMessage{Embedding: emb})
	}
	if err := rows.Err(); err != nil {
		return goerr.Wrap(err, "failed to iterate embeddings")
	}
	rows.Close()

	avg, centroids := computeAggregates(messages)

	var centroidsJSON any
	if centroids != nil {
		raw, err := json.Marshal(centroids)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal centroids")
		}
		centroidsJSON = string(raw)
	}

	_, err = tx.Exec(ctx, `
UPDATE conversations SET avg_embedding = $2, centroids = $3::jsonb, updated_at = $4 WHERE id = $1`,
		string(id), nullableVector(avg), centroidsJSON, now)
	if err != nil {
		return goerr.Wrap(err, "failed to store aggregates", goerr.V("id", id))
	}
	return nil
}

func (r *Postgres) SearchConversations(ctx context.Context, q model.ConversationQuery) ([]*model.Conversation, error) {
	if len(q.QueryEmbedding) > 0 {
		return r.searchConversationsByVector(ctx, q)
	}
	return r.searchConversationsByText(ctx, q)
}

func (r *Postgres) searchConversationsByVector(ctx context.Context, q model.ConversationQuery) ([]*model.Conversation, error) {
	// Per-conversation relevance is its best message match
	query := `
SELECT c.id, MIN(m.embedding <=> $1) AS distance
FROM conversations c
JOIN conversation_messages m ON m.conversation_id = c.id
WHERE m.embedding IS NOT NULL`
	args := []any{pgvector.NewVector(q.QueryEmbedding)}
	query, args = appendConversationFilters(query, args, q)
	query += " GROUP BY c.id ORDER BY MIN(m.embedding <=> $1)"
	query, args = appendLimit(query, args, q.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search conversations by vector")
	}
	defer rows.Close()

	type ranked struct {
		id       model.ConversationID
		distance float64
	}
	var hits []ranked
	for rows.Next() {
		var h ranked
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			return nil, goerr.Wrap(err, "failed to scan search hit")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate search hits")
	}
	rows.Close()

	results := make([]*model.Conversation, 0, len(hits))
	for _, h := range hits {
		conv, err := loadConversation(ctx, r.pool, h.id, q.Include)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			continue
		}
		conv.Score = 1 - h.distance
		results = append(results, conv)
	}
	return results, nil
}

func (r *Postgres) searchConversationsByText(ctx context.Context, q model.ConversationQuery) ([]*model.Conversation, error) {
	query := `
SELECT c.id
FROM conversations c
WHERE ($1 = '' OR c.title ILIKE $2 OR EXISTS (
  SELECT 1 FROM conversation_messages m
  WHERE m.conversation_id = c.id AND m.content ILIKE $2
))`
	args := []any{q.Query, likePattern(q.Query)}
	query, args = appendConversationFilters(query, args, q)
	query += " ORDER BY c.created_at DESC"
	query, args = appendLimit(query, args, q.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search conversations by text")
	}
	defer rows.Close()

	var ids []model.ConversationID
	for rows.Next() {
		var id model.ConversationID
		if err := rows.Scan(&id); err != nil {
			return nil, goerr.Wrap(err, "failed to scan conversation id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate conversation ids")
	}
	rows.Close()

	results := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := loadConversation(ctx, r.pool, id, q.Include)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			results = append(results, conv)
		}
	}
	return results, nil
}

func (r *Postgres) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	return loadConversation(ctx, r.pool, id, model.Include{AvgEmbedding: true, Centroids: true})
}

func (r *Postgres) GetConversationBySourceID(ctx context.Context, sourceID string) (*model.Conversation, error) {
	var id model.ConversationID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM conversations WHERE source_id = $1`, sourceID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up conversation", goerr.V("source_id", sourceID))
	}
	return loadConversation(ctx, r.pool, id, model.Include{AvgEmbedding: true, Centroids: true})
}

func (r *Postgres) HealthCheck(ctx context.Context) bool {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}

func (r *Postgres) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func loadConversation(ctx context.Context, q querier, id model.ConversationID, inc model.Include) (*model.Conversation, error) {
	row := q.QueryRow(ctx, `
SELECT id, title, source, COALESCE(source_id, ''), COALESCE(user_id, ''), tags,
       COALESCE(avg_embedding::text, ''), COALESCE(centroids::text, ''),
       created_at, updated_at
FROM conversations
WHERE id = $1`, string(id))

	var (
		conv          model.Conversation
		tagsJSON      []byte
		avgText       string
		centroidsText string
	)
	err := row.Scan(&conv.ID, &conv.Title, &conv.Source, &conv.SourceID, &conv.UserID,
		&tagsJSON, &avgText, &centroidsText, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load conversation", goerr.V("id", id))
	}

	if err := json.Unmarshal(tagsJSON, &conv.Tags); err != nil {
		return nil, goerr.Wrap(err, "failed to decode tags", goerr.V("id", id))
	}
	if inc.AvgEmbedding && avgText != "" {
		if conv.AvgEmbedding, err = parseVector(avgText); err != nil {
			return nil, err
		}
	}
	if inc.Centroids && centroidsText != "" {
		if err := json.Unmarshal([]byte(centroidsText), &conv.Centroids); err != nil {
			return nil, goerr.Wrap(err, "failed to decode centroids", goerr.V("id", id))
		}
	}

	rows, err := q.Query(ctx, `
SELECT id, role, content, "position", COALESCE(embedding::text, ''), created_at
FROM conversation_messages
WHERE conversation_id = $1
ORDER BY "position"`, string(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load messages", goerr.V("id", id))
	}
	defer rows.Close()

	for rows.Next() {
		msg := model.ConversationMessage{ConversationID: conv.ID}
		var embText string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.Position, &embText, &msg.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		if embText != "" {
			if msg.Embedding, err = parseVector(embText); err != nil {
				return nil, err
			}
		}
		conv.Messages = append(conv.Messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate messages")
	}

	return &conv, nil
}

func scanMemory(row pgx.Row) (*model.Memory, error) {
	var (
		m        model.Memory
		tagsJSON []byte
		embText  string
	)
	if err := row.Scan(&m.ID, &m.Content, &tagsJSON, &embText, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeMemoryColumns(&m, tagsJSON, embText); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeMemoryColumns(m *model.Memory, tagsJSON []byte, embText string) error {
	if err := json.Unmarshal(tagsJSON, &m.Tags); err != nil {
		return goerr.Wrap(err, "failed to decode tags", goerr.V("id", m.ID))
	}
	if embText != "" {
		emb, err := parseVector(embText)
		if err != nil {
			return err
		}
		m.Embedding = emb
	}
	return nil
}

// appendTagFilter narrows to records whose tag set intersects the filter
// tags, compared case-insensitively
func appendTagFilter(query string, args []any, tags []string) (string, []any) {
	if len(tags) == 0 {
		return query, args
	}
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}
	args = append(args, lowered)
	query += fmt.Sprintf(
		" AND EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) tag WHERE lower(tag) = ANY($%d))",
		len(args))
	return query, args
}

func appendConversationFilters(query string, args []any, q model.ConversationQuery) (string, []any) {
	if q.UserID != "" {
		args = append(args, q.UserID)
		query += fmt.Sprintf(" AND c.user_id = $%d", len(args))
	}
	if len(q.Tags) > 0 {
		lowered := make([]string, len(q.Tags))
		for i, t := range q.Tags {
			lowered[i] = strings.ToLower(t)
		}
		args = append(args, lowered)
		query += fmt.Sprintf(
			" AND EXISTS (SELECT 1 FROM jsonb_array_elements_text(c.tags) tag WHERE lower(tag) = ANY($%d))",
			len(args))
	}
	return query, args
}

func appendLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	args = append(args, limit)
	return query + fmt.Sprintf(" LIMIT $%d", len(args)), args
}

func likePattern(query string) string {
	return "%" + query + "%"
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func parseVector(text string) ([]float32, error) {
	var vec pgvector.Vector
	if err := vec.Parse(text); err != nil {
		return nil, goerr.Wrap(err, "failed to parse vector column")
	}
	return vec.Slice(), nil
}
