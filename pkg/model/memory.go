package model

import (
	"time"

	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory represents a stored text fragment with its embedding vector.
// A memory is immutable once stored: there are no update or delete
// operations.
type Memory struct {
	ID        MemoryID
	Content   string
	Tags      []string
	Embedding []float32

	// Score is set only on search results and is never persisted.
	// 1 means identical to the query, lower means less similar.
	Score float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the memory
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	c.Embedding = append([]float32(nil), m.Embedding...)
	return &c
}

// MemoryQuery is the search request for memories. When QueryEmbedding is
// set the store ranks by vector similarity, otherwise it falls back to a
// case-insensitive substring match on content.
type MemoryQuery struct {
	Query          string
	Tags           []string
	QueryEmbedding []float32
	Limit          int
}
