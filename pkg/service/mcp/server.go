package mcp

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/conversation"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes the memory and conversation operations as MCP tools
// over stdio, so that agent runtimes can use the store directly.
type Server struct {
	memories      *memory.UseCase
	conversations *conversation.UseCase
	server        *mcp.Server
}

// New builds an MCP server with all tools registered
func New(memories *memory.UseCase, conversations *conversation.UseCase) *Server {
	s := &Server{
		memories:      memories,
		conversations: conversations,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "kioku",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "store_memory",
		Description: "Store a standalone memory with optional tags",
	}, s.storeMemory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Search stored memories by semantic similarity, falling back to text matching",
	}, s.searchMemories)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "upsert_conversation",
		Description: "Create or update a conversation keyed by its source ID, appending new messages",
	}, s.upsertConversation)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_conversations",
		Description: "Search conversations by semantic similarity, falling back to text matching",
	}, s.searchConversations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_conversation",
		Description: "Get a conversation and its ordered messages by ID",
	}, s.getConversation)

	return s
}

// Run serves MCP requests over stdio until the context is cancelled
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "failed to run MCP server")
	}
	return nil
}

func textResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal tool result")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil
}

type storeMemoryParams struct {
	Content string   `json:"content" jsonschema:"The memory content to store"`
	Tags    []string `json:"tags,omitempty" jsonschema:"Optional tags for filtering"`
}

func (s *Server) storeMemory(ctx context.Context, _ *mcp.CallToolRequest, params *storeMemoryParams) (*mcp.CallToolResult, any, error) {
	mem, err := s.memories.Store(ctx, params.Content, params.Tags)
	if err != nil {
		return nil, nil, err
	}

	result, err := textResult(map[string]any{
		"id":      mem.ID,
		"content": mem.Content,
		"tags":    mem.Tags,
	})
	return result, nil, err
}

type searchMemoriesParams struct {
	Query string   `json:"query,omitempty" jsonschema:"Search query, semantic when the embedding provider is available"`
	Tags  []string `json:"tags,omitempty" jsonschema:"Only return memories carrying at least one of these tags"`
	Limit int      `json:"limit,omitempty" jsonschema:"Maximum number of results"`
}

func (s *Server) searchMemories(ctx context.Context, _ *mcp.CallToolRequest, params *searchMemoriesParams) (*mcp.CallToolResult, any, error) {
	memories, err := s.memories.Fetch(ctx, params.Query, params.Tags, params.Limit)
	if err != nil {
		return nil, nil, err
	}

	items := make([]map[string]any, len(memories))
	for i, mem := range memories {
		items[i] = map[string]any{
			"id":      mem.ID,
			"content": mem.Content,
			"tags":    mem.Tags,
			"score":   mem.Score,
		}
	}

	result, err := textResult(map[string]any{"memories": items, "total": len(items)})
	return result, nil, err
}

type messageParams struct {
	Role    string `json:"role" jsonschema:"Speaker role, e.g. user or assistant"`
	Content string `json:"content" jsonschema:"Message content"`
}

type upsertConversationParams struct {
	SourceID string          `json:"sourceId" jsonschema:"External key identifying the conversation, e.g. a thread ID"`
	Title    *string         `json:"title,omitempty" jsonschema:"Conversation title; omit to leave unchanged"`
	Source   *string         `json:"source,omitempty" jsonschema:"Origin system name; omit to leave unchanged"`
	UserID   *string         `json:"userId,omitempty" jsonschema:"Owning user; omit to leave unchanged"`
	Tags     *[]string       `json:"tags,omitempty" jsonschema:"Tags; omit to leave unchanged"`
	Messages []messageParams `json:"messages,omitempty" jsonschema:"Messages to append after the existing ones"`
}

func (s *Server) upsertConversation(ctx context.Context, _ *mcp.CallToolRequest, params *upsertConversationParams) (*mcp.CallToolResult, any, error) {
	input := conversation.UpsertInput{
		SourceID: params.SourceID,
		Title:    params.Title,
		Source:   params.Source,
		UserID:   params.UserID,
		Tags:     params.Tags,
	}
	for _, msg := range params.Messages {
		input.Messages = append(input.Messages, conversation.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	conv, err := s.conversations.Upsert(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	result, err := textResult(map[string]any{
		"id":       conv.ID,
		"title":    conv.Title,
		"messages": len(conv.Messages),
	})
	return result, nil, err
}

type searchConversationsParams struct {
	Query  string   `json:"query,omitempty" jsonschema:"Search query, semantic when the embedding provider is available"`
	Tags   []string `json:"tags,omitempty" jsonschema:"Only return conversations carrying at least one of these tags"`
	UserID string   `json:"userId,omitempty" jsonschema:"Only return conversations owned by this user"`
	Limit  int      `json:"limit,omitempty" jsonschema:"Maximum number of results"`
}

func (s *Server) searchConversations(ctx context.Context, _ *mcp.CallToolRequest, params *searchConversationsParams) (*mcp.CallToolResult, any, error) {
	conversations, err := s.conversations.Search(ctx, conversation.SearchInput{
		Query:  params.Query,
		Tags:   params.Tags,
		UserID: params.UserID,
		Limit:  params.Limit,
	})
	if err != nil {
		return nil, nil, err
	}

	items := make([]map[string]any, len(conversations))
	for i, conv := range conversations {
		items[i] = map[string]any{
			"id":       conv.ID,
			"title":    conv.Title,
			"tags":     conv.Tags,
			"score":    conv.Score,
			"messages": len(conv.Messages),
		}
	}

	result, err := textResult(map[string]any{"conversations": items, "total": len(items)})
	return result, nil, err
}

type getConversationParams struct {
	ID string `json:"id" jsonschema:"Conversation ID"`
}

func (s *Server) getConversation(ctx context.Context, _ *mcp.CallToolRequest, params *getConversationParams) (*mcp.CallToolResult, any, error) {
	conv, err := s.conversations.GetByID(ctx, model.ConversationID(params.ID))
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, goerr.Wrap(model.ErrInvalidArgument, "conversation not found", goerr.V("id", params.ID))
	}

	messages := make([]map[string]any, len(conv.Messages))
	for i, msg := range conv.Messages {
		messages[i] = map[string]any{
			"role":     msg.Role,
			"content":  msg.Content,
			"position": msg.Position,
		}
	}

	result, err := textResult(map[string]any{
		"id":       conv.ID,
		"title":    conv.Title,
		"tags":     conv.Tags,
		"messages": messages,
	})
	return result, nil, err
}
