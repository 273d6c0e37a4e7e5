package conversation

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

// UpsertInput patches the conversation identified by SourceID, creating
// it when absent. Nil pointer fields are left untouched; non-nil fields
// overwrite the stored value even when empty.
type UpsertInput struct {
	SourceID string
	Title    *string
	Source   *string
	UserID   *string
	Tags     *[]string
	Messages []Message
}

// Upsert creates or updates a conversation keyed by source ID. New
// messages are appended after the existing ones; the aggregate vectors
// are recomputed over the full message set whenever messages are added.
func (u *UseCase) Upsert(ctx context.Context, input UpsertInput) (*model.Conversation, error) {
	if strings.TrimSpace(input.SourceID) == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "sourceId is required for upsert")
	}
	if err := validateMessages(input.Messages); err != nil {
		return nil, err
	}

	return u.repo.UpsertConversation(ctx, repository.UpsertConversationInput{
		SourceID: input.SourceID,
		Title:    input.Title,
		Source:   input.Source,
		UserID:   input.UserID,
		Tags:     input.Tags,
		Messages: u.embedMessages(ctx, input.Messages),
	})
}
