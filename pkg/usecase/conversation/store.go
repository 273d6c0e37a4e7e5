package conversation

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

// StoreInput carries the fields for a brand-new conversation
type StoreInput struct {
	Title    string
	Source   string
	SourceID string
	UserID   string
	Tags     []string
	Messages []Message
}

// Store creates a new conversation. Messages are assigned positions in
// the order given, and qualifying user messages are embedded before the
// conversation is written.
func (u *UseCase) Store(ctx context.Context, input StoreInput) (*model.Conversation, error) {
	if err := validateMessages(input.Messages); err != nil {
		return nil, err
	}

	return u.repo.CreateConversation(ctx, repository.CreateConversationInput{
		Title:    input.Title,
		Source:   input.Source,
		SourceID: input.SourceID,
		UserID:   input.UserID,
		Tags:     input.Tags,
		Messages: u.embedMessages(ctx, input.Messages),
	})
}

func validateMessages(messages []Message) error {
	for i, msg := range messages {
		if strings.TrimSpace(msg.Role) == "" {
			return goerr.Wrap(model.ErrInvalidArgument, "message role is empty", goerr.V("index", i))
		}
		if strings.TrimSpace(msg.Content) == "" {
			return goerr.Wrap(model.ErrInvalidArgument, "message content is empty", goerr.V("index", i))
		}
	}
	return nil
}
