package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/widget/internal/config"
	"github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/model/profile"
)

// DefaultHistoryLimit caps how many earlier messages go into the prompt.
const DefaultHistoryLimit = 10

// Responder produces the assistant reply for one user message.
type Responder interface {
	Respond(ctx context.Context, p *profile.Profile, history []chat.Message, query string) (string, error)
}

// EchoResponder answers without a model; used when Ark is not configured.
type EchoResponder struct{}

// Respond echoes the query back with the profile name.
func (EchoResponder) Respond(_ context.Context, p *profile.Profile, history []chat.Message, query string) (string, error) {
	name := "Assistant"
	if p != nil && p.Name != "" {
		name = p.Name
	}
	return fmt.Sprintf("**%s** received message #%d:\n\n%s", name, countUser(history)+1, query), nil
}

func countUser(history []chat.Message) int {
	n := 0
	for _, msg := range history {
		if msg.Role == chat.RoleUser {
			n++
		}
	}
	return n
}

// Service runs the prompt template and chat model as one eino chain.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
}

// NewService creates a Service backed by the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}
	return NewServiceWithModel(ctx, chatModel, cfg.HistoryLimit)
}

// NewServiceWithModel builds the chain around any chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, historyLimit int) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile chat chain")
	}

	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{chain: runnable, historyLimit: historyLimit}, nil
}

// Respond generates the assistant reply for query.
func (s *Service) Respond(ctx context.Context, p *profile.Profile, history []chat.Message, query string) (string, error) {
	input := map[string]any{
		"system":  BuildSystemPrompt(p),
		"history": buildHistoryMessages(history, s.historyLimit),
		"query":   query,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "failed to run AI chain")
	}

	log.Debug().Str("component", "ai").Int("history", len(history)).Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
