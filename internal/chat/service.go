package chat

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/verdantclimate/verdant-backend/pkg/config"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

const defaultSystemPrompt = "You are the support assistant for Verdant Climate, a carbon-offset " +
	"storefront. Answer questions about offset purchases, receipts, credit retirement and the " +
	"leaderboard. Be concise. If asked about topics unrelated to the store, politely decline."

// Message is one turn of the support conversation.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// Service proxies support conversations to the chat-completion provider.
// Stateless: the caller resends prior turns on every request.
type Service interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type service struct {
	api          completionAPI
	model        string
	systemPrompt string
	logg         *logger.Logger
}

// NewService builds the chat service.
func NewService(cfg config.OpenAIConfig, logg *logger.Logger) (Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMissingConfig, "openai api key is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &service{
		api:          openai.NewClient(cfg.APIKey),
		model:        cfg.Model,
		systemPrompt: prompt,
		logg:         logg,
	}, nil
}

// Complete forwards the conversation with the system prompt prepended and
// returns the assistant's reply.
func (s *service) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "at least one message is required")
	}

	request := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.systemPrompt},
		},
	}
	for _, msg := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := s.api.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "completing support chat")
	}
	if len(resp.Choices) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "chat provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
