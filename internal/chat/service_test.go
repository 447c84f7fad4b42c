package chat

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantclimate/verdant-backend/pkg/config"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

type fakeCompletionAPI struct {
	lastRequest openai.ChatCompletionRequest
	reply       string
	err         error
}

func (f *fakeCompletionAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastRequest = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}},
		},
	}, nil
}

func newTestService(api completionAPI) *service {
	logg := logger.New(logger.Options{ServiceName: "chat-test"})
	return &service{api: api, model: "gpt-4o-mini", systemPrompt: defaultSystemPrompt, logg: logg}
}

func TestNewServiceRequiresAPIKey(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "chat-test"})

	_, err := NewService(config.OpenAIConfig{}, logg)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMissingConfig, pkgerrors.As(err).Code())
}

func TestCompletePrependsSystemPrompt(t *testing.T) {
	api := &fakeCompletionAPI{reply: "Credits are retired within 30 days."}
	svc := newTestService(api)

	reply, err := svc.Complete(context.Background(), []Message{
		{Role: "user", Content: "When are my credits retired?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Credits are retired within 30 days.", reply)

	require.Len(t, api.lastRequest.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, api.lastRequest.Messages[0].Role)
	assert.Equal(t, defaultSystemPrompt, api.lastRequest.Messages[0].Content)
	assert.Equal(t, "When are my credits retired?", api.lastRequest.Messages[1].Content)
	assert.Equal(t, "gpt-4o-mini", api.lastRequest.Model)
}

func TestCompleteForwardsConversationHistory(t *testing.T) {
	api := &fakeCompletionAPI{reply: "You can resend it from your receipt email."}
	svc := newTestService(api)

	_, err := svc.Complete(context.Background(), []Message{
		{Role: "user", Content: "I lost my receipt."},
		{Role: "assistant", Content: "I can help with that."},
		{Role: "user", Content: "How do I get another one?"},
	})
	require.NoError(t, err)
	require.Len(t, api.lastRequest.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleAssistant, api.lastRequest.Messages[2].Role)
}

func TestCompleteRejectsEmptyConversation(t *testing.T) {
	svc := newTestService(&fakeCompletionAPI{})

	_, err := svc.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCompleteWrapsProviderFailure(t *testing.T) {
	api := &fakeCompletionAPI{err: errors.New("rate limited")}
	svc := newTestService(api)

	_, err := svc.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}
