// Package openai adapts OpenAI chat completions to llm.StreamingModel.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/ria/llm"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// ErrMissingAPIKey is returned when the model is used without a key.
var ErrMissingAPIKey = errors.New("openai: API key is required")

// Model implements llm.StreamingModel for OpenAI. Stream delivers the whole
// reply as a single chunk.
type Model struct {
	modelName string
	client    completionsClient
}

type completionsClient interface {
	createCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// New returns an OpenAI model. An empty modelName selects DefaultModel.
func New(apiKey, modelName string) *Model {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Model{modelName: modelName, client: newSDKClient(apiKey)}
}

// Name returns the configured model name.
func (m *Model) Name() string {
	return m.modelName
}

// Chat implements llm.ChatModel.
func (m *Model) Chat(ctx context.Context, messages []llm.Message) (llm.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatOut{}, err
	}

	completion, err := m.client.createCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	})
	if err != nil {
		return llm.ChatOut{}, wrapError(err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return llm.ChatOut{}, errors.New("openai: no choices in response")
	}

	return llm.ChatOut{
		Text: completion.Choices[0].Message.Content,
		Usage: llm.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// Stream implements llm.StreamingModel.
func (m *Model) Stream(ctx context.Context, messages []llm.Message, fn func(string) error) error {
	out, err := m.Chat(ctx, messages)
	if err != nil {
		return err
	}
	if out.Text == "" {
		return nil
	}
	return fn(out.Text)
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.APIError{Provider: "openai", StatusCode: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("openai: %w", err)
}

type sdkClient struct {
	client *openai.Client
}

func newSDKClient(apiKey string) completionsClient {
	if apiKey == "" {
		return missingKeyClient{}
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &sdkClient{client: &client}
}

func (c *sdkClient) createCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

type missingKeyClient struct{}

func (missingKeyClient) createCompletion(context.Context, openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return nil, ErrMissingAPIKey
}
