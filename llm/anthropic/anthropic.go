// Package anthropic adapts the Anthropic Messages API to llm.StreamingModel.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/ria/llm"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "claude-3-5-sonnet-latest"

// DefaultMaxTokens bounds the length of a reply.
const DefaultMaxTokens = 4096

// ErrMissingAPIKey is returned when the model is used without a key.
var ErrMissingAPIKey = errors.New("anthropic: API key is required")

// Model implements llm.StreamingModel for Claude. Stream delivers the whole
// reply as a single chunk.
type Model struct {
	modelName string
	maxTokens int64
	client    messagesClient
}

type messagesClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// New returns a Claude model. An empty modelName selects DefaultModel.
func New(apiKey, modelName string) *Model {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Model{
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
		client:    newSDKClient(apiKey),
	}
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

	msg, err := m.client.createMessage(ctx, m.params(messages))
	if err != nil {
		return llm.ChatOut{}, wrapError(err)
	}
	return convertMessage(msg), nil
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

func (m *Model) params(messages []llm.Message) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
	}

	var system []string
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return params
}

func convertMessage(msg *anthropic.Message) llm.ChatOut {
	var out llm.ChatOut
	if msg == nil {
		return out
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out.Text = b.String()
	out.Usage = llm.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return out
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.APIError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("anthropic: %w", err)
}

type sdkClient struct {
	client *anthropic.Client
}

func newSDKClient(apiKey string) messagesClient {
	if apiKey == "" {
		return missingKeyClient{}
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &sdkClient{client: &client}
}

func (c *sdkClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.client.Messages.New(ctx, params)
}

type missingKeyClient struct{}

func (missingKeyClient) createMessage(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
	return nil, ErrMissingAPIKey
}
