// Package gemini adapts the Google Gemini API to llm.StreamingModel.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dshills/ria/llm"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-pro"

// ErrMissingAPIKey is returned when the model is used without a key.
var ErrMissingAPIKey = errors.New("gemini: API key is required")

// Model implements llm.StreamingModel for Gemini.
//
//	m := gemini.New(os.Getenv("GEMINI_API_KEY"), "gemini-pro")
//	err := m.Stream(ctx, llm.User(prompt), func(chunk string) error {
//	    fmt.Print(chunk)
//	    return nil
//	})
type Model struct {
	modelName string
	client    geminiClient
}

// geminiClient is the slice of the SDK the adapter needs; tests replace it.
type geminiClient interface {
	generate(ctx context.Context, system string, parts []genai.Part) (*genai.GenerateContentResponse, error)
	stream(ctx context.Context, system string, parts []genai.Part, fn func(*genai.GenerateContentResponse) error) error
}

// New returns a Gemini model. An empty modelName selects DefaultModel.
func New(apiKey, modelName string) *Model {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Model{
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey, modelName: modelName},
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
	system, parts := convertMessages(messages)

	resp, err := m.client.generate(ctx, system, parts)
	if err != nil {
		return llm.ChatOut{}, wrapError(err)
	}
	return convertResponse(resp), nil
}

// Stream implements llm.StreamingModel. Each streamed response contributes
// its text parts as one chunk.
func (m *Model) Stream(ctx context.Context, messages []llm.Message, fn func(string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	system, parts := convertMessages(messages)

	var cbErr error
	err := m.client.stream(ctx, system, parts, func(resp *genai.GenerateContentResponse) error {
		text := convertResponse(resp).Text
		if text == "" {
			return nil
		}
		if err := fn(text); err != nil {
			cbErr = err
			return err
		}
		return nil
	})
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		return wrapError(err)
	}
	return nil
}

// convertMessages folds system messages into a system instruction and the
// rest into text parts.
func convertMessages(messages []llm.Message) (string, []genai.Part) {
	var (
		system []string
		parts  []genai.Part
	)
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	return strings.Join(system, "\n\n"), parts
}

func convertResponse(resp *genai.GenerateContentResponse) llm.ChatOut {
	var out llm.ChatOut
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out.Text = b.String()
	return out
}

// wrapError attaches an HTTP status to SDK errors so llm.IsRetryable can
// classify them. REST errors carry it directly; gRPC codes are mapped.
func wrapError(err error) error {
	if code, ok := statusCode(err); ok {
		return &llm.APIError{Provider: "gemini", StatusCode: code, Err: err}
	}
	return fmt.Errorf("gemini: %w", err)
}

func statusCode(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}

	st, ok := status.FromError(err)
	if !ok {
		return 0, false
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests, true
	case codes.Unavailable:
		return http.StatusServiceUnavailable, true
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return http.StatusInternalServerError, true
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest, true
	case codes.Unauthenticated:
		return http.StatusUnauthorized, true
	case codes.PermissionDenied:
		return http.StatusForbidden, true
	case codes.NotFound:
		return http.StatusNotFound, true
	}
	return 0, false
}

// sdkClient talks to the API through the official SDK. A client is opened
// per request and closed afterwards.
type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) open(ctx context.Context, system string) (*genai.Client, *genai.GenerativeModel, error) {
	if c.apiKey == "" {
		return nil, nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	gm := client.GenerativeModel(c.modelName)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return client, gm, nil
}

func (c *sdkClient) generate(ctx context.Context, system string, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	client, gm, err := c.open(ctx, system)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	return gm.GenerateContent(ctx, parts...)
}

func (c *sdkClient) stream(ctx context.Context, system string, parts []genai.Part, fn func(*genai.GenerateContentResponse) error) error {
	client, gm, err := c.open(ctx, system)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	iter := gm.GenerateContentStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}
