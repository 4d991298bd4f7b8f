package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dshills/ria/llm"
)

type mockGeminiClient struct {
	responses []*genai.GenerateContentResponse
	err       error

	callCount  int
	lastSystem string
	lastParts  []genai.Part
}

func (m *mockGeminiClient) generate(_ context.Context, system string, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	m.callCount++
	m.lastSystem, m.lastParts = system, parts
	if m.err != nil {
		return nil, m.err
	}
	return m.responses[0], nil
}

func (m *mockGeminiClient) stream(_ context.Context, system string, parts []genai.Part, fn func(*genai.GenerateContentResponse) error) error {
	m.callCount++
	m.lastSystem, m.lastParts = system, parts
	for _, r := range m.responses {
		if err := fn(r); err != nil {
			return err
		}
	}
	return m.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]genai.Part, len(texts))
	for i, t := range texts {
		parts[i] = genai.Text(t)
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestNew(t *testing.T) {
	if got := New("key", "").Name(); got != DefaultModel {
		t.Errorf("default model = %q, want %q", got, DefaultModel)
	}
	if got := New("key", "gemini-1.5-flash").Name(); got != "gemini-1.5-flash" {
		t.Errorf("model = %q", got)
	}
}

func TestModel_Chat(t *testing.T) {
	resp := textResponse(`{"summary":`, `"ok"}`)
	resp.UsageMetadata = &genai.UsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 4}
	client := &mockGeminiClient{responses: []*genai.GenerateContentResponse{resp}}
	m := &Model{modelName: DefaultModel, client: client}

	out, err := m.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a recruiter."},
		{Role: llm.RoleUser, Content: "Parse this resume"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != `{"summary":"ok"}` {
		t.Errorf("text = %q", out.Text)
	}
	if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", out.Usage)
	}
	if client.lastSystem != "You are a recruiter." {
		t.Errorf("system instruction = %q", client.lastSystem)
	}
	if len(client.lastParts) != 1 || client.lastParts[0] != genai.Text("Parse this resume") {
		t.Errorf("parts = %v", client.lastParts)
	}
}

func TestModel_Chat_EmptyResponse(t *testing.T) {
	client := &mockGeminiClient{responses: []*genai.GenerateContentResponse{{}}}
	m := &Model{client: client}

	out, err := m.Chat(context.Background(), llm.User("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "" {
		t.Errorf("expected empty text, got %q", out.Text)
	}
}

func TestModel_Chat_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rest rate limit", &googleapi.Error{Code: 429}, true},
		{"rest server error", &googleapi.Error{Code: 500}, true},
		{"rest bad request", &googleapi.Error{Code: 400}, false},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), true},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"missing key", ErrMissingAPIKey, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Model{client: &mockGeminiClient{err: tt.err}}
			_, err := m.Chat(context.Background(), llm.User("hi"))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := llm.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (err %v)", got, tt.retryable, err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("error should wrap the SDK error")
			}
		})
	}
}

func TestModel_Chat_CancelledContext(t *testing.T) {
	client := &mockGeminiClient{}
	m := &Model{client: client}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Chat(ctx, llm.User("hi")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.callCount != 0 {
		t.Error("client should not be called")
	}
}

func TestModel_Stream(t *testing.T) {
	client := &mockGeminiClient{responses: []*genai.GenerateContentResponse{
		textResponse("## Score: "),
		{},
		textResponse("82/100"),
	}}
	m := &Model{client: client}

	var chunks []string
	err := m.Stream(context.Background(), llm.User("review"), func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if strings.Join(chunks, "") != "## Score: 82/100" || len(chunks) != 2 {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestModel_Stream_CallbackError(t *testing.T) {
	stop := errors.New("subscriber gone")
	client := &mockGeminiClient{responses: []*genai.GenerateContentResponse{textResponse("a"), textResponse("b")}}
	m := &Model{client: client}

	err := m.Stream(context.Background(), llm.User("review"), func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		t.Error("callback errors must not be classified as API errors")
	}
}

func TestModel_Stream_APIError(t *testing.T) {
	client := &mockGeminiClient{
		responses: []*genai.GenerateContentResponse{textResponse("partial")},
		err:       &googleapi.Error{Code: 503},
	}
	m := &Model{client: client}

	err := m.Stream(context.Background(), llm.User("review"), func(string) error { return nil })
	if !llm.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestSDKClient_MissingKey(t *testing.T) {
	c := &sdkClient{modelName: DefaultModel}
	if _, err := c.generate(context.Background(), "", nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
