// Package provider builds the configured llm.StreamingModel.
package provider

import (
	"fmt"
	"strings"

	"github.com/dshills/ria/config"
	"github.com/dshills/ria/llm"
	"github.com/dshills/ria/llm/anthropic"
	"github.com/dshills/ria/llm/gemini"
	"github.com/dshills/ria/llm/openai"
)

// Supported LLM_PROVIDER values.
const (
	Gemini    = "gemini"
	Anthropic = "anthropic"
	OpenAI    = "openai"
)

// New returns the model selected by cfg.LLMProvider. The API key of the
// selected provider must be set.
func New(cfg *config.Config) (llm.StreamingModel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case Gemini, "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=%s requires GEMINI_API_KEY", Gemini)
		}
		return gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	case Anthropic:
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=%s requires ANTHROPIC_API_KEY", Anthropic)
		}
		return anthropic.New(cfg.AnthropicKey, cfg.AnthropicModel), nil
	case OpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=%s requires OPENAI_API_KEY", OpenAI)
		}
		return openai.New(cfg.OpenAIKey, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (want %s, %s or %s)", cfg.LLMProvider, Gemini, Anthropic, OpenAI)
	}
}
