package llm

import (
	"context"
	"fmt"

	"github.com/lazypower/recall/internal/config"
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// NewClient creates an LLM client for cfg.Provider. Network providers are
// wrapped with retry when cfg.MaxRetries > 0.
func NewClient(cfg config.LLMConfig) (Client, error) {
	var c Client
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		c = NewAnthropic(cfg.AnthropicKey, model, cfg.MaxTokens)
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4"
		}
		c = NewOpenAI(cfg.OpenAIKey, model, cfg.OpenAIBaseURL, cfg.MaxTokens)
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		c = NewOllama(url, model, cfg.LLMTimeout())
	case "exec":
		cmd, err := NewCommand(cfg.Command, cfg.LLMTimeout())
		if err != nil {
			return nil, err
		}
		c = cmd
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		c = NewClaudeCLI(model, cfg.LLMTimeout())
	case "mock":
		return &MockClient{Response: &Response{Content: "mock response", Provider: "mock"}}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}

	if cfg.MaxRetries > 0 {
		return WithRetry(c, cfg.MaxRetries), nil
	}
	return c, nil
}
