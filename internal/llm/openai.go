package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
)

// OpenAI calls the Chat Completions API through the official SDK. baseURL
// may point at any compatible server.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI creates a client for model. An empty baseURL uses the SDK
// default.
func NewOpenAI(apiKey, model, baseURL string, maxTokens int, opts ...openaiopt.RequestOption) *OpenAI {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	base := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(apiKey),
		openaiopt.WithMaxRetries(0),
	}
	if baseURL != "" {
		base = append(base, openaiopt.WithBaseURL(baseURL))
	}

	return &OpenAI{
		client:    openai.NewClient(append(base, opts...)...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Complete sends prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (*Response, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api: no choices returned")
	}

	return &Response{
		Content:    resp.Choices[0].Message.Content,
		Provider:   "openai",
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}
