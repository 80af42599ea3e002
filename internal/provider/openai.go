package provider

import (
	"context"
	"errors"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aicx/aicx/internal/protocol"
)

// OpenAI implements Adapter against the OpenAI chat completions API.
// Uses JSON mode via response_format for strict JSON output.
type OpenAI struct {
	model  protocol.ModelConfig
	strict bool
	client *openai.Client
}

// OpenAIOption configures an OpenAI adapter.
type OpenAIOption func(*OpenAI)

// WithOpenAIClient sets a custom API client (useful for proxies or
// compatible APIs).
func WithOpenAIClient(c *openai.Client) OpenAIOption {
	return func(o *OpenAI) { o.client = c }
}

// NewOpenAI creates an OpenAI adapter for the given model.
// Reads API key from OPENAI_API_KEY environment variable.
func NewOpenAI(model protocol.ModelConfig, strictJSON bool, opts ...OpenAIOption) (*OpenAI, error) {
	o := &OpenAI{model: model, strict: strictJSON}

	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, protocol.NewProviderError("openai", protocol.ErrAuth,
				"OPENAI_API_KEY environment variable required")
		}
		o.client = openai.NewClient(apiKey)
	}

	return o, nil
}

func (o *OpenAI) Name() string       { return o.model.Name }
func (o *OpenAI) SupportsJSON() bool { return true }

// CreateChatCompletion sends a prompt to an OpenAI model and returns the
// parsed response.
func (o *OpenAI) CreateChatCompletion(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(o.model.TimeoutSeconds)*time.Second)
	defer cancel()

	completion, err := o.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: o.model.ModelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: float32(o.model.Temperature),
		MaxTokens:   o.model.MaxTokens,
		TopP:        1.0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return protocol.Response{}, o.mapError(err)
	}

	if len(completion.Choices) == 0 {
		return protocol.Response{}, protocol.NewParseError("", "no choices in completion response")
	}

	return parseByRole(completion.Choices[0].Message.Content, o.model.Name, req, o.strict)
}

func (o *OpenAI) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &protocol.ProviderError{
			Message:  apiErr.Message,
			Provider: o.Name(),
			Kind:     kindFromStatus(apiErr.HTTPStatusCode),
			Err:      err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &protocol.ProviderError{
			Message:  reqErr.Error(),
			Provider: o.Name(),
			Kind:     kindFromStatus(reqErr.HTTPStatusCode),
			Err:      err,
		}
	}
	return transportError(o.Name(), err)
}
