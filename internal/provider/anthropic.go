package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aicx/aicx/internal/protocol"
)

// Anthropic implements Adapter against Anthropic's Messages API.
// Claude has no native JSON mode; strict JSON is requested through the
// system prompt and recovered by the parsing layer.
type Anthropic struct {
	model      protocol.ModelConfig
	strict     bool
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption configures an Anthropic adapter.
type AnthropicOption func(*Anthropic)

// WithAnthropicBaseURL sets a custom base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(a *Anthropic) { a.baseURL = url }
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(c *http.Client) AnthropicOption {
	return func(a *Anthropic) { a.httpClient = c }
}

// NewAnthropic creates an Anthropic adapter for the given model.
// Reads API key from ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model protocol.ModelConfig, strictJSON bool, opts ...AnthropicOption) (*Anthropic, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, protocol.NewProviderError("anthropic", protocol.ErrAuth,
			"ANTHROPIC_API_KEY environment variable required")
	}

	a := &Anthropic{
		model:      model,
		strict:     strictJSON,
		apiKey:     apiKey,
		baseURL:    "https://api.anthropic.com/v1",
		httpClient: &http.Client{Timeout: time.Duration(model.TimeoutSeconds) * time.Second},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

func (a *Anthropic) Name() string       { return a.model.Name }
func (a *Anthropic) SupportsJSON() bool { return false }

// CreateChatCompletion sends a prompt to a Claude model and returns the
// parsed response.
func (a *Anthropic) CreateChatCompletion(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error) {
	payload := anthropicRequest{
		Model:       a.model.ModelID,
		MaxTokens:   a.model.MaxTokens,
		Temperature: a.model.Temperature,
		System:      req.SystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.UserPrompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return protocol.Response{}, transportError(a.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Response{}, transportError(a.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return protocol.Response{}, protocol.NewProviderError(a.Name(), kindFromStatus(resp.StatusCode),
			"API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return protocol.Response{}, protocol.NewParseError(string(respBody), "parsing response envelope: %v", err)
	}

	if len(anthropicResp.Content) == 0 {
		return protocol.Response{}, protocol.NewParseError(string(respBody), "no content in response")
	}

	return parseByRole(anthropicResp.Content[0].Text, a.model.Name, req, a.strict)
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}
