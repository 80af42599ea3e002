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

// Gemini implements Adapter against Google's Gemini API.
// Supports JSON output via responseMimeType.
type Gemini struct {
	model      protocol.ModelConfig
	strict     bool
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GeminiOption configures a Gemini adapter.
type GeminiOption func(*Gemini)

// WithGeminiBaseURL sets a custom base URL.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(g *Gemini) { g.baseURL = url }
}

// WithGeminiHTTPClient sets a custom HTTP client.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpClient = c }
}

// NewGemini creates a Gemini adapter for the given model.
// Reads API key from GEMINI_API_KEY environment variable.
func NewGemini(model protocol.ModelConfig, strictJSON bool, opts ...GeminiOption) (*Gemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, protocol.NewProviderError("gemini", protocol.ErrAuth,
			"GEMINI_API_KEY environment variable required")
	}

	g := &Gemini{
		model:      model,
		strict:     strictJSON,
		apiKey:     apiKey,
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{Timeout: time.Duration(model.TimeoutSeconds) * time.Second},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *Gemini) Name() string       { return g.model.Name }
func (g *Gemini) SupportsJSON() bool { return true }

// CreateChatCompletion sends a prompt to a Gemini model and returns the
// parsed response.
func (g *Gemini) CreateChatCompletion(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error) {
	payload := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		},
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: req.UserPrompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.model.Temperature,
			MaxOutputTokens:  g.model.MaxTokens,
			ResponseMimeType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	// Gemini uses model name in URL path
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model.ModelID, g.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return protocol.Response{}, transportError(g.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Response{}, transportError(g.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return protocol.Response{}, protocol.NewProviderError(g.Name(), kindFromStatus(resp.StatusCode),
			"API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return protocol.Response{}, protocol.NewParseError(string(respBody), "parsing response envelope: %v", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return protocol.Response{}, protocol.NewParseError(string(respBody), "no content in response")
	}

	return parseByRole(geminiResp.Candidates[0].Content.Parts[0].Text, g.model.Name, req, g.strict)
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
