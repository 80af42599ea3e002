package provider

import (
	"context"
	"sort"
	"strings"

	"github.com/aicx/aicx/internal/protocol"
	"github.com/aicx/aicx/internal/retry"
)

type factoryFunc func(model protocol.ModelConfig, strictJSON bool) (Adapter, error)

var factories = map[string]factoryFunc{
	"openai": func(m protocol.ModelConfig, strict bool) (Adapter, error) {
		return NewOpenAI(m, strict)
	},
	"anthropic": func(m protocol.ModelConfig, strict bool) (Adapter, error) {
		return NewAnthropic(m, strict)
	},
	"gemini": func(m protocol.ModelConfig, strict bool) (Adapter, error) {
		return NewGemini(m, strict)
	},
	"mock": func(m protocol.ModelConfig, strict bool) (Adapter, error) {
		return NewMock(m.Name), nil
	},
}

// Available returns the registered provider names, sorted.
func Available() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates an adapter for a model's provider, wrapped with the retry
// decorator when the model carries a retry policy.
func New(model protocol.ModelConfig, strictJSON bool) (Adapter, error) {
	factory, ok := factories[strings.ToLower(model.Provider)]
	if !ok {
		return nil, protocol.NewProviderError(model.Provider, protocol.ErrConfig,
			"unknown provider: %s (available: %s)", model.Provider, strings.Join(Available(), ", "))
	}

	adapter, err := factory(model, strictJSON)
	if err != nil {
		return nil, err
	}

	if model.Retry != nil {
		adapter = WrapWithRetry(adapter, *model.Retry)
	}
	return adapter, nil
}

// NewRegistryFor builds a registry covering every participant and the
// mediator.
func NewRegistryFor(cfg protocol.RunConfig) (*Registry, error) {
	registry := NewRegistry()
	for _, m := range cfg.Models {
		a, err := New(m, cfg.StrictJSON)
		if err != nil {
			return nil, err
		}
		registry.Register(m.Name, a)
	}
	mediator, err := New(cfg.Mediator, cfg.StrictJSON)
	if err != nil {
		return nil, err
	}
	registry.Register(cfg.Mediator.Name, mediator)
	return registry, nil
}

// retryable decorates an adapter with the bounded-backoff executor. The
// wrapped adapter needs no awareness of the retry policy.
type retryable struct {
	inner Adapter
	cfg   protocol.RetryConfig
}

// WrapWithRetry wraps an adapter so retryable provider failures are
// retried with exponential backoff before surfacing.
func WrapWithRetry(inner Adapter, cfg protocol.RetryConfig) Adapter {
	return &retryable{inner: inner, cfg: cfg}
}

func (r *retryable) Name() string       { return r.inner.Name() }
func (r *retryable) SupportsJSON() bool { return r.inner.SupportsJSON() }

func (r *retryable) CreateChatCompletion(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error) {
	return retry.ExecuteWithRetry(ctx, func() (protocol.Response, error) {
		return r.inner.CreateChatCompletion(ctx, req)
	}, r.cfg, r.inner.Name())
}
