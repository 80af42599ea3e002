// Package provider implements the adapter boundary between the
// consensus core and the vendor APIs. Each adapter accepts a
// PromptRequest, performs the vendor call, and returns a parsed
// Response; failures are tagged ProviderErrors so the retry layer can
// classify them, or ParseErrors when the model's output is malformed.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aicx/aicx/internal/prompts"
	"github.com/aicx/aicx/internal/protocol"
)

// Adapter is the capability surface the core depends on.
type Adapter interface {
	// Name identifies the adapter in logs and error messages.
	Name() string

	// SupportsJSON reports whether the vendor offers a native JSON
	// output mode.
	SupportsJSON() bool

	// CreateChatCompletion sends one request and returns the parsed
	// response. The answer field is always a string; structured JSON
	// payloads are serialized before returning.
	CreateChatCompletion(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error)
}

// AdapterFunc lets plain functions implement Adapter. Useful in tests.
type AdapterFunc struct {
	AdapterName string
	JSON        bool
	Fn          func(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error)
}

func (a AdapterFunc) Name() string       { return a.AdapterName }
func (a AdapterFunc) SupportsJSON() bool { return a.JSON }

func (a AdapterFunc) CreateChatCompletion(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error) {
	return a.Fn(ctx, req)
}

// Registry maps model names to their adapters.
// Thread-safe for concurrent access during collection.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register associates a model name with an adapter.
func (r *Registry) Register(model string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[model] = a
}

// Get retrieves the adapter for a model.
func (r *Registry) Get(model string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[model]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", model)
	}
	return a, nil
}

// Models returns all registered model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.adapters))
	for m := range r.adapters {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// parseByRole routes a raw model document to the parser for the
// request's phase. Mediator output is passed through for the runner to
// parse, since synthesis and update documents have different shapes.
func parseByRole(raw, modelName string, req protocol.PromptRequest, strict bool) (protocol.Response, error) {
	if req.Role == protocol.RoleMediator {
		return protocol.Response{ModelName: modelName, Answer: raw, Raw: raw}, nil
	}
	if req.RoundIndex <= 1 {
		return prompts.ParseParticipantResponse(raw, modelName, strict)
	}
	return prompts.ParseCritiqueResponse(raw, modelName, strict)
}
