package provider

import (
	"context"
	"sync"

	"github.com/aicx/aicx/internal/protocol"
)

// Mock is a configurable test adapter: canned response sequences, error
// injection on a chosen call, or a response-generating callback.
type Mock struct {
	mu          sync.Mutex
	name        string
	json        bool
	responses   []protocol.Response
	callIndex   int
	errOnCall   int // -1 when disabled
	errToReturn error
	responseFn  func(req protocol.PromptRequest) (protocol.Response, error)
}

// NewMock creates a mock adapter with optional canned responses, which
// are cycled through on successive calls.
func NewMock(name string, responses ...protocol.Response) *Mock {
	return &Mock{name: name, json: true, responses: responses, errOnCall: -1}
}

func (m *Mock) Name() string       { return m.name }
func (m *Mock) SupportsJSON() bool { return m.json }

// CreateChatCompletion returns the next configured response, the
// injected error, or the callback's result.
func (m *Mock) CreateChatCompletion(ctx context.Context, req protocol.PromptRequest) (protocol.Response, error) {
	m.mu.Lock()
	call := m.callIndex
	m.callIndex++
	errOnCall := m.errOnCall
	errToReturn := m.errToReturn
	fn := m.responseFn
	m.mu.Unlock()

	if errOnCall >= 0 && call == errOnCall {
		if errToReturn != nil {
			return protocol.Response{}, errToReturn
		}
		return protocol.Response{}, protocol.NewProviderError(m.name, protocol.ErrNetwork, "mock provider error")
	}

	if fn != nil {
		return fn(req)
	}

	if len(m.responses) == 0 {
		return protocol.Response{
			ModelName: m.name,
			Answer:    "Mock response",
			Approve:   protocol.Bool(true),
			Critical:  protocol.Bool(false),
		}, nil
	}

	return m.responses[call%len(m.responses)], nil
}

// FailOn makes the adapter return err on the given zero-based call
// index. A nil err injects a generic network-kind ProviderError.
func (m *Mock) FailOn(call int, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errOnCall = call
	m.errToReturn = err
	return m
}

// RespondWith installs a callback that generates responses per request.
func (m *Mock) RespondWith(fn func(req protocol.PromptRequest) (protocol.Response, error)) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFn = fn
	return m
}

// Calls reports how many times the adapter has been invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIndex
}

// Reset clears call count, error injection and callback.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callIndex = 0
	m.errOnCall = -1
	m.errToReturn = nil
	m.responseFn = nil
}
