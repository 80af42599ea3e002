package protocol

import "fmt"

// ErrorKind tags a provider failure for retry classification.
type ErrorKind string

const (
	ErrTimeout            ErrorKind = "timeout"
	ErrNetwork            ErrorKind = "network"
	ErrRateLimit          ErrorKind = "rate_limit"
	ErrServiceUnavailable ErrorKind = "service_unavailable"
	ErrAuth               ErrorKind = "auth"
	ErrConfig             ErrorKind = "config"
	ErrAPI                ErrorKind = "api_error"
)

// ConfigError is a fatal configuration problem, surfaced before any
// provider call is made. Maps to exit code 1.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// NewConfigError builds a ConfigError with Sprintf formatting.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// ProviderError is a failure at the provider boundary, tagged with a
// kind so the retry layer can classify it. Maps to exit code 2.
type ProviderError struct {
	Message  string
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a tagged provider failure.
func NewProviderError(provider string, kind ErrorKind, format string, args ...any) *ProviderError {
	return &ProviderError{
		Message:  fmt.Sprintf(format, args...),
		Provider: provider,
		Kind:     kind,
	}
}

// ParseError is malformed model output. It is treated as a
// provider-class failure for exit-code purposes but kept structurally
// distinct so callers can run JSON-recovery strategies before giving up.
type ParseError struct {
	Message   string
	RawOutput string
}

func (e *ParseError) Error() string { return e.Message }

// NewParseError builds a ParseError carrying the raw model output for
// diagnostics.
func NewParseError(raw string, format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), RawOutput: raw}
}

// QuorumError means some models responded in a round but too few to meet
// quorum. Maps to exit code 3.
type QuorumError struct {
	Message  string
	Received int
	Required int
}

func (e *QuorumError) Error() string { return e.Message }

func NewQuorumError(received, required int) *QuorumError {
	return &QuorumError{
		Message:  fmt.Sprintf("insufficient responses: got %d, need %d", received, required),
		Received: received,
		Required: required,
	}
}

// ZeroResponseError means every participant failed in a round. Kept
// distinct from QuorumError for diagnostics; maps to exit code 2.
type ZeroResponseError struct {
	Message    string
	RoundIndex int
}

func (e *ZeroResponseError) Error() string { return e.Message }

func NewZeroResponseError(roundIndex, totalModels int) *ZeroResponseError {
	return &ZeroResponseError{
		Message:    fmt.Sprintf("all models failed in round %d (0 of %d responded)", roundIndex, totalModels),
		RoundIndex: roundIndex,
	}
}
