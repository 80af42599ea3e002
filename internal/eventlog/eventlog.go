// Package eventlog is the audit-event sink for the consensus core. Events
// are named records with a payload map, written as JSON lines to stderr
// when verbose mode is on. The default sink discards everything, so core
// code can emit events unconditionally.
package eventlog

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

// Configure switches the sink on or off. With verbose true, events go to
// stderr as JSONL; otherwise they are discarded. Called once at startup.
func Configure(verbose bool) {
	if verbose {
		logger.Store(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
		return
	}
	logger.Store(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

// SetWriter points the sink at an arbitrary writer. Used by tests.
func SetWriter(w io.Writer) {
	logger.Store(slog.New(slog.NewJSONHandler(w, nil)))
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*)["']?[a-zA-Z0-9_-]+["']?`),
	regexp.MustCompile(`(?i)((?:OPENAI|ANTHROPIC|GEMINI)_API_KEY\s*[=:]\s*)["']?[a-zA-Z0-9_-]+["']?`),
	regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9_-]+`),
	regexp.MustCompile(`(?i)(token\s*[=:]\s*)["']?[a-zA-Z0-9_.-]+["']?`),
}

var sensitiveKey = regexp.MustCompile(`(?i)^(api[_-]?key|token|secret|password|credential)$`)

func redactString(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, "${1}[REDACTED]")
	}
	return s
}

func redact(v any) any {
	switch x := v.(type) {
	case string:
		return redactString(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if sensitiveKey.MatchString(k) {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = redact(val)
		}
		return out
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = redactString(s)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = redact(item)
		}
		return out
	default:
		return v
	}
}

// Event emits a named event with an optional payload map. Secrets in the
// payload are redacted before serialization.
func Event(name string, payload map[string]any) {
	attrs := []any{}
	if payload != nil {
		attrs = append(attrs, slog.Any("payload", redact(payload)))
	}
	logger.Load().Info(name, attrs...)
}

// ModelEvent emits an event scoped to a model and round.
func ModelEvent(name, model string, round int, payload map[string]any) {
	attrs := []any{slog.String("model", model), slog.Int("round", round)}
	if payload != nil {
		attrs = append(attrs, slog.Any("payload", redact(payload)))
	}
	logger.Load().Info(name, attrs...)
}

// Error emits an error event with the error's type name and message.
func Error(errorType, message string, round int, model string) {
	attrs := []any{
		slog.Any("payload", map[string]any{
			"error_type": errorType,
			"message":    redactString(message),
		}),
	}
	if round > 0 {
		attrs = append(attrs, slog.Int("round", round))
	}
	if model != "" {
		attrs = append(attrs, slog.String("model", model))
	}
	logger.Load().Error("error", attrs...)
}
