package eventlog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	t.Cleanup(func() { Configure(false) })
	return &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestEvent(t *testing.T) {
	buf := capture(t)

	Event("run_started", map[string]any{"participants": 3})

	rec := lastRecord(t, buf)
	assert.Equal(t, "run_started", rec["msg"])
	payload := rec["payload"].(map[string]any)
	assert.Equal(t, float64(3), payload["participants"])
}

func TestModelEvent(t *testing.T) {
	buf := capture(t)

	ModelEvent("retry_attempt", "gpt-4o", 2, map[string]any{"attempt": 1})

	rec := lastRecord(t, buf)
	assert.Equal(t, "retry_attempt", rec["msg"])
	assert.Equal(t, "gpt-4o", rec["model"])
	assert.Equal(t, float64(2), rec["round"])
}

func TestError(t *testing.T) {
	buf := capture(t)

	Error("ProviderError", "call failed", 1, "claude")

	rec := lastRecord(t, buf)
	assert.Equal(t, "error", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	payload := rec["payload"].(map[string]any)
	assert.Equal(t, "ProviderError", payload["error_type"])
}

func TestRedaction(t *testing.T) {
	buf := capture(t)

	Event("config_loaded", map[string]any{
		"api_key": "sk-abc123",
		"note":    "using OPENAI_API_KEY=sk-verysecret for auth",
		"models":  []string{"gpt-4o"},
		"nested":  map[string]any{"token": "tok-999", "round": 1},
	})

	out := buf.String()
	assert.NotContains(t, out, "sk-abc123")
	assert.NotContains(t, out, "sk-verysecret")
	assert.NotContains(t, out, "tok-999")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "gpt-4o")
}

func TestDefaultSinkDiscards(t *testing.T) {
	Configure(false)
	// Must not panic or write anywhere.
	Event("round_completed", map[string]any{"round": 1})
	Error("QuorumError", "too few", 1, "")
}
