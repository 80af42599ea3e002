package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validModel(name string) ModelConfig {
	return ModelConfig{
		Name:           name,
		Provider:       "openai",
		ModelID:        name + "-id",
		Temperature:    0.2,
		MaxTokens:      2048,
		TimeoutSeconds: 60,
		Weight:         1.0,
	}
}

func validRunConfig() RunConfig {
	return RunConfig{
		Models:          []ModelConfig{validModel("a"), validModel("b"), validModel("c")},
		Mediator:        validModel("judge"),
		MaxRounds:       3,
		ApprovalRatio:   0.67,
		ChangeThreshold: 0.10,
		ShareMode:       ShareDigest,
	}
}

func TestModelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ModelConfig)
		wantErr string
	}{
		{"valid", func(m *ModelConfig) {}, ""},
		{"empty name", func(m *ModelConfig) { m.Name = "" }, "name"},
		{"negative weight", func(m *ModelConfig) { m.Weight = -1 }, "weight"},
		{"temperature too high", func(m *ModelConfig) { m.Temperature = 2.5 }, "temperature"},
		{"temperature negative", func(m *ModelConfig) { m.Temperature = -0.1 }, "temperature"},
		{"zero max tokens", func(m *ModelConfig) { m.MaxTokens = 0 }, "max_tokens"},
		{"zero timeout", func(m *ModelConfig) { m.TimeoutSeconds = 0 }, "timeout"},
		{
			"bad retry",
			func(m *ModelConfig) { m.Retry = &RetryConfig{MaxRetries: -1, BaseDelay: 1, MaxDelay: 1, ExponentialBase: 2} },
			"max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModel("m")
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr string
	}{
		{"valid", func(c *RunConfig) {}, ""},
		{"one model", func(c *RunConfig) { c.Models = c.Models[:1] }, "at least 2"},
		{
			"duplicate names",
			func(c *RunConfig) { c.Models[1].Name = c.Models[0].Name },
			"duplicate",
		},
		{
			"mediator is a participant",
			func(c *RunConfig) { c.Mediator = c.Models[0] },
			"mediator",
		},
		{"zero rounds", func(c *RunConfig) { c.MaxRounds = 0 }, "max_rounds"},
		{"ratio above one", func(c *RunConfig) { c.ApprovalRatio = 1.2 }, "approval_ratio"},
		{"negative threshold", func(c *RunConfig) { c.ChangeThreshold = -0.1 }, "change_threshold"},
		{"bad share mode", func(c *RunConfig) { c.ShareMode = "broadcast" }, "share_mode"},
		{"negative context tokens", func(c *RunConfig) { c.MaxContextTokens = -5 }, "max_context_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validRunConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestQuorum(t *testing.T) {
	tests := []struct {
		models int
		ratio  float64
		want   int
	}{
		{3, 0.67, 3}, // ceil(2.01)
		{3, 0.5, 2},  // ceil(1.5)
		{2, 0.5, 1},
		{2, 1.0, 2},
		{4, 0.67, 3}, // ceil(2.68)
		{5, 0.0, 0},
	}

	for _, tt := range tests {
		c := RunConfig{ApprovalRatio: tt.ratio}
		for i := 0; i < tt.models; i++ {
			c.Models = append(c.Models, ModelConfig{})
		}
		assert.Equal(t, tt.want, c.Quorum(), "models=%d ratio=%v", tt.models, tt.ratio)
	}
}

func TestResponseHelpers(t *testing.T) {
	var r Response
	assert.False(t, r.Approved(), "nil approve means round 1")
	assert.False(t, r.IsCritical())

	r.Approve = Bool(true)
	r.Critical = Bool(false)
	assert.True(t, r.Approved())
	assert.False(t, r.IsCritical())
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	perr := &ProviderError{Message: "call failed", Provider: "openai", Kind: ErrNetwork, Err: inner}

	assert.ErrorIs(t, perr, inner)

	var target *ProviderError
	require.ErrorAs(t, error(perr), &target)
	assert.Equal(t, ErrNetwork, target.Kind)
}

func TestErrorConstructors(t *testing.T) {
	qerr := NewQuorumError(1, 2)
	assert.Equal(t, 1, qerr.Received)
	assert.Equal(t, 2, qerr.Required)
	assert.Contains(t, qerr.Error(), "got 1")

	zerr := NewZeroResponseError(2, 3)
	assert.Equal(t, 2, zerr.RoundIndex)
	assert.Contains(t, zerr.Error(), "round 2")

	parseErr := NewParseError("{bad", "invalid json")
	assert.Equal(t, "{bad", parseErr.RawOutput)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 1.0, cfg.BaseDelay)
	assert.Equal(t, 30.0, cfg.MaxDelay)
	assert.True(t, cfg.Jitter)
	assert.NoError(t, cfg.Validate())
}
