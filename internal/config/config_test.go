package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicx/aicx/internal/protocol"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func isolateUserConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestExpandShorthand(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		prefs        UserPreferences
		wantProvider string
		wantModelID  string
	}{
		{"builtin gpt", "gpt", UserPreferences{}, "openai", "gpt-4o"},
		{"builtin claude", "claude", UserPreferences{}, "anthropic", "claude-sonnet-4-20250514"},
		{"builtin gemini", "gemini", UserPreferences{}, "gemini", "gemini-2.0-flash-exp"},
		{"full model id", "gpt-4o-mini", UserPreferences{}, "openai", "gpt-4o-mini"},
		{"claude model id", "claude-opus-4", UserPreferences{}, "anthropic", "claude-opus-4"},
		{"unknown", "llama-70b", UserPreferences{}, "", "llama-70b"},
		{
			"user shorthand overrides builtin",
			"gpt",
			UserPreferences{Shorthands: map[string]string{"gpt": "gpt-4-turbo"}},
			"openai", "gpt-4-turbo",
		},
		{
			"user shorthand with inferred provider",
			"fast",
			UserPreferences{Shorthands: map[string]string{"fast": "gemini-1.5-flash"}},
			"gemini", "gemini-1.5-flash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, modelID := ExpandShorthand(tt.input, tt.prefs)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModelID, modelID)
		})
	}
}

func TestLoad_FlagsOnly(t *testing.T) {
	isolateUserConfig(t)

	cfg, err := Load("", Overrides{Models: "gpt, claude", Mediator: "gemini"})
	require.NoError(t, err)

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "gpt", cfg.Models[0].Name)
	assert.Equal(t, "openai", cfg.Models[0].Provider)
	assert.Equal(t, "gpt-4o", cfg.Models[0].ModelID)
	assert.Equal(t, "anthropic", cfg.Models[1].Provider)
	assert.Equal(t, "gemini", cfg.Mediator.Name)

	// Built-in defaults.
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.InDelta(t, 0.67, cfg.ApprovalRatio, 1e-9)
	assert.InDelta(t, 0.10, cfg.ChangeThreshold, 1e-9)
	assert.Equal(t, protocol.ShareDigest, cfg.ShareMode)
	assert.Equal(t, 2048, cfg.Models[0].MaxTokens)
	assert.Equal(t, 60, cfg.Models[0].TimeoutSeconds)
}

func TestLoad_ProjectConfig(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[consensus]
max_rounds = 5
approval_ratio = 0.8
share_mode = "raw"

[mediator]
model = "gemini"

[[models]]
name = "gpt-4o"
provider = "openai"
temperature = 0.4

[[models]]
name = "claude-sonnet-4-20250514"
`)

	cfg, err := Load(path, Overrides{})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxRounds)
	assert.InDelta(t, 0.8, cfg.ApprovalRatio, 1e-9)
	assert.Equal(t, protocol.ShareRaw, cfg.ShareMode)
	require.Len(t, cfg.Models, 2)
	assert.InDelta(t, 0.4, cfg.Models[0].Temperature, 1e-9)
	assert.Equal(t, "gpt-4o", cfg.Models[0].ModelID, "model_id defaults to name")
	assert.Equal(t, "anthropic", cfg.Models[1].Provider, "provider inferred from model id")
}

func TestLoad_FlagsBeatProjectConfig(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[consensus]
max_rounds = 5

[mediator]
model = "gemini"

[[models]]
name = "gpt-4o"

[[models]]
name = "claude-sonnet-4-20250514"
`)

	rounds := 2
	ratio := 0.5
	cfg, err := Load(path, Overrides{Rounds: &rounds, ApprovalRatio: &ratio, Mediator: "claude"})
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxRounds)
	assert.InDelta(t, 0.5, cfg.ApprovalRatio, 1e-9)
	assert.Equal(t, "claude", cfg.Mediator.Name)
}

func TestLoad_UserPreferencesFillGaps(t *testing.T) {
	userDir := isolateUserConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(userDir, "aicx"), 0o755))
	writeFile(t, filepath.Join(userDir, "aicx"), "config.toml", `
[defaults]
models = ["gpt", "claude"]
mediator = "gemini"
`)

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "gpt", cfg.Models[0].Name)
	assert.Equal(t, "gemini", cfg.Mediator.Name)
}

func TestLoad_NoModels(t *testing.T) {
	isolateUserConfig(t)

	_, err := Load("", Overrides{})
	var cerr *protocol.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoad_MediatorMustBeDistinct(t *testing.T) {
	isolateUserConfig(t)

	_, err := Load("", Overrides{Models: "gpt,claude", Mediator: "gpt"})
	var cerr *protocol.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "participant")
}

func TestLoad_UnknownProvider(t *testing.T) {
	isolateUserConfig(t)

	_, err := Load("", Overrides{Models: "gpt,llama-70b", Mediator: "claude"})
	var cerr *protocol.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoad_MissingExplicitConfig(t *testing.T) {
	isolateUserConfig(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), Overrides{Models: "gpt,claude", Mediator: "gemini"})
	var cerr *protocol.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	isolateUserConfig(t)

	ratio := 1.5
	_, err := Load("", Overrides{Models: "gpt,claude", Mediator: "gemini", ApprovalRatio: &ratio})
	var cerr *protocol.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestUserPreferencesRoundTrip(t *testing.T) {
	isolateUserConfig(t)

	prefs := UserPreferences{
		DefaultModels:   []string{"gpt", "claude"},
		DefaultMediator: "gemini",
		Shorthands:      map[string]string{"fast": "gemini-1.5-flash"},
	}
	require.NoError(t, SaveUserPreferences(prefs))

	loaded := LoadUserPreferences()
	assert.Equal(t, prefs.DefaultModels, loaded.DefaultModels)
	assert.Equal(t, prefs.DefaultMediator, loaded.DefaultMediator)
	assert.Equal(t, prefs.Shorthands, loaded.Shorthands)
}

func TestLoadUserPreferences_MissingFileIsEmpty(t *testing.T) {
	isolateUserConfig(t)

	prefs := LoadUserPreferences()
	assert.Empty(t, prefs.DefaultModels)
	assert.Empty(t, prefs.DefaultMediator)
}

func TestCheckAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")

	assert.True(t, CheckAPIKey("openai"))
	assert.False(t, CheckAPIKey("anthropic"))
	assert.False(t, CheckAPIKey("unknown"))

	status := APIKeyStatus()
	assert.True(t, status["openai"])
	assert.False(t, status["anthropic"])
}
