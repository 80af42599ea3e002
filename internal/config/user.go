package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Built-in model shorthands and the provider each maps to.
var providerShorthands = map[string]string{
	"gpt":    "openai",
	"claude": "anthropic",
	"gemini": "gemini",
}

// Default model ID per provider, used when a shorthand is given.
var defaultProviderModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4-20250514",
	"gemini":    "gemini-2.0-flash-exp",
}

var providerKeyVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// UserPreferences holds per-user defaults persisted under the user
// config directory.
type UserPreferences struct {
	DefaultModels   []string
	DefaultMediator string
	Shorthands      map[string]string
}

// UserConfigDir resolves the per-user config directory, honoring
// XDG_CONFIG_HOME.
func UserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aicx")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "aicx")
	}
	return filepath.Join(home, ".config", "aicx")
}

// UserConfigPath is the location of the user preferences file.
func UserConfigPath() string {
	return filepath.Join(UserConfigDir(), "config.toml")
}

// LoadUserPreferences reads the user preferences file. A missing or
// unreadable file yields empty preferences rather than an error: user
// config is always optional.
func LoadUserPreferences() UserPreferences {
	return loadUserPreferencesFrom(UserConfigPath())
}

func loadUserPreferencesFrom(path string) UserPreferences {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return UserPreferences{}
	}

	prefs := UserPreferences{
		DefaultMediator: v.GetString("defaults.mediator"),
		Shorthands:      v.GetStringMapString("shorthand"),
	}

	// models may be a TOML array or a comma-separated string.
	models := v.GetStringSlice("defaults.models")
	if len(models) == 1 && strings.Contains(models[0], ",") {
		models = splitModelList(models[0])
	}
	prefs.DefaultModels = models
	return prefs
}

// SaveUserPreferences writes the preferences file, creating the config
// directory if needed. The layout is kept deterministic so diffs of the
// file stay readable.
func SaveUserPreferences(prefs UserPreferences) error {
	return saveUserPreferencesTo(UserConfigPath(), prefs)
}

func saveUserPreferencesTo(path string, prefs UserPreferences) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var b strings.Builder
	b.WriteString("# AI Consensus CLI user configuration\n\n")
	b.WriteString("[defaults]\n")
	if len(prefs.DefaultModels) > 0 {
		quoted := make([]string, len(prefs.DefaultModels))
		for i, m := range prefs.DefaultModels {
			quoted[i] = fmt.Sprintf("%q", m)
		}
		b.WriteString("models = [" + strings.Join(quoted, ", ") + "]\n")
	}
	if prefs.DefaultMediator != "" {
		fmt.Fprintf(&b, "mediator = %q\n", prefs.DefaultMediator)
	}
	if len(prefs.Shorthands) > 0 {
		b.WriteString("\n[shorthand]\n")
		keys := make([]string, 0, len(prefs.Shorthands))
		for k := range prefs.Shorthands {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s = %q\n", k, prefs.Shorthands[k])
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing user config: %w", err)
	}
	return nil
}

// ExpandShorthand resolves a model name or shorthand to a provider and
// model ID. User-defined shorthands take precedence over the built-in
// ones; a name that is not a shorthand comes back with the provider
// inferred from its prefix.
func ExpandShorthand(name string, prefs UserPreferences) (provider, modelID string) {
	if id, ok := prefs.Shorthands[name]; ok {
		if p, ok := providerShorthands[name]; ok {
			return p, id
		}
		return InferProvider(id), id
	}
	if p, ok := providerShorthands[name]; ok {
		return p, defaultProviderModels[p]
	}
	return InferProvider(name), name
}

// InferProvider guesses the provider from a model ID prefix. Returns
// "" when the prefix is unrecognized.
func InferProvider(modelID string) string {
	id := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(id, "gpt") || strings.HasPrefix(id, "o1"):
		return "openai"
	case strings.HasPrefix(id, "claude"):
		return "anthropic"
	case strings.HasPrefix(id, "gemini"):
		return "gemini"
	case strings.HasPrefix(id, "mock"):
		return "mock"
	}
	return ""
}

// CheckAPIKey reports whether the provider's API key variable is set.
func CheckAPIKey(provider string) bool {
	envVar, ok := providerKeyVars[strings.ToLower(provider)]
	if !ok {
		return false
	}
	return os.Getenv(envVar) != ""
}

// APIKeyStatus reports key availability for every known provider.
func APIKeyStatus() map[string]bool {
	status := make(map[string]bool, len(providerKeyVars))
	for p := range providerKeyVars {
		status[p] = CheckAPIKey(p)
	}
	return status
}

func splitModelList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
