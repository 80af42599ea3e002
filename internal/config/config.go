// Package config assembles a validated RunConfig from project config,
// user preferences and CLI overrides. Precedence: CLI flags beat user
// config, user config beats project config, project config beats the
// built-in defaults.
package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/aicx/aicx/internal/protocol"
)

// DefaultConfigPath is the project-level config file consulted when no
// --config flag is given.
const DefaultConfigPath = "config/config.toml"

// Tuning defaults applied when neither config file sets them.
const (
	defaultMaxRounds       = 3
	defaultApprovalRatio   = 0.67
	defaultChangeThreshold = 0.10
	defaultTemperature     = 0.2
	defaultMaxTokens       = 2048
	defaultTimeoutSeconds  = 60
	defaultWeight          = 1.0
)

// Overrides carries the CLI flag values. Nil pointer fields mean the
// flag was not given on the command line.
type Overrides struct {
	Models           string
	Mediator         string
	Rounds           *int
	ApprovalRatio    *float64
	ChangeThreshold  *float64
	MaxContextTokens *int
	ShareMode        string
	StrictJSON       *bool
	Verbose          *bool
}

// Load builds and validates the run configuration. configPath may be
// empty, in which case the default project path is tried; a missing
// config file is not an error, a malformed one is.
func Load(configPath string, ov Overrides) (protocol.RunConfig, error) {
	prefs := LoadUserPreferences()
	return load(configPath, ov, prefs)
}

func load(configPath string, ov Overrides, prefs UserPreferences) (protocol.RunConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("consensus.max_rounds", defaultMaxRounds)
	v.SetDefault("consensus.approval_ratio", defaultApprovalRatio)
	v.SetDefault("consensus.change_threshold", defaultChangeThreshold)
	v.SetDefault("consensus.share_mode", string(protocol.ShareDigest))

	path := configPath
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return protocol.RunConfig{}, protocol.NewConfigError("reading config %s: %v", path, err)
		}
	} else if explicit {
		return protocol.RunConfig{}, protocol.NewConfigError("config file %s not found", path)
	}

	cfg := protocol.RunConfig{
		MaxRounds:        v.GetInt("consensus.max_rounds"),
		ApprovalRatio:    v.GetFloat64("consensus.approval_ratio"),
		ChangeThreshold:  v.GetFloat64("consensus.change_threshold"),
		MaxContextTokens: v.GetInt("consensus.max_context_tokens"),
		StrictJSON:       v.GetBool("consensus.strict_json"),
		ShareMode:        protocol.ShareMode(v.GetString("consensus.share_mode")),
	}

	models, err := modelsFromFile(v)
	if err != nil {
		return protocol.RunConfig{}, err
	}
	mediatorName := v.GetString("mediator.model")

	// User preferences fill anything the project config left unset.
	if len(models) == 0 && len(prefs.DefaultModels) > 0 {
		models, err = buildModels(prefs.DefaultModels, prefs)
		if err != nil {
			return protocol.RunConfig{}, err
		}
	}
	if mediatorName == "" {
		mediatorName = prefs.DefaultMediator
	}

	// CLI overrides win over everything.
	if ov.Models != "" {
		models, err = buildModels(splitModelList(ov.Models), prefs)
		if err != nil {
			return protocol.RunConfig{}, err
		}
	}
	if ov.Mediator != "" {
		mediatorName = ov.Mediator
	}
	if ov.Rounds != nil {
		cfg.MaxRounds = *ov.Rounds
	}
	if ov.ApprovalRatio != nil {
		cfg.ApprovalRatio = *ov.ApprovalRatio
	}
	if ov.ChangeThreshold != nil {
		cfg.ChangeThreshold = *ov.ChangeThreshold
	}
	if ov.MaxContextTokens != nil {
		cfg.MaxContextTokens = *ov.MaxContextTokens
	}
	if ov.ShareMode != "" {
		cfg.ShareMode = protocol.ShareMode(ov.ShareMode)
	}
	if ov.StrictJSON != nil {
		cfg.StrictJSON = *ov.StrictJSON
	}
	if ov.Verbose != nil {
		cfg.Verbose = *ov.Verbose
	}

	if len(models) == 0 {
		return protocol.RunConfig{}, protocol.NewConfigError(
			"no models configured: pass --models, run setup, or add [[models]] to %s", path)
	}
	cfg.Models = models

	if mediatorName == "" {
		return protocol.RunConfig{}, protocol.NewConfigError(
			"no mediator configured: pass --mediator or set one in the config")
	}
	mediator, err := buildMediator(mediatorName, models, prefs)
	if err != nil {
		return protocol.RunConfig{}, err
	}
	cfg.Mediator = mediator

	if err := cfg.Validate(); err != nil {
		return protocol.RunConfig{}, protocol.NewConfigError("%v", err)
	}
	return cfg, nil
}

// modelsFromFile decodes the [[models]] tables of the project config.
func modelsFromFile(v *viper.Viper) ([]protocol.ModelConfig, error) {
	var raw []struct {
		Name           string  `mapstructure:"name"`
		Provider       string  `mapstructure:"provider"`
		ModelID        string  `mapstructure:"model_id"`
		Temperature    float64 `mapstructure:"temperature"`
		MaxTokens      int     `mapstructure:"max_tokens"`
		TimeoutSeconds int     `mapstructure:"timeout_seconds"`
		Weight         float64 `mapstructure:"weight"`
	}
	if err := v.UnmarshalKey("models", &raw); err != nil {
		return nil, protocol.NewConfigError("parsing models: %v", err)
	}

	models := make([]protocol.ModelConfig, 0, len(raw))
	for _, m := range raw {
		mc := protocol.ModelConfig{
			Name:           m.Name,
			Provider:       m.Provider,
			ModelID:        m.ModelID,
			Temperature:    m.Temperature,
			MaxTokens:      m.MaxTokens,
			TimeoutSeconds: m.TimeoutSeconds,
			Weight:         m.Weight,
		}
		if mc.ModelID == "" {
			mc.ModelID = mc.Name
		}
		if mc.Provider == "" {
			mc.Provider = InferProvider(mc.ModelID)
		}
		applyModelDefaults(&mc)
		models = append(models, mc)
	}
	return models, nil
}

// buildModels turns a list of names or shorthands into model configs.
func buildModels(names []string, prefs UserPreferences) ([]protocol.ModelConfig, error) {
	models := make([]protocol.ModelConfig, 0, len(names))
	for _, name := range names {
		mc, err := buildModel(name, prefs)
		if err != nil {
			return nil, err
		}
		models = append(models, mc)
	}
	return models, nil
}

func buildModel(name string, prefs UserPreferences) (protocol.ModelConfig, error) {
	provider, modelID := ExpandShorthand(name, prefs)
	if provider == "" {
		return protocol.ModelConfig{}, protocol.NewConfigError(
			"cannot infer provider for model %q: use a known shorthand (gpt, claude, gemini) or a recognized model ID", name)
	}
	mc := protocol.ModelConfig{
		Name:     name,
		Provider: provider,
		ModelID:  modelID,
	}
	applyModelDefaults(&mc)
	return mc, nil
}

// buildMediator resolves the mediator by name. The mediator is always
// a separate identity from the participants even when it shares a
// model ID, so a config naming a participant as mediator is rejected
// downstream by validation.
func buildMediator(name string, models []protocol.ModelConfig, prefs UserPreferences) (protocol.ModelConfig, error) {
	for _, m := range models {
		if m.Name == name {
			return protocol.ModelConfig{}, protocol.NewConfigError(
				"mediator %q is already a participant: pick a distinct model", name)
		}
	}
	return buildModel(name, prefs)
}

func applyModelDefaults(mc *protocol.ModelConfig) {
	if mc.Temperature == 0 {
		mc.Temperature = defaultTemperature
	}
	if mc.MaxTokens == 0 {
		mc.MaxTokens = defaultMaxTokens
	}
	if mc.TimeoutSeconds == 0 {
		mc.TimeoutSeconds = defaultTimeoutSeconds
	}
	if mc.Weight == 0 {
		mc.Weight = defaultWeight
	}
}
