// Package protocol defines the value objects shared by every stage of the
// consensus loop. All types are immutable once constructed: each round of
// the protocol replaces values wholesale rather than mutating them.
package protocol

import (
	"fmt"
	"math"
)

// ShareMode controls how participant feedback is shared between rounds.
type ShareMode string

const (
	ShareDigest ShareMode = "digest"
	ShareRaw    ShareMode = "raw"
)

// Role identifies which side of the protocol a request is for.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleMediator    Role = "mediator"
)

// Process exit codes surfaced at the CLI boundary.
const (
	ExitSuccess       = 0
	ExitConfigError   = 1
	ExitProviderError = 2
	ExitQuorumFailure = 3
	ExitInternalError = 4
)

// RetryConfig configures the retry policy for a model's provider calls.
type RetryConfig struct {
	MaxRetries      int     `json:"max_retries"`
	BaseDelay       float64 `json:"base_delay_seconds"`
	MaxDelay        float64 `json:"max_delay_seconds"`
	ExponentialBase float64 `json:"exponential_base"`
	Jitter          bool    `json:"jitter"`
}

// DefaultRetryConfig matches the documented defaults: up to 2 retries,
// 1s base delay doubling per attempt, capped at 30s, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		BaseDelay:       1.0,
		MaxDelay:        30.0,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// Validate checks the retry policy's numeric ranges.
func (r RetryConfig) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", r.MaxRetries)
	}
	if r.BaseDelay <= 0 {
		return fmt.Errorf("base_delay_seconds must be > 0, got %v", r.BaseDelay)
	}
	if r.MaxDelay <= 0 {
		return fmt.Errorf("max_delay_seconds must be > 0, got %v", r.MaxDelay)
	}
	if r.ExponentialBase <= 0 {
		return fmt.Errorf("exponential_base must be > 0, got %v", r.ExponentialBase)
	}
	return nil
}

// ModelConfig describes one model taking part in a run. Names are unique
// within a run and identify the model in logs, digests and results.
type ModelConfig struct {
	Name           string       `json:"name"`
	Provider       string       `json:"provider"`
	ModelID        string       `json:"model_id"`
	Temperature    float64      `json:"temperature"`
	MaxTokens      int          `json:"max_tokens"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	Weight         float64      `json:"weight"`
	Retry          *RetryConfig `json:"retry,omitempty"`
}

// Validate checks the sampling parameter ranges.
func (m ModelConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name must not be empty")
	}
	if m.Weight < 0 {
		return fmt.Errorf("model %s: weight must be >= 0, got %v", m.Name, m.Weight)
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("model %s: temperature must be in [0, 2], got %v", m.Name, m.Temperature)
	}
	if m.MaxTokens < 1 {
		return fmt.Errorf("model %s: max_tokens must be >= 1, got %d", m.Name, m.MaxTokens)
	}
	if m.TimeoutSeconds < 1 {
		return fmt.Errorf("model %s: timeout_seconds must be >= 1, got %d", m.Name, m.TimeoutSeconds)
	}
	if m.Retry != nil {
		if err := m.Retry.Validate(); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
	}
	return nil
}

// RunConfig is the validated configuration for a single consensus run.
// It is built once from config files and CLI overrides and read-only
// thereafter.
type RunConfig struct {
	Models           []ModelConfig `json:"models"`
	Mediator         ModelConfig   `json:"mediator"`
	MaxRounds        int           `json:"max_rounds"`
	ApprovalRatio    float64       `json:"approval_ratio"`
	ChangeThreshold  float64       `json:"change_threshold"`
	MaxContextTokens int           `json:"max_context_tokens,omitempty"` // 0 means unlimited
	StrictJSON       bool          `json:"strict_json"`
	Verbose          bool          `json:"verbose"`
	ShareMode        ShareMode     `json:"share_mode"`
}

// Validate enforces the run-level invariants: at least two participants
// with unique names, a mediator disjoint from the participant set, and
// all numeric parameters within range.
func (c RunConfig) Validate() error {
	if len(c.Models) < 2 {
		return fmt.Errorf("at least 2 models required, got %d", len(c.Models))
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name: %s", m.Name)
		}
		seen[m.Name] = true
	}
	if err := c.Mediator.Validate(); err != nil {
		return fmt.Errorf("mediator: %w", err)
	}
	if seen[c.Mediator.Name] {
		return fmt.Errorf("mediator %s must not also be a participant", c.Mediator.Name)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be >= 1, got %d", c.MaxRounds)
	}
	if c.ApprovalRatio < 0 || c.ApprovalRatio > 1 {
		return fmt.Errorf("approval_ratio must be in [0, 1], got %v", c.ApprovalRatio)
	}
	if c.ChangeThreshold < 0 || c.ChangeThreshold > 1 {
		return fmt.Errorf("change_threshold must be in [0, 1], got %v", c.ChangeThreshold)
	}
	if c.MaxContextTokens < 0 {
		return fmt.Errorf("max_context_tokens must be >= 1 or unset, got %d", c.MaxContextTokens)
	}
	if c.ShareMode != ShareDigest && c.ShareMode != ShareRaw {
		return fmt.Errorf("share_mode must be %q or %q, got %q", ShareDigest, ShareRaw, c.ShareMode)
	}
	return nil
}

// Quorum is the minimum approval count required for consensus:
// ceil(participants * approval_ratio).
func (c RunConfig) Quorum() int {
	return int(math.Ceil(float64(len(c.Models)) * c.ApprovalRatio))
}

// PromptRequest is the payload for one outbound model call.
type PromptRequest struct {
	UserPrompt      string  `json:"user_prompt"`
	SystemPrompt    string  `json:"system_prompt"`
	RoundIndex      int     `json:"round_index"`
	Role            Role    `json:"role"`
	InputDigest     *Digest `json:"input_digest,omitempty"`
	CandidateAnswer string  `json:"candidate_answer,omitempty"`
}

// Response is one model's output for a round. Approve and Critical are
// nil in round 1 and set from round 2 on.
type Response struct {
	ModelName  string   `json:"model_name"`
	Answer     string   `json:"answer"`
	Approve    *bool    `json:"approve,omitempty"`
	Critical   *bool    `json:"critical,omitempty"`
	Objections []string `json:"objections,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Edits      []string `json:"edits,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Raw        string   `json:"-"`
}

// Approved reports whether the response explicitly approved the candidate.
func (r Response) Approved() bool {
	return r.Approve != nil && *r.Approve
}

// IsCritical reports whether the response flagged blocking objections.
func (r Response) IsCritical() bool {
	return r.Critical != nil && *r.Critical
}

// Digest is the deduplicated, frequency-ranked summary of agreement and
// disagreement across a round's responses.
type Digest struct {
	CommonPoints   []string `json:"common_points"`
	Objections     []string `json:"objections"`
	Missing        []string `json:"missing"`
	SuggestedEdits []string `json:"suggested_edits"`
}

// MediatorState is the mediator's view after a round: the candidate
// answer it synthesized plus the round's approval tally. Replaced
// wholesale by the runner every round.
type MediatorState struct {
	CandidateAnswer     string   `json:"candidate_answer"`
	Rationale           string   `json:"rationale"`
	ApprovalCount       int      `json:"approval_count"`
	CriticalObjections  []string `json:"critical_objections,omitempty"`
	DisagreementSummary string   `json:"disagreement_summary,omitempty"`
}

// ConsensusResult is the terminal output of a run.
type ConsensusResult struct {
	Output           string         `json:"output"`
	ExitCode         int            `json:"exit_code"`
	ConsensusReached bool           `json:"consensus_reached"`
	RoundsCompleted  int            `json:"rounds_completed"`
	MediatorState    *MediatorState `json:"mediator_state,omitempty"`
	Responses        []Response     `json:"responses"`
	Digest           *Digest        `json:"digest,omitempty"`
	Metadata         map[string]any `json:"metadata"`
}

// Bool and Float64 are pointer helpers for the optional response fields.
func Bool(v bool) *bool          { return &v }
func Float64(v float64) *float64 { return &v }
