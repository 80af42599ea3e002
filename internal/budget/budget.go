// Package budget enforces the token ceiling across consensus rounds.
// Budgets are immutable: tracking usage produces a new value.
package budget

import "fmt"

// ContextBudget tracks token usage against a cap. RoundUsage is
// index-aligned to round number (zero-based).
type ContextBudget struct {
	MaxTokens  int   `json:"max_tokens"`
	UsedTokens int   `json:"used_tokens"`
	RoundUsage []int `json:"round_usage"`
}

// New creates an empty budget with the given cap.
func New(maxTokens int) (ContextBudget, error) {
	if maxTokens < 1 {
		return ContextBudget{}, fmt.Errorf("max_tokens must be >= 1, got %d", maxTokens)
	}
	return ContextBudget{MaxTokens: maxTokens}, nil
}

// TrackUsage returns a new budget with tokens added to the given round,
// extending RoundUsage with zeros for skipped rounds. UsedTokens is
// recomputed as the sum of all rounds.
func TrackUsage(b ContextBudget, tokens, roundIdx int) (ContextBudget, error) {
	if tokens < 0 {
		return ContextBudget{}, fmt.Errorf("tokens must be >= 0, got %d", tokens)
	}
	if roundIdx < 0 {
		return ContextBudget{}, fmt.Errorf("round index must be >= 0, got %d", roundIdx)
	}

	usage := make([]int, len(b.RoundUsage), max(len(b.RoundUsage), roundIdx+1))
	copy(usage, b.RoundUsage)
	for len(usage) <= roundIdx {
		usage = append(usage, 0)
	}
	usage[roundIdx] += tokens

	used := 0
	for _, u := range usage {
		used += u
	}

	return ContextBudget{
		MaxTokens:  b.MaxTokens,
		UsedTokens: used,
		RoundUsage: usage,
	}, nil
}

// WouldExceed reports whether adding tokens pushes usage past the cap.
func WouldExceed(b ContextBudget, additional int) bool {
	return b.UsedTokens+additional > b.MaxTokens
}
