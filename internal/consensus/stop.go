// Package consensus runs the multi-model consensus loop: round 1
// collects independent answers, the mediator synthesizes a candidate,
// then critique rounds refine it until a stop condition fires.
package consensus

import (
	"strings"

	"github.com/aicx/aicx/internal/protocol"
)

// Stop reasons, in evaluation priority order.
const (
	ReasonConsensusReached     = "consensus_reached"
	ReasonMaxRoundsReached     = "max_rounds_reached"
	ReasonBelowChangeThreshold = "below_change_threshold"
	ReasonNoChangesProposed    = "no_changes_proposed"
)

// ConsensusReached reports whether the round's tally meets quorum with
// no critical objections outstanding.
func ConsensusReached(approvalCount int, criticalObjections []string, cfg protocol.RunConfig) bool {
	return approvalCount >= cfg.Quorum() && len(criticalObjections) == 0
}

// NoChangesProposed reports whether every critique in the round carries
// empty objections, missing items and edits.
func NoChangesProposed(critiques []protocol.Response) bool {
	for _, c := range critiques {
		if len(c.Objections) > 0 || len(c.Missing) > 0 || len(c.Edits) > 0 {
			return false
		}
	}
	return true
}

// ComputeChangeRatio measures how much the candidate changed between
// rounds: Levenshtein distance over whitespace tokens, normalized by
// the longer sequence. 0 means identical, 1 means completely rewritten.
func ComputeChangeRatio(previous, current string) float64 {
	a := strings.Fields(previous)
	b := strings.Fields(current)

	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 0.0
	}
	return float64(levenshtein(a, b)) / float64(longer)
}

// levenshtein computes the edit distance between two token sequences
// with a rolling-row table.
func levenshtein(a, b []string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ta := range a {
		curr[0] = i + 1
		for j, tb := range b {
			cost := 1
			if ta == tb {
				cost = 0
			}
			curr[j+1] = min3(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// StopInput carries a round's outcome into stop-condition evaluation.
// PreviousCandidate is nil when the mediator has not yet revised the
// candidate, which disables the change-threshold check.
type StopInput struct {
	CurrentRound       int
	ApprovalCount      int
	CriticalObjections []string
	PreviousCandidate  *string
	NewCandidate       string
	Critiques          []protocol.Response
}

// ShouldStop evaluates the four stop conditions in priority order and
// returns the first matching reason. The ordering is observable: a
// round that both reaches consensus and hits the round limit reports
// consensus.
func ShouldStop(in StopInput, cfg protocol.RunConfig) (bool, string) {
	if ConsensusReached(in.ApprovalCount, in.CriticalObjections, cfg) {
		return true, ReasonConsensusReached
	}
	if in.CurrentRound >= cfg.MaxRounds {
		return true, ReasonMaxRoundsReached
	}
	if in.PreviousCandidate != nil {
		if ComputeChangeRatio(*in.PreviousCandidate, in.NewCandidate) < cfg.ChangeThreshold {
			return true, ReasonBelowChangeThreshold
		}
	}
	if NoChangesProposed(in.Critiques) {
		return true, ReasonNoChangesProposed
	}
	return false, ""
}
