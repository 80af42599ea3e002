package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aicx/aicx/internal/budget"
	"github.com/aicx/aicx/internal/digest"
	"github.com/aicx/aicx/internal/eventlog"
	"github.com/aicx/aicx/internal/prompts"
	"github.com/aicx/aicx/internal/protocol"
	"github.com/aicx/aicx/internal/provider"
)

// Runner drives a consensus run against a set of registered adapters.
type Runner struct {
	cfg      protocol.RunConfig
	registry *provider.Registry
}

// NewRunner builds a runner for a validated config. The registry must
// hold an adapter for every participant and the mediator.
func NewRunner(cfg protocol.RunConfig, registry *provider.Registry) *Runner {
	return &Runner{cfg: cfg, registry: registry}
}

// RunOptions tunes output shaping without changing protocol semantics.
type RunOptions struct {
	// NoConsensusSummary omits the disagreement summary from the final
	// output even when consensus was not reached.
	NoConsensusSummary bool
}

// Run executes the consensus loop for one prompt.
//
// Round 1 collects independent answers and the mediator synthesizes a
// candidate. Rounds 2..max_rounds collect critiques, merge them into
// the digest, and either stop or have the mediator revise the
// candidate. Participant failures degrade quorum; a mediator failure
// aborts the run.
func (r *Runner) Run(ctx context.Context, prompt string, opts RunOptions) (*protocol.ConsensusResult, error) {
	cfg := r.cfg
	eventlog.Event("run_started", map[string]any{
		"prompt":       prompt,
		"participants": len(cfg.Models),
		"max_rounds":   cfg.MaxRounds,
	})

	var bud *budget.ContextBudget
	if cfg.MaxContextTokens > 0 {
		b, err := budget.New(cfg.MaxContextTokens)
		if err != nil {
			return nil, protocol.NewConfigError("context budget: %v", err)
		}
		bud = &b
		eventlog.Event("budget_initialized", map[string]any{"max_tokens": cfg.MaxContextTokens})
	}

	// Round 1: independent answers.
	responses, failed := CollectResponses(ctx, cfg.Models, r.callParticipant(prompt), 1)
	if err := CheckRoundResponses(responses, cfg, 1); err != nil {
		return nil, err
	}
	eventlog.Event("round_completed", map[string]any{"round": 1, "responses": len(responses)})

	if bud != nil {
		r.trackRound(bud, responses, 1)
	}

	dig := digest.Build(responses)
	state, err := r.synthesize(ctx, prompt, responses)
	if err != nil {
		return nil, err
	}
	eventlog.Event("synthesis_completed", map[string]any{
		"candidate_length": len(state.CandidateAnswer),
	})

	allResponses := append([]protocol.Response(nil), responses...)
	allFailed := append([]string(nil), failed...)
	roundIndices := make([]int, len(responses))
	currentRound := 1
	var previousCandidate *string
	var stopReason string

	for currentRound < cfg.MaxRounds {
		currentRound++

		critiqueContext := allResponses
		if bud != nil {
			critiqueContext = r.truncateForBudget(bud, allResponses, roundIndices, currentRound)
		}

		critiques, roundFailed := CollectResponses(ctx,
			cfg.Models,
			r.callCritic(state.CandidateAnswer, dig, critiqueContext, currentRound),
			currentRound)
		if err := CheckRoundResponses(critiques, cfg, currentRound); err != nil {
			return nil, err
		}
		allFailed = append(allFailed, roundFailed...)
		eventlog.Event("round_completed", map[string]any{"round": currentRound, "critiques": len(critiques)})

		if bud != nil {
			r.trackRound(bud, critiques, currentRound)
		}

		approvalCount, criticalObjections := analyzeCritiques(critiques)
		dig = digest.UpdateFromCritiques(dig, critiques)

		stop, reason := ShouldStop(StopInput{
			CurrentRound:       currentRound,
			ApprovalCount:      approvalCount,
			CriticalObjections: criticalObjections,
			PreviousCandidate:  previousCandidate,
			NewCandidate:       state.CandidateAnswer,
			Critiques:          critiques,
		}, cfg)

		if stop {
			eventlog.Event("stop_condition_met", map[string]any{"reason": reason, "round": currentRound})
			stopReason = reason
			state = protocol.MediatorState{
				CandidateAnswer:    state.CandidateAnswer,
				Rationale:          state.Rationale,
				ApprovalCount:      approvalCount,
				CriticalObjections: criticalObjections,
			}
			if reason != ReasonConsensusReached {
				state.DisagreementSummary = buildDisagreementSummary(critiques, criticalObjections, approvalCount, cfg)
			}
			allResponses = append(allResponses, critiques...)
			for range critiques {
				roundIndices = append(roundIndices, currentRound-1)
			}
			break
		}

		prev := state.CandidateAnswer
		previousCandidate = &prev
		updated, err := r.updateCandidate(ctx, prev, critiques)
		if err != nil {
			return nil, err
		}
		state = protocol.MediatorState{
			CandidateAnswer:    updated.CandidateAnswer,
			Rationale:          updated.Rationale,
			ApprovalCount:      approvalCount,
			CriticalObjections: criticalObjections,
		}

		allResponses = append(allResponses, critiques...)
		for range critiques {
			roundIndices = append(roundIndices, currentRound-1)
		}
		eventlog.Event("candidate_updated", map[string]any{"round": currentRound})
	}

	consensusReached := state.ApprovalCount >= cfg.Quorum() && len(state.CriticalObjections) == 0

	output := state.CandidateAnswer
	if !opts.NoConsensusSummary && state.DisagreementSummary != "" {
		output += "\n\n" + state.DisagreementSummary
	}

	sort.Strings(allFailed)
	result := &protocol.ConsensusResult{
		Output:           output,
		ExitCode:         protocol.ExitSuccess,
		ConsensusReached: consensusReached,
		RoundsCompleted:  currentRound,
		MediatorState:    &state,
		Responses:        allResponses,
		Digest:           &dig,
		Metadata: map[string]any{
			"prompt":        prompt,
			"participants":  len(cfg.Models),
			"quorum":        cfg.Quorum(),
			"failed_models": dedupe(allFailed),
		},
	}
	if stopReason != "" {
		result.Metadata["stop_reason"] = stopReason
	}

	eventlog.Event("run_completed", map[string]any{
		"rounds":            currentRound,
		"consensus_reached": consensusReached,
	})
	return result, nil
}

// callParticipant builds the round-1 CallFunc.
func (r *Runner) callParticipant(prompt string) CallFunc {
	return func(ctx context.Context, model protocol.ModelConfig) (protocol.Response, error) {
		adapter, err := r.registry.Get(model.Name)
		if err != nil {
			return protocol.Response{}, err
		}
		tmpl := prompts.Participant(prompt)
		return adapter.CreateChatCompletion(ctx, protocol.PromptRequest{
			UserPrompt:   tmpl.User,
			SystemPrompt: tmpl.System,
			RoundIndex:   1,
			Role:         protocol.RoleParticipant,
		})
	}
}

// callCritic builds the CallFunc for a critique round. Under
// share_mode=digest the participant sees the merged digest; under raw
// it sees the accumulated responses verbatim.
func (r *Runner) callCritic(candidate string, dig protocol.Digest, rawContext []protocol.Response, roundIndex int) CallFunc {
	return func(ctx context.Context, model protocol.ModelConfig) (protocol.Response, error) {
		adapter, err := r.registry.Get(model.Name)
		if err != nil {
			return protocol.Response{}, err
		}
		var tmpl prompts.Template
		if r.cfg.ShareMode == protocol.ShareRaw {
			tmpl, err = prompts.CritiqueRaw(candidate, rawContext)
		} else {
			tmpl, err = prompts.Critique(candidate, dig)
		}
		if err != nil {
			return protocol.Response{}, err
		}
		return adapter.CreateChatCompletion(ctx, protocol.PromptRequest{
			UserPrompt:      tmpl.User,
			SystemPrompt:    tmpl.System,
			RoundIndex:      roundIndex,
			Role:            protocol.RoleParticipant,
			InputDigest:     &dig,
			CandidateAnswer: candidate,
		})
	}
}

// synthesize asks the mediator for the initial candidate. Mediator
// failures are never recovered: there is no fallback synthesizer.
func (r *Runner) synthesize(ctx context.Context, prompt string, responses []protocol.Response) (protocol.MediatorState, error) {
	adapter, err := r.registry.Get(r.cfg.Mediator.Name)
	if err != nil {
		return protocol.MediatorState{}, err
	}
	tmpl, err := prompts.Synthesis(prompt, responses)
	if err != nil {
		return protocol.MediatorState{}, err
	}
	resp, err := adapter.CreateChatCompletion(ctx, protocol.PromptRequest{
		UserPrompt:   tmpl.User,
		SystemPrompt: tmpl.System,
		RoundIndex:   1,
		Role:         protocol.RoleMediator,
	})
	if err != nil {
		return protocol.MediatorState{}, fmt.Errorf("mediator synthesis: %w", err)
	}
	parsed, err := prompts.ParseMediatorSynthesis(resp.Answer, r.cfg.StrictJSON)
	if err != nil {
		return protocol.MediatorState{}, fmt.Errorf("mediator synthesis: %w", err)
	}
	return protocol.MediatorState{
		CandidateAnswer: parsed.CandidateAnswer,
		Rationale:       parsed.Rationale,
	}, nil
}

// updateCandidate asks the mediator to revise the candidate from a
// round of critiques.
func (r *Runner) updateCandidate(ctx context.Context, candidate string, critiques []protocol.Response) (prompts.Updated, error) {
	adapter, err := r.registry.Get(r.cfg.Mediator.Name)
	if err != nil {
		return prompts.Updated{}, err
	}
	tmpl, err := prompts.Update(candidate, critiques)
	if err != nil {
		return prompts.Updated{}, err
	}
	resp, err := adapter.CreateChatCompletion(ctx, protocol.PromptRequest{
		UserPrompt:      tmpl.User,
		SystemPrompt:    tmpl.System,
		RoundIndex:      2,
		Role:            protocol.RoleMediator,
		CandidateAnswer: candidate,
	})
	if err != nil {
		return prompts.Updated{}, fmt.Errorf("mediator update: %w", err)
	}
	parsed, err := prompts.ParseMediatorUpdate(resp.Answer, r.cfg.StrictJSON)
	if err != nil {
		return prompts.Updated{}, fmt.Errorf("mediator update: %w", err)
	}
	return parsed, nil
}

// trackRound folds a round's response tokens into the budget.
func (r *Runner) trackRound(bud *budget.ContextBudget, responses []protocol.Response, round int) {
	tokens := 0
	for _, resp := range responses {
		tokens += budget.CountResponseTokens(resp)
	}
	next, err := budget.TrackUsage(*bud, tokens, round-1)
	if err != nil {
		return
	}
	*bud = next
	eventlog.Event("budget_tracked", map[string]any{
		"round":        round,
		"round_tokens": tokens,
		"total_used":   next.UsedTokens,
	})
}

// truncateForBudget evicts oldest rounds from the accumulated context
// when the budget would overflow, keeping the most recent round intact.
func (r *Runner) truncateForBudget(bud *budget.ContextBudget, responses []protocol.Response, roundIndices []int, round int) []protocol.Response {
	estimated := 0
	for _, resp := range responses {
		estimated += budget.CountResponseTokens(resp)
	}
	if !budget.WouldExceed(*bud, estimated) {
		return responses
	}

	target := bud.MaxTokens - bud.UsedTokens
	if target < 0 {
		target = 0
	}
	truncated, err := budget.TruncateOldestRounds(responses, roundIndices, target)
	if err != nil {
		return responses
	}
	if dropped := len(responses) - len(truncated); dropped > 0 {
		eventlog.Event("context_truncated", map[string]any{
			"round":             round,
			"dropped_responses": dropped,
			"target_tokens":     target,
		})
	}
	return truncated
}

// analyzeCritiques tallies a critique round: the approval count plus
// every objection from critiques flagged critical, order preserved.
func analyzeCritiques(critiques []protocol.Response) (int, []string) {
	approvals := 0
	var critical []string
	for _, c := range critiques {
		if c.Approved() {
			approvals++
		}
		if c.IsCritical() && len(c.Objections) > 0 {
			critical = append(critical, c.Objections...)
		}
	}
	return approvals, critical
}

// buildDisagreementSummary condenses a non-consensus stop into a short
// confidence-labeled report. Objections and missing items are drawn
// only from non-approving critiques, capped so the summary stays
// readable; critical objections count against the objection cap.
func buildDisagreementSummary(critiques []protocol.Response, criticalObjections []string, approvalCount int, cfg protocol.RunConfig) string {
	var objections, missing []string
	for _, c := range critiques {
		if c.Approved() {
			continue
		}
		objections = append(objections, c.Objections...)
		missing = append(missing, c.Missing...)
	}

	ratio := 0.0
	if len(critiques) > 0 {
		ratio = float64(approvalCount) / float64(len(critiques))
	}
	confidence := "LOW"
	switch {
	case ratio >= cfg.ApprovalRatio && len(criticalObjections) == 0:
		confidence = "HIGH"
	case ratio >= 0.5 && len(criticalObjections) <= 1:
		confidence = "MEDIUM"
	}

	var b strings.Builder
	b.WriteString("Consensus not reached. Confidence: " + confidence + "\n")

	criticals := criticalObjections
	if len(criticals) > 2 {
		criticals = criticals[:2]
	}
	if len(criticals) > 0 {
		b.WriteString("\nCritical objections:\n")
		for _, obj := range criticals {
			b.WriteString("- " + obj + "\n")
		}
	}

	remaining := 3 - len(criticals)
	shown := 0
	if remaining > 0 && len(objections) > 0 {
		b.WriteString("\nObjections:\n")
		for _, obj := range objections {
			if shown >= remaining {
				break
			}
			b.WriteString("- " + obj + "\n")
			shown++
		}
	}

	if len(missing) > 2 {
		missing = missing[:2]
	}
	if len(missing) > 0 {
		b.WriteString("\nMissing:\n")
		for _, item := range missing {
			b.WriteString("- " + item + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func dedupe(sorted []string) []string {
	var out []string
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
