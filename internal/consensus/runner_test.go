package consensus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicx/aicx/internal/protocol"
	"github.com/aicx/aicx/internal/provider"
)

func runnerConfig(participants []string, maxRounds int, approvalRatio float64) protocol.RunConfig {
	cfg := protocol.RunConfig{
		Mediator: protocol.ModelConfig{
			Name:           "judge",
			Provider:       "mock",
			ModelID:        "judge-id",
			Temperature:    0.2,
			MaxTokens:      1024,
			TimeoutSeconds: 5,
			Weight:         1.0,
		},
		MaxRounds:       maxRounds,
		ApprovalRatio:   approvalRatio,
		ChangeThreshold: 0.1,
		ShareMode:       protocol.ShareDigest,
	}
	for _, name := range participants {
		cfg.Models = append(cfg.Models, protocol.ModelConfig{
			Name:           name,
			Provider:       "mock",
			ModelID:        name + "-id",
			Temperature:    0.2,
			MaxTokens:      1024,
			TimeoutSeconds: 5,
			Weight:         1.0,
		})
	}
	return cfg
}

// approvingParticipant answers in round 1 and returns a clean approval
// in every critique round.
func approvingParticipant(name, answer string) *provider.Mock {
	return provider.NewMock(name).RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
		if req.RoundIndex <= 1 {
			return protocol.Response{ModelName: name, Answer: answer}, nil
		}
		return protocol.Response{
			ModelName: name,
			Approve:   protocol.Bool(true),
			Critical:  protocol.Bool(false),
		}, nil
	})
}

// scriptedMediator returns a synthesis document first, then update
// documents with distinct candidates.
func scriptedMediator(candidate string) *provider.Mock {
	calls := 0
	return provider.NewMock("judge").RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
		calls++
		if calls == 1 {
			return protocol.Response{
				ModelName: "judge",
				Answer:    fmt.Sprintf(`{"candidate_answer": %q, "rationale": "merged participant answers"}`, candidate),
			}, nil
		}
		return protocol.Response{
			ModelName: "judge",
			Answer:    fmt.Sprintf(`{"candidate_answer": "%s (revision %d)", "rationale": "addressed critiques"}`, candidate, calls-1),
		}, nil
	})
}

func registryFor(adapters ...*provider.Mock) *provider.Registry {
	r := provider.NewRegistry()
	for _, a := range adapters {
		r.Register(a.Name(), a)
	}
	return r
}

func TestRun_SingleRound(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo"}, 1, 0.5)
	reg := registryFor(
		approvingParticipant("alpha", "Paris"),
		approvingParticipant("bravo", "Paris, the capital"),
		scriptedMediator("The capital of France is Paris."),
	)

	result, err := NewRunner(cfg, reg).Run(context.Background(), "capital of France?", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RoundsCompleted)
	assert.False(t, result.ConsensusReached, "no critique round ran, so nothing approved the candidate")
	assert.Equal(t, "The capital of France is Paris.", result.Output)
	assert.Equal(t, protocol.ExitSuccess, result.ExitCode)
	assert.Equal(t, 2, result.Metadata["participants"])
	assert.Equal(t, 1, result.Metadata["quorum"])
	assert.Equal(t, "capital of France?", result.Metadata["prompt"])
	require.Len(t, result.Responses, 2)
	assert.Equal(t, "alpha", result.Responses[0].ModelName)
}

func TestRun_ConsensusInCritiqueRound(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo"}, 3, 1.0)
	require.Equal(t, 2, cfg.Quorum())

	reg := registryFor(
		approvingParticipant("alpha", "Paris"),
		approvingParticipant("bravo", "Paris"),
		scriptedMediator("Paris."),
	)

	result, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{})
	require.NoError(t, err)

	assert.True(t, result.ConsensusReached)
	assert.Equal(t, 2, result.RoundsCompleted)
	assert.Equal(t, ReasonConsensusReached, result.Metadata["stop_reason"])
	assert.Equal(t, "Paris.", result.Output, "no disagreement summary on consensus")
	require.NotNil(t, result.MediatorState)
	assert.Equal(t, 2, result.MediatorState.ApprovalCount)
	assert.Empty(t, result.MediatorState.CriticalObjections)
}

func TestRun_CriticalObjectionsBlockConsensus(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo"}, 2, 0.5)

	objector := provider.NewMock("bravo").RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
		if req.RoundIndex <= 1 {
			return protocol.Response{ModelName: "bravo", Answer: "Lyon"}, nil
		}
		return protocol.Response{
			ModelName:  "bravo",
			Approve:    protocol.Bool(false),
			Critical:   protocol.Bool(true),
			Objections: []string{"Wrong", "Missing"},
		}, nil
	})

	reg := registryFor(
		approvingParticipant("alpha", "Paris"),
		objector,
		scriptedMediator("Paris."),
	)

	result, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{})
	require.NoError(t, err)

	assert.False(t, result.ConsensusReached)
	assert.Equal(t, 2, result.RoundsCompleted)
	assert.Equal(t, ReasonMaxRoundsReached, result.Metadata["stop_reason"])
	require.NotNil(t, result.MediatorState)
	assert.Equal(t, 1, result.MediatorState.ApprovalCount)
	assert.Equal(t, []string{"Wrong", "Missing"}, result.MediatorState.CriticalObjections)
	assert.Contains(t, result.Output, "Consensus not reached")
	assert.Contains(t, result.Output, "Wrong")
}

func TestRun_NoConsensusSummarySuppressed(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo"}, 2, 1.0)

	dissenter := provider.NewMock("bravo").RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
		if req.RoundIndex <= 1 {
			return protocol.Response{ModelName: "bravo", Answer: "Lyon"}, nil
		}
		return protocol.Response{
			ModelName:  "bravo",
			Approve:    protocol.Bool(false),
			Critical:   protocol.Bool(false),
			Objections: []string{"needs a source"},
		}, nil
	})

	reg := registryFor(
		approvingParticipant("alpha", "Paris"),
		dissenter,
		scriptedMediator("Paris."),
	)

	result, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{NoConsensusSummary: true})
	require.NoError(t, err)

	assert.False(t, result.ConsensusReached)
	assert.Equal(t, "Paris.", result.Output)
	require.NotNil(t, result.MediatorState)
	assert.NotEmpty(t, result.MediatorState.DisagreementSummary, "summary is still recorded, only omitted from output")
}

func TestRun_MediatorUpdateBetweenRounds(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo"}, 3, 1.0)

	// Round 2 proposes changes without approving; round 3 approves.
	flipper := func(name string) *provider.Mock {
		return provider.NewMock(name).RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
			switch {
			case req.RoundIndex <= 1:
				return protocol.Response{ModelName: name, Answer: "Paris"}, nil
			case req.RoundIndex == 2:
				return protocol.Response{
					ModelName:  name,
					Approve:    protocol.Bool(false),
					Critical:   protocol.Bool(false),
					Objections: []string{"cite the source"},
				}, nil
			default:
				return protocol.Response{
					ModelName: name,
					Approve:   protocol.Bool(true),
					Critical:  protocol.Bool(false),
				}, nil
			}
		})
	}

	judge := scriptedMediator("Paris is the capital of France and has been since 987.")
	reg := registryFor(flipper("alpha"), flipper("bravo"), judge)

	result, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{})
	require.NoError(t, err)

	assert.True(t, result.ConsensusReached)
	assert.Equal(t, 3, result.RoundsCompleted)
	assert.Equal(t, 2, judge.Calls(), "one synthesis plus one update")
	assert.Contains(t, result.Output, "revision 1")
}

func TestRun_ParticipantFailureDegradesQuorum(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo", "charlie"}, 1, 0.5)
	require.Equal(t, 2, cfg.Quorum())

	broken := provider.NewMock("charlie").RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
		return protocol.Response{}, protocol.NewProviderError("charlie", protocol.ErrNetwork, "unreachable")
	})

	reg := registryFor(
		approvingParticipant("alpha", "Paris"),
		approvingParticipant("bravo", "Paris"),
		broken,
		scriptedMediator("Paris."),
	)

	result, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie"}, result.Metadata["failed_models"])
	require.Len(t, result.Responses, 2)
}

func TestRun_BelowQuorumFails(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo", "charlie"}, 1, 1.0)

	fail := func(name string) *provider.Mock {
		return provider.NewMock(name).RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
			return protocol.Response{}, protocol.NewProviderError(name, protocol.ErrTimeout, "timed out")
		})
	}

	reg := registryFor(
		approvingParticipant("alpha", "Paris"),
		fail("bravo"),
		fail("charlie"),
		scriptedMediator("Paris."),
	)

	_, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{})
	var qerr *protocol.QuorumError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 1, qerr.Received)
	assert.Equal(t, 3, qerr.Required)
}

func TestRun_AllParticipantsFailing(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo"}, 1, 0.5)

	fail := func(name string) *provider.Mock {
		return provider.NewMock(name).RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
			return protocol.Response{}, protocol.NewProviderError(name, protocol.ErrNetwork, "down")
		})
	}

	reg := registryFor(fail("alpha"), fail("bravo"), scriptedMediator("x"))

	_, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{})
	var zerr *protocol.ZeroResponseError
	require.ErrorAs(t, err, &zerr)
	assert.Equal(t, 1, zerr.RoundIndex)
}

func TestRun_MediatorFailureAbortsRun(t *testing.T) {
	cfg := runnerConfig([]string{"alpha", "bravo"}, 1, 0.5)

	judge := provider.NewMock("judge").RespondWith(func(req protocol.PromptRequest) (protocol.Response, error) {
		return protocol.Response{}, protocol.NewProviderError("judge", protocol.ErrServiceUnavailable, "overloaded")
	})

	reg := registryFor(
		approvingParticipant("alpha", "Paris"),
		approvingParticipant("bravo", "Paris"),
		judge,
	)

	_, err := NewRunner(cfg, reg).Run(context.Background(), "capital?", RunOptions{})
	require.Error(t, err)
	var perr *protocol.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "judge", perr.Provider)
}

func TestAnalyzeCritiques(t *testing.T) {
	critiques := []protocol.Response{
		{
			ModelName:  "alpha",
			Approve:    protocol.Bool(true),
			Critical:   protocol.Bool(false),
			Objections: []string{"minor nit"},
		},
		{
			ModelName:  "bravo",
			Approve:    protocol.Bool(false),
			Critical:   protocol.Bool(true),
			Objections: []string{"Wrong", "Missing"},
		},
		{
			ModelName: "charlie",
			Approve:   protocol.Bool(false),
			Critical:  protocol.Bool(true),
			// Critical with no objections contributes nothing.
		},
	}

	approvals, criticals := analyzeCritiques(critiques)
	assert.Equal(t, 1, approvals)
	assert.Equal(t, []string{"Wrong", "Missing"}, criticals)
}

func TestBuildDisagreementSummary(t *testing.T) {
	cfg := runnerConfig([]string{"a", "b", "c", "d"}, 3, 0.75)

	critiques := []protocol.Response{
		{ModelName: "a", Approve: protocol.Bool(true)},
		{ModelName: "b", Approve: protocol.Bool(true)},
		{
			ModelName:  "c",
			Approve:    protocol.Bool(false),
			Critical:   protocol.Bool(true),
			Objections: []string{"crit one", "crit two", "crit three"},
			Missing:    []string{"m1", "m2", "m3"},
		},
		{
			ModelName:  "d",
			Approve:    protocol.Bool(false),
			Objections: []string{"obj one", "obj two"},
		},
	}
	criticals := []string{"crit one", "crit two", "crit three"}

	summary := buildDisagreementSummary(critiques, criticals, 2, cfg)

	assert.Contains(t, summary, "LOW")
	assert.Contains(t, summary, "crit one")
	assert.Contains(t, summary, "crit two")
	assert.NotContains(t, summary, "crit three", "critical objections capped at two")
	// Two critical slots against the three-item cap leave one objection
	// slot, filled by the first non-approving objection.
	assert.NotContains(t, summary, "obj two")
	assert.Contains(t, summary, "m1")
	assert.Contains(t, summary, "m2")
	assert.NotContains(t, summary, "m3", "missing items capped at two")
}

func TestBuildDisagreementSummary_ConfidenceLabels(t *testing.T) {
	cfg := runnerConfig([]string{"a", "b"}, 3, 1.0)

	approveOnly := []protocol.Response{
		{ModelName: "a", Approve: protocol.Bool(true)},
		{ModelName: "b", Approve: protocol.Bool(false), Objections: []string{"x"}},
	}

	t.Run("medium on split vote without criticals", func(t *testing.T) {
		summary := buildDisagreementSummary(approveOnly, nil, 1, cfg)
		assert.Contains(t, summary, "MEDIUM")
	})

	t.Run("high when ratio met and no criticals", func(t *testing.T) {
		summary := buildDisagreementSummary(approveOnly, nil, 2, cfg)
		assert.Contains(t, summary, "HIGH")
	})

	t.Run("low with multiple criticals", func(t *testing.T) {
		summary := buildDisagreementSummary(approveOnly, []string{"c1", "c2"}, 1, cfg)
		assert.Contains(t, summary, "LOW")
	})
}
