package consensus

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aicx/aicx/internal/eventlog"
	"github.com/aicx/aicx/internal/protocol"
)

// CallFunc invokes one participant model and returns its parsed response.
type CallFunc func(ctx context.Context, model protocol.ModelConfig) (protocol.Response, error)

// CollectResponses queries every participant and partitions the round
// into successes and failed model names. Calls are dispatched
// concurrently, but results are always presented sorted by model name
// so digests and logs stay reproducible regardless of completion
// order. One model failing never aborts the batch.
func CollectResponses(ctx context.Context, models []protocol.ModelConfig, call CallFunc, roundIndex int) ([]protocol.Response, []string) {
	type outcome struct {
		name string
		resp protocol.Response
		err  error
	}

	var mu sync.Mutex
	outcomes := make([]outcome, 0, len(models))

	g, gctx := errgroup.WithContext(ctx)
	for _, model := range models {
		model := model
		g.Go(func() error {
			resp, err := call(gctx, model)
			mu.Lock()
			outcomes = append(outcomes, outcome{name: model.Name, resp: resp, err: err})
			mu.Unlock()
			// Failures are recorded per-model, never propagated.
			return nil
		})
	}
	g.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].name < outcomes[j].name })

	responses := make([]protocol.Response, 0, len(outcomes))
	var failed []string
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, o.name)
			eventlog.Error("ProviderError", o.err.Error(), roundIndex, o.name)
			continue
		}
		responses = append(responses, o.resp)
	}
	return responses, failed
}

// CheckRoundResponses validates that a round produced enough successes.
// Zero successes is a distinct fatal condition from a below-quorum
// round so diagnostics can tell "everything is down" from "some models
// dropped out".
func CheckRoundResponses(responses []protocol.Response, cfg protocol.RunConfig, roundIndex int) error {
	required := cfg.Quorum()

	if len(responses) == 0 {
		err := protocol.NewZeroResponseError(roundIndex, len(cfg.Models))
		eventlog.Error("ZeroResponseError", err.Error(), roundIndex, "")
		return err
	}
	if len(responses) < required {
		err := protocol.NewQuorumError(len(responses), required)
		eventlog.Error("QuorumError", err.Error(), roundIndex, "")
		return err
	}
	return nil
}
