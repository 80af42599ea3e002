package budget

import (
	"fmt"
	"sort"

	"github.com/aicx/aicx/internal/protocol"
)

// TruncateOldestRounds drops whole rounds of responses, oldest first,
// until the total token estimate fits targetTokens. The most recent
// round is never dropped, even if it alone exceeds the target. Surviving
// responses keep their original relative order.
func TruncateOldestRounds(responses []protocol.Response, roundIndices []int, targetTokens int) ([]protocol.Response, error) {
	if len(responses) != len(roundIndices) {
		return nil, fmt.Errorf("responses and round indices must have same length: %d != %d",
			len(responses), len(roundIndices))
	}
	if len(responses) == 0 {
		return nil, nil
	}

	maxRound := roundIndices[0]
	for _, r := range roundIndices {
		if r > maxRound {
			maxRound = r
		}
	}

	roundPositions := make(map[int][]int)
	for i, r := range roundIndices {
		roundPositions[r] = append(roundPositions[r], i)
	}

	tokenCounts := make([]int, len(responses))
	currentTokens := 0
	for i, r := range responses {
		tokenCounts[i] = CountResponseTokens(r)
		currentTokens += tokenCounts[i]
	}

	rounds := make([]int, 0, len(roundPositions))
	for r := range roundPositions {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)

	// Evict whole rounds from the front, sparing the newest.
	dropped := make(map[int]bool)
	for _, r := range rounds {
		if currentTokens <= targetTokens {
			break
		}
		if r == maxRound {
			break
		}
		for _, i := range roundPositions[r] {
			currentTokens -= tokenCounts[i]
		}
		dropped[r] = true
	}

	survivors := make([]protocol.Response, 0, len(responses))
	for i, r := range responses {
		if !dropped[roundIndices[i]] {
			survivors = append(survivors, r)
		}
	}
	return survivors, nil
}
