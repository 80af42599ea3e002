package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicx/aicx/internal/protocol"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char rounds up", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars rounds up", "abcde", 2},
		{"eight chars", "12345678", 2},
		{"long text", strings.Repeat("x", 401), 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestCountResponseTokens(t *testing.T) {
	resp := protocol.Response{
		ModelName:  "m",
		Answer:     "12345678",             // 2 tokens
		Objections: []string{"abcd", "ab"}, // 1 + 1
		Missing:    []string{"abcdefgh"},   // 2
		Edits:      []string{"x"},          // 1
	}
	assert.Equal(t, 7, CountResponseTokens(resp))
}

func TestCountRequestTokens(t *testing.T) {
	req := protocol.PromptRequest{
		SystemPrompt: "abcd",     // 1
		UserPrompt:   "12345678", // 2
		InputDigest: &protocol.Digest{
			CommonPoints: []string{"abcd"}, // 1
			Objections:   []string{"ab"},   // 1
		},
		CandidateAnswer: "abcdefgh", // 2
	}
	assert.Equal(t, 7, CountRequestTokens(req))
}

func TestNewBudget(t *testing.T) {
	b, err := New(1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, b.MaxTokens)
	assert.Equal(t, 0, b.UsedTokens)
	assert.Empty(t, b.RoundUsage)

	_, err = New(0)
	assert.Error(t, err)
}

func TestTrackUsage_Accumulates(t *testing.T) {
	b, err := New(10000)
	require.NoError(t, err)

	b, err = TrackUsage(b, 100, 0)
	require.NoError(t, err)
	b, err = TrackUsage(b, 50, 0)
	require.NoError(t, err)

	assert.Equal(t, 150, b.UsedTokens)
	assert.Equal(t, []int{150}, b.RoundUsage)
}

func TestTrackUsage_ExtendsSkippedRounds(t *testing.T) {
	b, err := New(10000)
	require.NoError(t, err)

	b, err = TrackUsage(b, 100, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 100}, b.RoundUsage)
	assert.Equal(t, 100, b.UsedTokens)
}

func TestTrackUsage_IsFunctional(t *testing.T) {
	b, err := New(10000)
	require.NoError(t, err)

	updated, err := TrackUsage(b, 100, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, b.UsedTokens, "original budget untouched")
	assert.Equal(t, 100, updated.UsedTokens)
}

func TestTrackUsage_RejectsNegative(t *testing.T) {
	b, err := New(10000)
	require.NoError(t, err)

	_, err = TrackUsage(b, -1, 0)
	assert.Error(t, err)
}

func TestWouldExceed(t *testing.T) {
	b, err := New(100)
	require.NoError(t, err)
	b, err = TrackUsage(b, 60, 0)
	require.NoError(t, err)

	assert.False(t, WouldExceed(b, 40), "exactly at cap is not over")
	assert.True(t, WouldExceed(b, 41))
}

func respWithTokens(name string, tokens int) protocol.Response {
	return protocol.Response{ModelName: name, Answer: strings.Repeat("x", tokens*4)}
}

func TestTruncateOldestRounds_DropsOldestFirst(t *testing.T) {
	responses := []protocol.Response{
		respWithTokens("a", 100), // round 0
		respWithTokens("b", 100), // round 0
		respWithTokens("c", 100), // round 1
		respWithTokens("d", 100), // round 2
	}
	indices := []int{0, 0, 1, 2}

	got, err := TruncateOldestRounds(responses, indices, 200)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ModelName)
	assert.Equal(t, "d", got[1].ModelName)
}

func TestTruncateOldestRounds_NeverDropsMostRecent(t *testing.T) {
	responses := []protocol.Response{
		respWithTokens("old", 50),
		respWithTokens("new", 500),
	}
	indices := []int{0, 1}

	got, err := TruncateOldestRounds(responses, indices, 100)
	require.NoError(t, err)

	// The newest round survives even though it alone exceeds the target.
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ModelName)
}

func TestTruncateOldestRounds_FitsWithoutDropping(t *testing.T) {
	responses := []protocol.Response{
		respWithTokens("a", 10),
		respWithTokens("b", 10),
	}
	indices := []int{0, 1}

	got, err := TruncateOldestRounds(responses, indices, 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTruncateOldestRounds_PreservesOriginalOrder(t *testing.T) {
	responses := []protocol.Response{
		respWithTokens("a", 10), // round 1
		respWithTokens("b", 10), // round 0
		respWithTokens("c", 10), // round 1
	}
	indices := []int{1, 0, 1}

	got, err := TruncateOldestRounds(responses, indices, 25)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ModelName)
	assert.Equal(t, "c", got[1].ModelName)
}

func TestTruncateOldestRounds_LengthMismatch(t *testing.T) {
	_, err := TruncateOldestRounds([]protocol.Response{{}}, []int{0, 1}, 100)
	assert.Error(t, err)
}

func TestTruncateOldestRounds_Empty(t *testing.T) {
	got, err := TruncateOldestRounds(nil, nil, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}
