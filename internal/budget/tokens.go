package budget

import "github.com/aicx/aicx/internal/protocol"

// EstimateTokens approximates the token count of text as ceil(len/4).
// The chars/4 ratio is a rough fit for English; rounding up keeps the
// estimate from under-counting against the budget.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// CountRequestTokens estimates the tokens in an outbound request,
// covering the prompts, the digest if attached, and the candidate.
func CountRequestTokens(req protocol.PromptRequest) int {
	total := EstimateTokens(req.SystemPrompt) + EstimateTokens(req.UserPrompt)
	if req.InputDigest != nil {
		total += countDigestTokens(*req.InputDigest)
	}
	total += EstimateTokens(req.CandidateAnswer)
	return total
}

// CountResponseTokens estimates the tokens in a model response across
// its answer and all feedback lists.
func CountResponseTokens(resp protocol.Response) int {
	total := EstimateTokens(resp.Answer)
	for _, s := range resp.Objections {
		total += EstimateTokens(s)
	}
	for _, s := range resp.Missing {
		total += EstimateTokens(s)
	}
	for _, s := range resp.Edits {
		total += EstimateTokens(s)
	}
	return total
}

func countDigestTokens(d protocol.Digest) int {
	total := 0
	for _, s := range d.CommonPoints {
		total += EstimateTokens(s)
	}
	for _, s := range d.Objections {
		total += EstimateTokens(s)
	}
	for _, s := range d.Missing {
		total += EstimateTokens(s)
	}
	for _, s := range d.SuggestedEdits {
		total += EstimateTokens(s)
	}
	return total
}
