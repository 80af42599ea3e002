// Package digest builds the cross-response summary shared with
// participants and the mediator: majority-vote common points plus
// frequency-ranked objections, missing items and suggested edits.
package digest

import (
	"sort"
	"strings"

	"github.com/aicx/aicx/internal/protocol"
)

// Build constructs a digest from a round's responses. Common points are
// sentences appearing in at least half of the responses (inclusive);
// objections, missing items and edits are deduplicated unions. All lists
// are ordered by descending frequency, ties broken lexicographically.
func Build(responses []protocol.Response) protocol.Digest {
	if len(responses) == 0 {
		return protocol.Digest{}
	}

	var allObjections, allMissing, allEdits []string
	for _, r := range responses {
		allObjections = append(allObjections, r.Objections...)
		allMissing = append(allMissing, r.Missing...)
		allEdits = append(allEdits, r.Edits...)
	}

	return protocol.Digest{
		CommonPoints:   extractCommonPoints(responses),
		Objections:     sortByFrequencyThenAlpha(allObjections),
		Missing:        sortByFrequencyThenAlpha(allMissing),
		SuggestedEdits: sortByFrequencyThenAlpha(allEdits),
	}
}

// UpdateFromCritiques merges a critique round into the previous digest.
// Common points carry over unchanged; the feedback lists are re-ranked
// with frequencies accumulated across the previous digest and the new
// critiques.
func UpdateFromCritiques(previous protocol.Digest, critiques []protocol.Response) protocol.Digest {
	objections := append([]string{}, previous.Objections...)
	missing := append([]string{}, previous.Missing...)
	edits := append([]string{}, previous.SuggestedEdits...)

	for _, c := range critiques {
		objections = append(objections, c.Objections...)
		missing = append(missing, c.Missing...)
		edits = append(edits, c.Edits...)
	}

	return protocol.Digest{
		CommonPoints:   previous.CommonPoints,
		Objections:     sortByFrequencyThenAlpha(objections),
		Missing:        sortByFrequencyThenAlpha(missing),
		SuggestedEdits: sortByFrequencyThenAlpha(edits),
	}
}

func extractCommonPoints(responses []protocol.Response) []string {
	counts := make(map[string]int)
	for _, r := range responses {
		for _, sent := range splitSentences(r.Answer) {
			counts[sent]++
		}
	}

	// A sentence qualifies when it appears in at least 50% of responses,
	// inclusive. Comparison is case-sensitive with no normalization.
	threshold := float64(len(responses)) * 0.5
	var common []string
	for sent, count := range counts {
		if float64(count) >= threshold {
			common = append(common, sent)
		}
	}

	sort.Slice(common, func(i, j int) bool {
		if counts[common[i]] != counts[common[j]] {
			return counts[common[i]] > counts[common[j]]
		}
		return common[i] < common[j]
	})
	return common
}

var sentenceTerminators = []string{". ", "! ", "? ", "\n"}

const sentenceMark = "\x00"

// splitSentences segments text on terminator-plus-space and newline
// boundaries. Interior terminators are consumed by the split; only the
// final segment keeps its trailing punctuation. Empty segments are
// dropped.
func splitSentences(text string) []string {
	for _, term := range sentenceTerminators {
		text = strings.ReplaceAll(text, term, sentenceMark)
	}

	var sentences []string
	for _, raw := range strings.Split(text, sentenceMark) {
		if s := strings.TrimSpace(raw); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// sortByFrequencyThenAlpha deduplicates items and orders them by
// descending occurrence count, ties broken in ascending lexical order.
func sortByFrequencyThenAlpha(items []string) []string {
	if len(items) == 0 {
		return nil
	}

	counts := make(map[string]int)
	unique := make([]string, 0, len(items))
	for _, item := range items {
		if counts[item] == 0 {
			unique = append(unique, item)
		}
		counts[item]++
	}

	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return unique[i] < unique[j]
	})
	return unique
}
