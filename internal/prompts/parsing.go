package prompts

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aicx/aicx/internal/protocol"
)

// ParseParticipantResponse parses a round-1 answer document. With strict
// false, recovery strategies run before giving up.
func ParseParticipantResponse(raw, modelName string, strict bool) (protocol.Response, error) {
	parsed, err := parseJSON(raw, strict)
	if err != nil {
		return protocol.Response{}, err
	}

	answer, err := answerString(parsed, raw)
	if err != nil {
		return protocol.Response{}, err
	}

	return protocol.Response{
		ModelName:  modelName,
		Answer:     answer,
		Confidence: parseConfidence(parsed["confidence"]),
		Raw:        raw,
	}, nil
}

// ParseCritiqueResponse parses a round-2+ critique document. The approve
// and critical booleans are required; the list fields default to empty.
func ParseCritiqueResponse(raw, modelName string, strict bool) (protocol.Response, error) {
	parsed, err := parseJSON(raw, strict)
	if err != nil {
		return protocol.Response{}, err
	}

	approve, ok := parsed["approve"].(bool)
	if !ok {
		return protocol.Response{}, protocol.NewParseError(raw, "missing or invalid 'approve' field in critique response")
	}
	critical, ok := parsed["critical"].(bool)
	if !ok {
		return protocol.Response{}, protocol.NewParseError(raw, "missing or invalid 'critical' field in critique response")
	}

	return protocol.Response{
		ModelName:  modelName,
		Answer:     "",
		Approve:    protocol.Bool(approve),
		Critical:   protocol.Bool(critical),
		Objections: parseStringList(parsed["objections"]),
		Missing:    parseStringList(parsed["missing"]),
		Edits:      parseStringList(parsed["edits"]),
		Confidence: parseConfidence(parsed["confidence"]),
		Raw:        raw,
	}, nil
}

// Synthesis holds the mediator's parsed round-1 output.
type Synthesized struct {
	CandidateAnswer string
	Rationale       string
	CommonPoints    []string
	Objections      []string
	Missing         []string
	SuggestedEdits  []string
}

// ParseMediatorSynthesis parses the mediator's synthesis document.
func ParseMediatorSynthesis(raw string, strict bool) (Synthesized, error) {
	parsed, err := parseJSON(raw, strict)
	if err != nil {
		return Synthesized{}, err
	}

	candidate, ok := parsed["candidate_answer"].(string)
	if !ok {
		return Synthesized{}, protocol.NewParseError(raw, "missing or invalid 'candidate_answer' field in synthesis")
	}
	rationale, ok := parsed["rationale"].(string)
	if !ok {
		return Synthesized{}, protocol.NewParseError(raw, "missing or invalid 'rationale' field in synthesis")
	}

	return Synthesized{
		CandidateAnswer: candidate,
		Rationale:       rationale,
		CommonPoints:    parseStringList(parsed["common_points"]),
		Objections:      parseStringList(parsed["objections"]),
		Missing:         parseStringList(parsed["missing"]),
		SuggestedEdits:  parseStringList(parsed["suggested_edits"]),
	}, nil
}

// Updated holds the mediator's parsed candidate revision.
type Updated struct {
	CandidateAnswer string
	Rationale       string
}

// ParseMediatorUpdate parses the mediator's update document.
func ParseMediatorUpdate(raw string, strict bool) (Updated, error) {
	parsed, err := parseJSON(raw, strict)
	if err != nil {
		return Updated{}, err
	}

	candidate, ok := parsed["candidate_answer"].(string)
	if !ok {
		return Updated{}, protocol.NewParseError(raw, "missing or invalid 'candidate_answer' field in update")
	}
	rationale, ok := parsed["rationale"].(string)
	if !ok {
		return Updated{}, protocol.NewParseError(raw, "missing or invalid 'rationale' field in update")
	}

	return Updated{CandidateAnswer: candidate, Rationale: rationale}, nil
}

// parseJSON decodes raw into an object, running recovery strategies
// (code-fence extraction, brace matching) unless strict mode is on.
func parseJSON(raw string, strict bool) (map[string]any, error) {
	attempt := func(s string) (map[string]any, bool) {
		var out map[string]any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, false
		}
		return out, true
	}

	if out, ok := attempt(raw); ok {
		return out, nil
	}
	if strict {
		return nil, protocol.NewParseError(raw, "invalid JSON in model output")
	}

	if extracted := extractJSONCodeBlock(raw); extracted != "" {
		if out, ok := attempt(extracted); ok {
			return out, nil
		}
	}

	if extracted := extractFirstJSONObject(raw); extracted != "" {
		if out, ok := attempt(extracted); ok {
			return out, nil
		}
	}

	return nil, protocol.NewParseError(raw, "failed to parse JSON after all recovery attempts")
}

var codeBlockPattern = regexp.MustCompile("(?is)```(?:json)?\\s*\n(.*?)\n```")

func extractJSONCodeBlock(text string) string {
	m := codeBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractFirstJSONObject scans for the first balanced top-level object,
// tracking string and escape state so braces inside strings don't count.
func extractFirstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// answerString returns the "answer" field as a string, serializing
// non-string JSON payloads rather than rejecting them.
func answerString(parsed map[string]any, raw string) (string, error) {
	v, ok := parsed["answer"]
	if !ok || v == nil {
		return "", protocol.NewParseError(raw, "missing or invalid 'answer' field in participant response")
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", protocol.NewParseError(raw, "unserializable 'answer' field in participant response")
	}
	return string(encoded), nil
}

func parseStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseConfidence(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return protocol.Float64(f)
}
