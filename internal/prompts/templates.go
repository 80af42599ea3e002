// Package prompts renders the role prompts for each phase of the
// protocol and parses the strict-JSON documents the models return.
package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/aicx/aicx/internal/protocol"
)

// Template is a rendered system/user prompt pair.
type Template struct {
	System string
	User   string
}

const participantSystem = `You are a participant model in a consensus protocol. Your role is to provide the best possible answer to the user prompt.

You must respond with a strict JSON object containing:
- answer: string (required) - Your complete answer to the prompt
- confidence: float (optional) - Your confidence level from 0 to 1

Do not include any text outside the JSON object.`

const critiqueSystem = `You are a participant model critiquing a candidate answer. Your role is to evaluate the candidate answer and provide constructive feedback.

You must respond with a strict JSON object containing:
- approve: bool (required) - Whether you approve this answer
- critical: bool (required) - Whether you have critical objections
- objections: list of strings (required) - Specific objections or concerns
- missing: list of strings (required) - Important missing information
- edits: list of strings (required) - Suggested improvements or edits
- confidence: float (optional) - Your confidence level from 0 to 1

Critical criteria:
- Mark critical=true ONLY for factual errors or advice that could cause harm
- Do NOT mark critical for style issues or minor omissions

Do not include any text outside the JSON object.`

const synthesisSystem = `You are the mediator in a consensus protocol. Your role is to synthesize a candidate answer based on all participant responses.

You must respond with a strict JSON object containing:
- candidate_answer: string (required) - The synthesized answer
- rationale: string (required) - Explanation of your synthesis approach
- common_points: list of strings (required) - Points of agreement among participants
- objections: list of strings (required) - Conflicting viewpoints or concerns
- missing: list of strings (required) - Information gaps identified
- suggested_edits: list of strings (required) - Potential improvements

Do not include any text outside the JSON object.`

const updateSystem = `You are the mediator in a consensus protocol. Your role is to update the candidate answer based on participant critiques.

You must respond with a strict JSON object containing:
- candidate_answer: string (required) - The updated answer incorporating feedback
- rationale: string (required) - Explanation of how you addressed critiques

Do not include any text outside the JSON object.`

var critiqueUserTmpl = template.Must(template.New("critique").Parse(
	`Candidate answer:
{{.Candidate}}

Digest:
{{.Digest}}`))

var critiqueRawUserTmpl = template.Must(template.New("critique_raw").Parse(
	`Candidate answer:
{{.Candidate}}

Previous responses:
{{.Context}}`))

var synthesisUserTmpl = template.Must(template.New("synthesis").Parse(
	`Original prompt:
{{.Prompt}}

Participant responses:
{{range .Responses}}
--- {{.ModelName}} ---
{{.Answer}}
{{end}}`))

var updateUserTmpl = template.Must(template.New("update").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(
	`Candidate answer:
{{.Candidate}}

Critiques:
{{range .Critiques}}
--- {{.ModelName}} (approve={{.Approved}}, critical={{.IsCritical}}) ---
{{if .Objections}}Objections: {{join .Objections "; "}}
{{end}}{{if .Missing}}Missing: {{join .Missing "; "}}
{{end}}{{if .Edits}}Edits: {{join .Edits "; "}}
{{end}}{{end}}`))

// Participant renders the round-1 prompt asking for an independent answer.
func Participant(userPrompt string) Template {
	return Template{System: participantSystem, User: userPrompt}
}

// Critique renders the round-2+ prompt asking a participant to evaluate
// the current candidate against the digest.
func Critique(candidate string, d protocol.Digest) (Template, error) {
	var buf bytes.Buffer
	err := critiqueUserTmpl.Execute(&buf, struct {
		Candidate string
		Digest    string
	}{Candidate: candidate, Digest: FormatDigest(d)})
	if err != nil {
		return Template{}, fmt.Errorf("rendering critique prompt: %w", err)
	}
	return Template{System: critiqueSystem, User: buf.String()}, nil
}

// CritiqueRaw renders the critique prompt with the previous round's
// verbatim answers instead of the digest (share_mode=raw).
func CritiqueRaw(candidate string, responses []protocol.Response) (Template, error) {
	var b strings.Builder
	for _, r := range responses {
		b.WriteString("--- " + r.ModelName + " ---\n")
		b.WriteString(r.Answer + "\n")
	}
	context := strings.TrimRight(b.String(), "\n")
	if context == "" {
		context = "(no prior responses)"
	}
	var buf bytes.Buffer
	err := critiqueRawUserTmpl.Execute(&buf, struct {
		Candidate string
		Context   string
	}{Candidate: candidate, Context: context})
	if err != nil {
		return Template{}, fmt.Errorf("rendering critique prompt: %w", err)
	}
	return Template{System: critiqueSystem, User: buf.String()}, nil
}

// Synthesis renders the mediator's round-1 synthesis prompt from the
// full set of participant answers.
func Synthesis(prompt string, responses []protocol.Response) (Template, error) {
	var buf bytes.Buffer
	err := synthesisUserTmpl.Execute(&buf, struct {
		Prompt    string
		Responses []protocol.Response
	}{Prompt: prompt, Responses: responses})
	if err != nil {
		return Template{}, fmt.Errorf("rendering synthesis prompt: %w", err)
	}
	return Template{System: synthesisSystem, User: buf.String()}, nil
}

// Update renders the mediator's prompt for revising the candidate from a
// round of critiques.
func Update(candidate string, critiques []protocol.Response) (Template, error) {
	var buf bytes.Buffer
	err := updateUserTmpl.Execute(&buf, struct {
		Candidate string
		Critiques []protocol.Response
	}{Candidate: candidate, Critiques: critiques})
	if err != nil {
		return Template{}, fmt.Errorf("rendering update prompt: %w", err)
	}
	return Template{System: updateSystem, User: buf.String()}, nil
}

// FormatDigest renders a digest as the plain-text block embedded in
// critique prompts.
func FormatDigest(d protocol.Digest) string {
	var b strings.Builder
	section := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(label + ":\n")
		for _, item := range items {
			b.WriteString("- " + item + "\n")
		}
	}
	section("Common points", d.CommonPoints)
	section("Objections", d.Objections)
	section("Missing", d.Missing)
	section("Suggested edits", d.SuggestedEdits)
	if b.Len() == 0 {
		return "(no digest yet)"
	}
	return strings.TrimRight(b.String(), "\n")
}
