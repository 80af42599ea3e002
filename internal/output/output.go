// Package output persists consensus runs to disk: a keyword-slugged
// markdown file for the answer plus a per-run directory holding the
// full result document and the originating prompt.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aicx/aicx/internal/protocol"
)

// DefaultDir is where runs are saved when --output-dir is not given.
const DefaultDir = "output"

// Filler words excluded from generated filenames.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "been": true, "be": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "must": true,
	"can": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "what": true, "which": true, "who": true, "whom": true,
	"how": true, "when": true, "where": true, "why": true, "all": true,
	"each": true, "every": true, "both": true, "few": true, "more": true,
	"most": true, "other": true, "some": true, "such": true, "no": true,
	"nor": true, "not": true, "only": true, "own": true, "same": true,
	"so": true, "than": true, "too": true, "very": true, "just": true,
	"about": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true,
	"between": true, "under": true, "again": true, "further": true,
	"then": true, "once": true, "here": true, "there": true, "any": true,
	"me": true, "my": true, "create": true, "make": true, "write": true,
	"generate": true, "build": true, "design": true, "develop": true,
	"implement": true, "add": true, "get": true, "set": true, "use": true,
	"using": true, "please": true, "help": true, "need": true, "want": true,
	"like": true, "give": true, "show": true, "explain": true,
	"describe": true, "document": true, "documentation": true, "doc": true,
	"docs": true, "file": true, "files": true,
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// GenerateFilename slugs a prompt into a short hyphenated filename:
// lowercase keywords minus stop words and words of two letters or
// fewer, at most six keywords and fifty characters before the
// extension.
func GenerateFilename(prompt, extension string) string {
	text := nonAlnum.ReplaceAllString(strings.ToLower(prompt), " ")

	var keywords []string
	for _, w := range strings.Fields(text) {
		if len(w) <= 2 || stopWords[w] {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == 6 {
			break
		}
	}
	if len(keywords) == 0 {
		keywords = []string{"output"}
	}

	name := strings.Join(keywords, "-")
	if len(name) > 50 {
		truncated := name[:50]
		if idx := strings.LastIndex(truncated, "-"); idx > 0 {
			truncated = truncated[:idx]
		}
		name = truncated
	}
	return name + extension
}

// NewRunID produces a sortable run identifier: a timestamp prefix plus
// a short uuid tail for uniqueness within the same second.
func NewRunID(now time.Time) string {
	return now.Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Result is the JSON document written for a saved run.
type Result struct {
	RunID            string              `json:"run_id"`
	Prompt           string              `json:"prompt"`
	Output           string              `json:"output"`
	ConsensusReached bool                `json:"consensus_reached"`
	RoundsCompleted  int                 `json:"rounds_completed"`
	Responses        []protocol.Response `json:"responses"`
	Digest           *protocol.Digest    `json:"digest,omitempty"`
	Metadata         map[string]any      `json:"metadata"`
	SavedAt          time.Time           `json:"saved_at"`
}

// SaveRun writes a run's artifacts under dir: the consensus answer as
// slugged markdown at the top level, plus runs/<run-id>/ containing
// result.json and prompt.txt. Returns the path of the markdown file.
func SaveRun(dir, prompt string, result *protocol.ConsensusResult, now time.Time) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	mdPath, err := uniquePath(dir, GenerateFilename(prompt, ".md"))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(mdPath, []byte(result.Output+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing consensus file: %w", err)
	}

	runID := NewRunID(now)
	runDir := filepath.Join(dir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}

	doc := Result{
		RunID:            runID,
		Prompt:           prompt,
		Output:           result.Output,
		ConsensusReached: result.ConsensusReached,
		RoundsCompleted:  result.RoundsCompleted,
		Responses:        result.Responses,
		Digest:           result.Digest,
		Metadata:         result.Metadata,
		SavedAt:          now,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "result.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("writing result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "prompt.txt"), []byte(prompt+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing prompt: %w", err)
	}

	return mdPath, nil
}

// uniquePath appends -1, -2, ... before the extension until the name
// does not collide with an existing file.
func uniquePath(dir, filename string) (string, error) {
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		if i > 10000 {
			return "", fmt.Errorf("could not find a free filename for %s", filename)
		}
	}
}
