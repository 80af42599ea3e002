// Package setup implements the interactive configuration wizard and
// the status report. The wizard is line-oriented and reads from any
// reader so tests can script it.
package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aicx/aicx/internal/config"
)

// Models offered per provider, best first.
var availableModels = map[string][]string{
	"openai": {"gpt-4o", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"},
	"anthropic": {
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-opus-20240229",
	},
	"gemini": {"gemini-2.0-flash-exp", "gemini-1.5-pro", "gemini-1.5-flash"},
}

var providerOrder = []string{"openai", "anthropic", "gemini"}

var shorthandProviders = []struct {
	Shorthand string
	Provider  string
}{
	{"gpt", "openai"},
	{"claude", "anthropic"},
	{"gemini", "gemini"},
}

// Wizard drives the interactive setup flow.
type Wizard struct {
	in  *bufio.Scanner
	out io.Writer

	// KeyCheck and Save are swappable for tests.
	KeyCheck func(provider string) bool
	Save     func(config.UserPreferences) error
}

// NewWizard builds a wizard over the given streams.
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		in:       bufio.NewScanner(in),
		out:      out,
		KeyCheck: config.CheckAPIKey,
		Save:     config.SaveUserPreferences,
	}
}

// Run walks the user through model, mediator and shorthand selection
// and persists the result. Returns the process exit code.
func (w *Wizard) Run() int {
	fmt.Fprintln(w.out, "AI Consensus CLI - Setup Wizard")
	fmt.Fprintln(w.out, strings.Repeat("=", 40))
	fmt.Fprintln(w.out)

	available := w.printKeyStatus()
	if len(available) == 0 {
		fmt.Fprintln(w.out, "No API keys found. Please set at least one of:")
		fmt.Fprintln(w.out, "  - OPENAI_API_KEY")
		fmt.Fprintln(w.out, "  - ANTHROPIC_API_KEY")
		fmt.Fprintln(w.out, "  - GEMINI_API_KEY")
		fmt.Fprintln(w.out)
		fmt.Fprintln(w.out, "Then run setup again.")
		return 1
	}

	existing := config.LoadUserPreferences()

	selectedModels := w.selectParticipants(available)
	mediator := w.selectMediator(available, selectedModels)
	shorthands := w.selectShorthands(available, existing)

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, strings.Repeat("=", 40))
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration Summary:")
	if len(selectedModels) > 0 {
		fmt.Fprintf(w.out, "  Default models: %s\n", strings.Join(selectedModels, ", "))
	} else {
		fmt.Fprintln(w.out, "  Default models: (using built-in defaults)")
	}
	fmt.Fprintf(w.out, "  Default mediator: %s\n", mediator)
	if len(shorthands) > 0 {
		fmt.Fprintln(w.out, "  Shorthands:")
		keys := make([]string, 0, len(shorthands))
		for k := range shorthands {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w.out, "    %s -> %s\n", k, shorthands[k])
		}
	}
	fmt.Fprintln(w.out)

	confirm := w.prompt("Save this configuration? [Y/n]: ", "y")
	if c := strings.ToLower(confirm); c != "y" && c != "yes" {
		fmt.Fprintln(w.out, "Configuration not saved.")
		return 0
	}

	prefs := config.UserPreferences{
		DefaultModels:   selectedModels,
		DefaultMediator: mediator,
		Shorthands:      shorthands,
	}
	if err := w.Save(prefs); err != nil {
		fmt.Fprintf(w.out, "Failed to save configuration: %v\n", err)
		return 1
	}

	fmt.Fprintln(w.out)
	fmt.Fprintf(w.out, "Configuration saved to: %s\n", config.UserConfigPath())
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "You can now run:")
	fmt.Fprintln(w.out, `  aicx "Your prompt here"`)
	return 0
}

func (w *Wizard) printKeyStatus() []string {
	fmt.Fprintln(w.out, "API Key Status:")
	var available []string
	for _, p := range providerOrder {
		status := "NOT SET"
		if w.KeyCheck(p) {
			status = "OK"
			available = append(available, p)
		}
		fmt.Fprintf(w.out, "  %s: %s\n", strings.ToUpper(p), status)
	}
	fmt.Fprintln(w.out)
	return available
}

func (w *Wizard) selectParticipants(providers []string) []string {
	fmt.Fprintln(w.out, "Select default participant models:")
	fmt.Fprintln(w.out)

	var selected []string
	for _, p := range providers {
		models := availableModels[p]
		fmt.Fprintf(w.out, "%s models:\n", strings.ToUpper(p))
		for i, m := range models {
			fmt.Fprintf(w.out, "  %d. %s\n", i+1, m)
		}
		fmt.Fprintf(w.out, "  0. Skip %s\n", p)

		idx := w.promptIndex(fmt.Sprintf("Select %s model [1]: ", p), 0, len(models))
		if idx > 0 {
			selected = append(selected, models[idx-1])
		}
	}
	return selected
}

func (w *Wizard) selectMediator(providers, participants []string) string {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Select default mediator:")

	taken := make(map[string]bool, len(participants))
	for _, m := range participants {
		taken[m] = true
	}

	var candidates []string
	for _, p := range providers {
		for _, m := range availableModels[p] {
			if !taken[m] {
				candidates = append(candidates, m)
			}
		}
	}
	if len(candidates) == 0 {
		for _, p := range providers {
			candidates = append(candidates, availableModels[p]...)
		}
	}

	for i, m := range candidates {
		fmt.Fprintf(w.out, "  %d. %s\n", i+1, m)
	}
	idx := w.promptIndex("Select mediator [1]: ", 1, len(candidates))
	return candidates[idx-1]
}

func (w *Wizard) selectShorthands(providers []string, existing config.UserPreferences) map[string]string {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Shorthand Configuration:")

	keyed := make(map[string]bool, len(providers))
	for _, p := range providers {
		keyed[p] = true
	}

	shorthands := make(map[string]string)
	for _, sp := range shorthandProviders {
		if !keyed[sp.Provider] {
			continue
		}
		models := availableModels[sp.Provider]
		fmt.Fprintf(w.out, "'%s' shorthand maps to:\n", sp.Shorthand)
		for i, m := range models {
			marker := ""
			if m == existing.Shorthands[sp.Shorthand] {
				marker = " (current)"
			}
			fmt.Fprintf(w.out, "  %d. %s%s\n", i+1, m, marker)
		}
		idx := w.promptIndex(fmt.Sprintf("Select model for '%s' [1]: ", sp.Shorthand), 1, len(models))
		shorthands[sp.Shorthand] = models[idx-1]
	}
	return shorthands
}

// promptIndex reads a menu choice in [min, max], re-prompting on bad
// input. Empty input means 1.
func (w *Wizard) promptIndex(message string, min, max int) int {
	for {
		raw := w.prompt(message, "1")
		idx, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintln(w.out, "Please enter a number")
			continue
		}
		if idx < min || idx > max {
			fmt.Fprintf(w.out, "Please enter %d-%d\n", min, max)
			continue
		}
		return idx
	}
}

func (w *Wizard) prompt(message, defaultValue string) string {
	fmt.Fprint(w.out, message)
	if !w.in.Scan() {
		return defaultValue
	}
	line := strings.TrimSpace(w.in.Text())
	if line == "" {
		return defaultValue
	}
	return line
}

// Status prints the current configuration report to out.
func Status(out io.Writer) int {
	fmt.Fprintln(out, "AI Consensus CLI - Status")
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "API Keys:")
	for _, p := range providerOrder {
		status := "NOT SET"
		if config.CheckAPIKey(p) {
			status = "OK"
		}
		fmt.Fprintf(out, "  %s: %s\n", strings.ToUpper(p), status)
	}
	fmt.Fprintln(out)

	path := config.UserConfigPath()
	prefs := config.LoadUserPreferences()

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  User config: %s\n", path)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(out, "  Status: Found")
	} else {
		fmt.Fprintln(out, "  Status: Not configured (run: aicx setup)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Defaults:")
	if len(prefs.DefaultModels) > 0 {
		fmt.Fprintf(out, "  Models: %s\n", strings.Join(prefs.DefaultModels, ", "))
	} else {
		fmt.Fprintln(out, "  Models: (built-in defaults)")
	}
	if prefs.DefaultMediator != "" {
		fmt.Fprintf(out, "  Mediator: %s\n", prefs.DefaultMediator)
	} else {
		fmt.Fprintln(out, "  Mediator: (built-in default)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Shorthand Aliases:")
	if len(prefs.Shorthands) > 0 {
		keys := make([]string, 0, len(prefs.Shorthands))
		for k := range prefs.Shorthands {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s -> %s\n", k, prefs.Shorthands[k])
		}
	} else {
		fmt.Fprintln(out, "  gpt -> gpt-4o")
		fmt.Fprintln(out, "  claude -> claude-sonnet-4-20250514")
		fmt.Fprintln(out, "  gemini -> gemini-2.0-flash-exp")
	}
	return 0
}
