// Package ui renders the CLI's styled terminal output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	phaseStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
	consensusStyle = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("10")).Padding(0, 1)
	summaryStyle   = lipgloss.NewStyle().Faint(true).Underline(true)
)

// PrintHeader prints the run banner with the (truncated) prompt.
func PrintHeader(w io.Writer, prompt string) {
	body := "AI Consensus\n" + dimStyle.Render(truncate(prompt, 60))
	fmt.Fprintln(w, headerStyle.Render(body))
}

// PrintPhase prints a phase marker such as "Round 1: collecting answers".
func PrintPhase(w io.Writer, phase string) {
	fmt.Fprintln(w, phaseStyle.Render("▸ "+phase))
}

// PrintSuccess prints a checked status line.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✓ "+msg))
}

// PrintError prints a failed status line.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("✗ "+msg))
}

// PrintConsensus prints the final answer in a bordered block.
func PrintConsensus(w io.Writer, answer string, reached bool) {
	label := "CONSENSUS"
	if !reached {
		label = "BEST EFFORT"
	}
	fmt.Fprintln(w, consensusStyle.Render(label+"\n\n"+answer))
}

// PrintSummary prints the run statistics footer.
func PrintSummary(w io.Writer, rounds, participants, failed int, elapsed time.Duration) {
	fmt.Fprintln(w, summaryStyle.Render("Summary"))
	fmt.Fprintf(w, "Rounds: %d  Participants: %d", rounds, participants)
	if failed > 0 {
		fmt.Fprintf(w, "  %s", errorStyle.Render(fmt.Sprintf("Failed: %d", failed)))
	}
	fmt.Fprintf(w, "\nTotal time: %.1fs\n", elapsed.Seconds())
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}
