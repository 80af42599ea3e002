// Command aicx sends a prompt to multiple models and synthesizes a
// consensus answer through mediated critique rounds.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aicx/aicx/internal/config"
	"github.com/aicx/aicx/internal/consensus"
	"github.com/aicx/aicx/internal/eventlog"
	"github.com/aicx/aicx/internal/output"
	"github.com/aicx/aicx/internal/protocol"
	"github.com/aicx/aicx/internal/provider"
	"github.com/aicx/aicx/internal/setup"
	"github.com/aicx/aicx/internal/ui"
)

// Version information set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type flags struct {
	models             string
	mediator           string
	rounds             int
	approvalRatio      float64
	changeThreshold    float64
	maxContextTokens   int
	shareMode          string
	strictJSON         bool
	verbose            bool
	noConsensusSummary bool
	configPath         string
	outputDir          string
	noSave             bool
	file               string
}

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is fine; exported variables already win.
	_ = godotenv.Load()

	var f flags

	root := &cobra.Command{
		Use:     "aicx [prompt]",
		Short:   "Multi-model consensus answers",
		Long:    "aicx sends a prompt to multiple AI models, has a mediator synthesize their answers, and refines the result through critique rounds until the models agree.",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			prompt, err := resolvePrompt(args, f.file)
			if err != nil {
				return err
			}
			return runConsensus(cmd.Context(), prompt, f)
		},
	}
	root.SilenceErrors = true

	root.Flags().StringVar(&f.models, "models", "", "comma-separated participant models (names or shorthands)")
	root.Flags().StringVar(&f.mediator, "mediator", "", "mediator model (must differ from participants)")
	root.Flags().IntVar(&f.rounds, "rounds", 0, "maximum consensus rounds")
	root.Flags().Float64Var(&f.approvalRatio, "approval-ratio", 0, "fraction of approvals required for quorum")
	root.Flags().Float64Var(&f.changeThreshold, "change-threshold", 0, "stop when the candidate changes less than this ratio")
	root.Flags().IntVar(&f.maxContextTokens, "max-context-tokens", 0, "token budget across rounds (0 = unlimited)")
	root.Flags().StringVar(&f.shareMode, "share-mode", "", "how feedback is shared between rounds: digest or raw")
	root.Flags().BoolVar(&f.strictJSON, "strict-json", false, "fail on malformed model output instead of attempting recovery")
	root.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "emit structured event logs to stderr")
	root.Flags().BoolVar(&f.noConsensusSummary, "no-consensus-summary", false, "omit the disagreement summary from the output")
	root.Flags().StringVar(&f.configPath, "config", "", "path to a project config file")
	root.Flags().StringVar(&f.outputDir, "output-dir", output.DefaultDir, "directory for saved runs")
	root.Flags().BoolVar(&f.noSave, "no-save", false, "do not save the run to disk")
	root.Flags().StringVarP(&f.file, "file", "f", "", "read the prompt from a file ('-' for stdin)")

	root.AddCommand(modelsCommand())
	root.AddCommand(setupCommand())
	root.AddCommand(statusCommand())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCodeFor(err)
	}
	return protocol.ExitSuccess
}

func runConsensus(ctx context.Context, prompt string, f flags) error {
	eventlog.Configure(f.verbose)

	ov := config.Overrides{
		Models:    f.models,
		Mediator:  f.mediator,
		ShareMode: f.shareMode,
	}
	if f.rounds > 0 {
		ov.Rounds = &f.rounds
	}
	if f.approvalRatio > 0 {
		ov.ApprovalRatio = &f.approvalRatio
	}
	if f.changeThreshold > 0 {
		ov.ChangeThreshold = &f.changeThreshold
	}
	if f.maxContextTokens > 0 {
		ov.MaxContextTokens = &f.maxContextTokens
	}
	if f.strictJSON {
		ov.StrictJSON = &f.strictJSON
	}
	if f.verbose {
		ov.Verbose = &f.verbose
	}

	cfg, err := config.Load(f.configPath, ov)
	if err != nil {
		return err
	}

	registry, err := provider.NewRegistryFor(cfg)
	if err != nil {
		return err
	}

	styled := ui.IsTerminal(os.Stderr)
	start := time.Now()
	if styled {
		ui.PrintHeader(os.Stderr, prompt)
		ui.PrintPhase(os.Stderr, fmt.Sprintf("Running consensus with %d models (mediator: %s)", len(cfg.Models), cfg.Mediator.Name))
	}

	result, err := consensus.NewRunner(cfg, registry).Run(ctx, prompt, consensus.RunOptions{
		NoConsensusSummary: f.noConsensusSummary,
	})
	if err != nil {
		if styled {
			ui.PrintError(os.Stderr, err.Error())
		}
		return err
	}

	if styled {
		if result.ConsensusReached {
			ui.PrintSuccess(os.Stderr, fmt.Sprintf("Consensus reached in %d round(s)", result.RoundsCompleted))
		} else {
			ui.PrintPhase(os.Stderr, fmt.Sprintf("No consensus after %d round(s); best-effort answer follows", result.RoundsCompleted))
		}
	}

	fmt.Println(result.Output)

	if !f.noSave {
		path, saveErr := output.SaveRun(f.outputDir, prompt, result, time.Now())
		if saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save run: %v\n", saveErr)
		} else if styled {
			ui.PrintSuccess(os.Stderr, "Saved to "+path)
		}
	}

	if styled {
		failed := 0
		if names, ok := result.Metadata["failed_models"].([]string); ok {
			failed = len(names)
		}
		ui.PrintSummary(os.Stderr, result.RoundsCompleted, len(cfg.Models), failed, time.Since(start))
	}
	return nil
}

// resolvePrompt takes the prompt from the positional arg, --file, or
// stdin when --file is "-".
func resolvePrompt(args []string, file string) (string, error) {
	if file != "" {
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return "", protocol.NewConfigError("reading prompt: %v", err)
		}
		prompt := strings.TrimSpace(string(data))
		if prompt == "" {
			return "", protocol.NewConfigError("prompt file %s is empty", file)
		}
		return prompt, nil
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", protocol.NewConfigError("no prompt given: pass one as an argument or with --file")
	}
	return args[0], nil
}

func modelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known model shorthands and providers",
		Run: func(cmd *cobra.Command, args []string) {
			prefs := config.LoadUserPreferences()
			fmt.Fprintln(cmd.OutOrStdout(), "Built-in shorthands:")
			for _, s := range []string{"gpt", "claude", "gemini"} {
				p, id := config.ExpandShorthand(s, config.UserPreferences{})
				fmt.Fprintf(cmd.OutOrStdout(), "  %-8s -> %s (%s)\n", s, id, p)
			}
			if len(prefs.Shorthands) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), "User shorthands:")
				keys := make([]string, 0, len(prefs.Shorthands))
				for k := range prefs.Shorthands {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-8s -> %s\n", k, prefs.Shorthands[k])
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "Providers: %s\n", strings.Join(provider.Available(), ", "))
		},
	}
}

func setupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive wizard to configure default models and shorthands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := setup.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout()).Run(); code != 0 {
				return protocol.NewConfigError("setup did not complete")
			}
			return nil
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show API key availability and current defaults",
		Run: func(cmd *cobra.Command, args []string) {
			setup.Status(cmd.OutOrStdout())
		},
	}
}

// exitCodeFor maps the error taxonomy to process exit codes.
func exitCodeFor(err error) int {
	var cerr *protocol.ConfigError
	if errors.As(err, &cerr) {
		return protocol.ExitConfigError
	}
	var qerr *protocol.QuorumError
	if errors.As(err, &qerr) {
		return protocol.ExitQuorumFailure
	}
	var zerr *protocol.ZeroResponseError
	if errors.As(err, &zerr) {
		return protocol.ExitProviderError
	}
	var perr *protocol.ProviderError
	if errors.As(err, &perr) {
		if perr.Kind == protocol.ErrConfig {
			return protocol.ExitConfigError
		}
		return protocol.ExitProviderError
	}
	var parseErr *protocol.ParseError
	if errors.As(err, &parseErr) {
		return protocol.ExitProviderError
	}
	return protocol.ExitInternalError
}
