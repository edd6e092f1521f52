package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamplan/internal/plan"
)

// ExplainResult is the output of the explain command.
type ExplainResult struct {
	Plan        string `json:"plan"`
	Fingerprint string `json:"fingerprint"`
	Explain     string `json:"explain"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "explain <specs-dir> <plan-file>",
		Short:         "Print a plan tree with schemas, keys and partition counts",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runExplain(opts *RootOptions, specsDir, planFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded := LoadCatalog(specsDir)
	if len(loaded.Problems) > 0 {
		_ = formatter.Problems("stream specs have errors", loaded.Problems)
		return NewExitError(loaded.exitCode(), "specs cannot be loaded")
	}

	root, problem, err := loadPlan(planFile)
	if err != nil {
		_ = formatter.Problems("plan cannot be loaded", []Problem{*problem})
		return err
	}

	out, err := plan.Explain(root, loaded.Catalog)
	if err != nil {
		_ = formatter.Error(planErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "explain failed", err)
	}

	if opts.Format != "json" {
		return formatter.Success(strings.TrimRight(out, "\n"))
	}
	fingerprint, err := plan.Fingerprint(root)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "fingerprint plan", err)
	}
	return formatter.Success(ExplainResult{Plan: string(root.ID()), Fingerprint: fingerprint, Explain: out})
}
