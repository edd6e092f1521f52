package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamplan/internal/catalog"
	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidateResult is the output of a successful validation.
type ValidateResult struct {
	Valid    bool     `json:"valid"`
	Streams  int      `json:"streams"`
	Plans    int      `json:"plans"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <specs-dir> [plan-file...]",
		Short: "Validate stream specs and plans without compiling",
		Long: `Validate the stream specs in a directory and, optionally, plan files.

Every error is reported, not only the first. Plans are checked against the
declared streams: scanned streams must exist with the schema the plan
expects. Plan warnings are printed but do not fail validation.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], args[1:], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, specsDir string, planFiles []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded := LoadCatalog(specsDir)
	if loaded.Fatal {
		_ = formatter.Problems("validation failed", loaded.Problems)
		return NewExitError(loaded.exitCode(), "specs cannot be loaded")
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, specsDir)

	problems := loaded.Problems
	result := &ValidateResult{Streams: loaded.Catalog.Len(), Plans: len(planFiles)}

	for _, file := range planFiles {
		formatter.VerboseLog("Validating plan: %s", file)
		warnings, planProblems := validatePlan(loaded.Catalog, file)
		problems = append(problems, planProblems...)
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", file, w))
		}
	}

	if len(problems) > 0 {
		_ = formatter.Problems(fmt.Sprintf("validation failed with %d error(s)", len(problems)), problems)
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(problems)))
	}

	result.Valid = true
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✓ All specs valid (%d stream(s), %d plan(s))", result.Streams, result.Plans)
	if len(result.Warnings) > 0 {
		sb.WriteString("\n\nWarnings:")
		for _, w := range result.Warnings {
			fmt.Fprintf(&sb, "\n  %s", w)
		}
	}
	return formatter.Success(sb.String())
}

// validatePlan decodes and validates one plan file and checks its scans
// against the catalog.
func validatePlan(c *catalog.Catalog, file string) ([]string, []Problem) {
	root, problem, err := loadPlan(file)
	if err != nil {
		return nil, []Problem{*problem}
	}

	validation, err := plan.Validate(root)
	if err != nil {
		return nil, []Problem{{Code: planErrorCode(err), Source: file, Message: err.Error()}}
	}

	var problems []Problem
	plan.Walk(root, func(n plan.Node) bool {
		scan, ok := n.(*plan.ScanNode)
		if !ok {
			return true
		}
		declared, err := c.Scan(scan.ID(), scan.Stream())
		if err != nil {
			code := ErrCodeGeneric
			if errors.Is(err, plan.ErrStreamNotFound) {
				code = ErrCodeStreamNotFound
				err = fmt.Errorf("stream %q is not declared", scan.Stream())
			}
			problems = append(problems, Problem{Code: code, Source: file, Field: string(scan.ID()), Message: err.Error()})
			return true
		}
		if msg := scanMismatch(declared, scan); msg != "" {
			problems = append(problems, Problem{
				Code:    ErrCodeSchemaMismatch,
				Source:  file,
				Field:   string(scan.ID()),
				Message: msg,
			})
		}
		return true
	})
	return validation.Warnings, problems
}

// scanMismatch describes how a plan's scan disagrees with the declared
// stream, or returns "".
func scanMismatch(declared, scan *plan.ScanNode) string {
	switch {
	case !declared.Schema().Equal(scan.Schema()):
		return fmt.Sprintf("stream %q is declared as %s, plan expects %s", scan.Stream(), declared.Schema(), scan.Schema())
	case !schema.SameKey(declared.KeyField(), scan.KeyField()):
		return fmt.Sprintf("stream %q is keyed by %s, plan expects %s", scan.Stream(), keyLabel(declared.KeyField()), keyLabel(scan.KeyField()))
	case declared.OutputType() != scan.OutputType():
		return fmt.Sprintf("stream %q is a %s, plan expects a %s", scan.Stream(), declared.OutputType(), scan.OutputType())
	}
	return ""
}

func keyLabel(f *schema.Field) string {
	if f == nil {
		return "nothing"
	}
	return strconv.Quote(f.Name)
}
