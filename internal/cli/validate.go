package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docagg/internal/pipeline"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Stages []string `json:"stages"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Check a pipeline definition without generating a program",
		Long: `Check a pipeline definition: the document types, every stage expression
and the pipeline grammar. Nothing is generated or written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	_, compiled, err := loadCompiled(formatter, path)
	if err != nil {
		return err
	}
	if _, err := pipeline.Validate(compiled.Stages); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "invalid pipeline", err)
	}

	result := ValidationResult{Valid: true, Stages: make([]string, len(compiled.Stages))}
	for i, s := range compiled.Stages {
		result.Stages[i] = s.Kind.String()
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Definition is valid (%d stage(s))\n", len(result.Stages))
	return nil
}
