package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docagg/internal/definition"
	"github.com/roach88/docagg/internal/pipeline"
	"github.com/roach88/docagg/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // generated program source path
}

// CompilationResult describes a generated program.
type CompilationResult struct {
	Name       string               `json:"name,omitempty"`
	ProgramID  string               `json:"program_id"`
	Query      string               `json:"query"`
	Parameters []querysql.Parameter `json:"parameters"`
	Bodies     CompiledBodies       `json:"bodies"`
	Stages     int                  `json:"stages"`
	Output     string               `json:"output,omitempty"`
}

// CompiledBodies are the generated script function bodies.
type CompiledBodies struct {
	Seed        string `json:"seed"`
	Combine     string `json:"combine"`
	GroupChange string `json:"group_change"`
	Result      string `json:"result"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definition>",
		Short: "Compile a pipeline definition to a server-side program",
		Long: `Compile a pipeline definition (CUE, YAML or JSON) into the generated
server-side program and its source-document query.

Prints the program id, query text, hoisted parameters and the compiled
function bodies. With --output the complete program source is written to
a file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the generated program source to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	d, _, program, err := loadProgram(formatter, path)
	if err != nil {
		return err
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(program.Source), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing program source", err)
		}
		formatter.VerboseLog("Wrote program source to %s", opts.Output)
	}

	result := CompilationResult{
		Name:       d.Name,
		ProgramID:  program.ID,
		Query:      program.QueryText,
		Parameters: program.Parameters,
		Bodies: CompiledBodies{
			Seed:        program.Bodies.Seed,
			Combine:     program.Bodies.Combine,
			GroupChange: program.Bodies.GroupChange,
			Result:      program.Bodies.Result,
		},
		Stages: len(d.Pipeline),
		Output: opts.Output,
	}
	if result.Parameters == nil {
		result.Parameters = []querysql.Parameter{}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d stage(s)\n\n", result.Stages)
	fmt.Fprintf(w, "Program: %s\n", result.ProgramID)
	fmt.Fprintf(w, "Query:   %s\n", result.Query)
	if len(result.Parameters) > 0 {
		fmt.Fprintln(w, "Parameters:")
		for _, p := range result.Parameters {
			fmt.Fprintf(w, "  %s = %v\n", p.Name, p.Value)
		}
	}
	fmt.Fprintln(w, "\nBodies:")
	fmt.Fprintf(w, "  seed:         %s\n", result.Bodies.Seed)
	fmt.Fprintf(w, "  combine:      %s\n", result.Bodies.Combine)
	fmt.Fprintf(w, "  group change: %s\n", result.Bodies.GroupChange)
	fmt.Fprintf(w, "  result:       %s\n", result.Bodies.Result)
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote program source to %s\n", opts.Output)
	}
	return nil
}

// loadProgram loads, builds and assembles the definition at path. Failures
// are reported through formatter and returned as command errors.
func loadProgram(formatter *OutputFormatter, path string) (*definition.Definition, *definition.Compiled, *pipeline.Program, error) {
	d, compiled, err := loadCompiled(formatter, path)
	if err != nil {
		return nil, nil, nil, err
	}
	program, err := compiled.Program()
	if err != nil {
		return nil, nil, nil, formatter.Fail(ExitCommandError, ErrCodeCompile, "compiling pipeline", err)
	}
	formatter.VerboseLog("Generated program %s", program.ID)
	return d, compiled, program, nil
}

// loadCompiled loads and builds the definition at path.
func loadCompiled(formatter *OutputFormatter, path string) (*definition.Definition, *definition.Compiled, error) {
	d, err := LoadDefinition(path)
	if err != nil {
		code, message := describeLoadError(err)
		_ = formatter.Error(code, message, nil)
		return nil, nil, WrapExitError(ExitCommandError, "loading definition", err)
	}
	formatter.VerboseLog("Loaded definition %s with %d type(s) and %d stage(s)", path, len(d.Types), len(d.Pipeline))

	compiled, err := d.Build()
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeCompile, "building definition", err)
	}
	return d, compiled, nil
}
