package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/docagg/internal/driver"
	"github.com/roach88/docagg/internal/emulator"
	"github.com/roach88/docagg/internal/fanout"
	"github.com/roach88/docagg/internal/metrics"
	"github.com/roach88/docagg/internal/pipeline"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Partitions   []string
	MaxItems     int
	Continuation string
	Pages        int // pages per partition; 0 runs until done
	Workers      int
	MetricsFile  string
}

// RunResult is the outcome of a run over one or more partitions.
type RunResult struct {
	ProgramID  string            `json:"program_id"`
	Partitions []PartitionResult `json:"partitions"`
}

// PartitionResult is the outcome of a run over one partition.
type PartitionResult struct {
	Partition     string            `json:"partition"`
	Results       []json.RawMessage `json:"results"`
	Pages         int               `json:"pages"`
	RequestCharge float64           `json:"request_charge"`
	Continuation  string            `json:"continuation,omitempty"`
	Done          bool              `json:"done"`
	ErrorCode     string            `json:"error_code,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <definition>",
		Short: "Execute a pipeline against the emulator",
		Long: `Execute a pipeline definition against the emulator database.

Each --partition is run independently; partitions run concurrently on a
bounded worker pool. Pages are fetched until the run is done, or until
--pages pages were returned. An unfinished run prints its continuation,
which --continuation resumes (single partition only).

Example:
  docagg run --db ./docagg.db -p store-1 -p store-2 ./pipeline.cue
  docagg run -p store-1 --pages 1 --max-items 10 ./pipeline.yaml
  docagg run -p store-1 --continuation '<token>' ./pipeline.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Partitions, "partition", "p", nil, "partition key to run in (repeatable, required)")
	cmd.Flags().IntVar(&opts.MaxItems, "max-items", 0, "cap on total results per partition (overrides query.max_item_count)")
	cmd.Flags().StringVar(&opts.Continuation, "continuation", "", "resume a run from its continuation")
	cmd.Flags().IntVar(&opts.Pages, "pages", 0, "pages to fetch per partition (0 = until done)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent partitions (overrides query.workers)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	_ = cmd.MarkFlagRequired("partition")

	return cmd
}

func runPipeline(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Continuation != "" && len(opts.Partitions) != 1 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--continuation requires exactly one --partition", nil)
	}
	if opts.Pages < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--pages must not be negative", nil)
	}

	cfg, err := opts.Config()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "loading config", err)
	}
	if cmd.Flags().Changed("max-items") {
		cfg.Query.MaxItemCount = opts.MaxItems
	}
	if cmd.Flags().Changed("workers") {
		cfg.Query.Workers = opts.Workers
	}
	logger, err := opts.Logger(cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "configuring logger", err)
	}

	_, compiled, program, err := loadProgram(formatter, path)
	if err != nil {
		return err
	}

	emu, err := emulator.Open(cfg.Emulator.Path, cfg.Emulator.Options()...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "opening emulator", err)
	}
	defer func() {
		if closeErr := emu.Close(); closeErr != nil {
			logger.Error("error closing emulator", "error", closeErr)
		}
	}()

	var rec metrics.Recorder = metrics.Nop{}
	var reg *prometheus.Registry
	if opts.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		rec = metrics.NewPrometheus(reg)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("running pipeline",
		"program_id", program.ID,
		"partitions", len(opts.Partitions),
		"workers", cfg.Query.Workers,
		"db", cfg.Emulator.Path,
	)

	run := func(ctx context.Context, partition string) (PartitionResult, error) {
		return runPartition(ctx, partitionRun{
			client:    emu,
			stages:    compiled.Stages,
			partition: partition,
			options: driver.Options{
				PartitionKey: partition,
				MaxItemCount: cfg.Query.MaxItemCount,
				Continuation: opts.Continuation,
				Logger:       logger.With("partition", partition),
				Metrics:      rec,
			},
			pages: opts.Pages,
		})
	}
	partitions, runErr := fanout.Run(ctx, cfg.Query.Workers, opts.Partitions, run)
	for i := range partitions {
		partitions[i].Partition = opts.Partitions[i]
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			logger.Warn("cannot write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	result := RunResult{ProgramID: program.ID, Partitions: partitions}
	if err := outputRun(formatter, result); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

type partitionRun struct {
	client    *emulator.Emulator
	stages    []pipeline.Stage
	partition string
	options   driver.Options
	pages     int
}

// runPartition drives one query until it is done or the page limit is hit.
// The partial result is returned alongside any error.
func runPartition(ctx context.Context, r partitionRun) (PartitionResult, error) {
	q := driver.New[json.RawMessage](r.client, r.stages, r.options)
	res := PartitionResult{Partition: r.partition, Results: []json.RawMessage{}}

	for q.HasMoreResults() && (r.pages == 0 || res.Pages < r.pages) {
		resp, err := q.ExecuteNext(ctx)
		if err != nil {
			res.Error = err.Error()
			var de *driver.Error
			if errors.As(err, &de) {
				res.ErrorCode = string(de.Code)
			}
			return res, err
		}
		items, err := resp.Collect()
		if err != nil {
			res.Error = err.Error()
			return res, err
		}
		res.Pages++
		res.Results = append(res.Results, items...)
		res.RequestCharge += resp.RequestCharge()
		res.Continuation = resp.Continuation()
	}
	res.Done = !q.HasMoreResults()
	if res.Done {
		res.Continuation = ""
	}
	return res, nil
}

func outputRun(formatter *OutputFormatter, result RunResult) error {
	if formatter.JSON() {
		failed := false
		for _, p := range result.Partitions {
			failed = failed || p.Error != ""
		}
		if failed {
			enc := json.NewEncoder(formatter.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: ErrCodeQuery, Message: "one or more partitions failed"},
			})
		}
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Program: %s\n", result.ProgramID)
	for _, p := range result.Partitions {
		fmt.Fprintf(w, "\nPartition %s: %d result(s) in %d page(s), request charge %.2f\n",
			p.Partition, len(p.Results), p.Pages, p.RequestCharge)
		for _, item := range p.Results {
			fmt.Fprintf(w, "  %s\n", item)
		}
		switch {
		case p.Error != "":
			fmt.Fprintf(w, "✗ %s\n", p.Error)
		case p.Done:
			fmt.Fprintln(w, "✓ done")
		default:
			fmt.Fprintf(w, "Continuation: %s\n", p.Continuation)
		}
	}
	return nil
}
