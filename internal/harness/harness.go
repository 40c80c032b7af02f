package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/docagg/internal/driver"
	"github.com/roach88/docagg/internal/emulator"
	"github.com/roach88/docagg/internal/pipeline"
)

// Harness runs one scenario against a private emulator.
type Harness struct {
	emu    *emulator.Emulator
	stages []pipeline.Stage
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory emulator. Failed expectations are
// reported in Result.Errors; the returned error is reserved for scenarios
// that cannot run at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario.pipeline == nil {
		return nil, errors.New("scenario has no definition loaded")
	}
	compiled, err := scenario.pipeline.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build definition: %w", err)
	}
	program, err := compiled.Program()
	if err != nil {
		return nil, fmt.Errorf("failed to assemble program: %w", err)
	}

	opts := []emulator.Option{
		emulator.WithActivityIDs(emulator.NewFixedGenerator("activity")),
		emulator.WithDocumentIDs(emulator.NewFixedGenerator("doc")),
	}
	if scenario.Emulator.PageSize > 0 {
		opts = append(opts, emulator.WithPageSize(scenario.Emulator.PageSize))
	}
	if scenario.Emulator.MaxBatches != 0 {
		opts = append(opts, emulator.WithMaxBatches(scenario.Emulator.MaxBatches))
	}
	emu, err := emulator.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory emulator: %w", err)
	}
	defer emu.Close()

	h := &Harness{
		emu:    emu,
		stages: compiled.Stages,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := h.importDocuments(ctx, scenario.Documents); err != nil {
		return nil, fmt.Errorf("failed to import documents: %w", err)
	}

	result := NewResult()
	result.Program = ProgramInfo{ID: program.ID, Query: program.QueryText}

	if err := h.executeQueries(ctx, scenario.Queries, result); err != nil {
		return nil, fmt.Errorf("failed to execute queries: %w", err)
	}

	actx := &AssertionContext{Emulator: emu, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// importDocuments loads documents partition by partition in sorted order so
// generated document ids are stable.
func (h *Harness) importDocuments(ctx context.Context, docs map[string][]map[string]any) error {
	for _, partition := range slices.Sorted(maps.Keys(docs)) {
		raw := make([]json.RawMessage, 0, len(docs[partition]))
		for _, doc := range docs[partition] {
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("partition %s: %w", partition, err)
			}
			raw = append(raw, data)
		}
		if _, err := h.emu.ImportDocuments(ctx, partition, raw); err != nil {
			return fmt.Errorf("partition %s: %w", partition, err)
		}
	}
	return nil
}

func (h *Harness) executeQueries(ctx context.Context, steps []QueryStep, result *Result) error {
	var continuation string
	for qi, step := range steps {
		opts := driver.Options{
			PartitionKey: step.Partition,
			MaxItemCount: step.MaxItems,
			Logger:       h.logger,
		}
		if step.Resume {
			if continuation == "" {
				result.AddError(fmt.Sprintf("queries[%d]: previous query left no continuation to resume", qi))
				return nil
			}
			opts.Continuation = continuation
		}

		q := driver.New[json.RawMessage](h.emu, h.stages, opts)
		for pi, expect := range step.Pages {
			event, err := h.executePage(ctx, q, qi, pi, step.Partition)
			if err != nil {
				return err
			}
			result.AddPage(event)
			if event.Continuation != "" {
				continuation = event.Continuation
			}
			for _, msg := range checkPage(event, expect) {
				result.AddError(fmt.Sprintf("queries[%d].pages[%d]: %s", qi, pi, msg))
			}
		}
	}
	return nil
}

// executePage runs one ExecuteNext. Driver errors are recorded on the event;
// anything else aborts the scenario.
func (h *Harness) executePage(ctx context.Context, q *driver.Query[json.RawMessage], qi, pi int, partition string) (TraceEvent, error) {
	event := TraceEvent{Query: qi, Page: pi, Partition: partition}

	resp, err := q.ExecuteNext(ctx)
	if err != nil {
		var de *driver.Error
		if errors.As(err, &de) {
			event.Error = string(de.Code)
			return event, nil
		}
		return event, err
	}

	items, err := resp.Collect()
	if err != nil {
		return event, err
	}
	event.Results = items
	event.RequestCharge = resp.RequestCharge()
	event.ActivityID = resp.ActivityID()
	event.Continuation = resp.Continuation()
	return event, nil
}
