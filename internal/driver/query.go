// Package driver executes an assembled pipeline against a document database,
// one invocation of the generated program per ExecuteNext call.
//
// The program is materialized on the first call and registered on demand:
// when the database reports it missing, the driver registers it, tolerating
// a concurrent registration of the same id, and retries once.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/docagg/internal/docclient"
	"github.com/roach88/docagg/internal/metrics"
	"github.com/roach88/docagg/internal/pipeline"
	"github.com/roach88/docagg/internal/state"
)

// Options configure a Query.
type Options struct {
	// PartitionKey selects the partition the program runs in.
	PartitionKey string
	// MaxItemCount caps the total number of results of the run. Zero or
	// less means no cap.
	MaxItemCount int
	// Continuation resumes a run from Response.Continuation.
	Continuation string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics defaults to metrics.Nop.
	Metrics metrics.Recorder
}

// Query is one run of a pipeline.
//
// A Query is not safe for concurrent use: ExecuteNext calls must not
// overlap.
type Query[T any] struct {
	client docclient.Client
	stages []pipeline.Stage
	opts   Options
	log    *slog.Logger
	rec    metrics.Recorder

	program *pipeline.Program
	state   *state.State
}

// New returns a Query over stages. Nothing is compiled or sent until the
// first ExecuteNext.
func New[T any](client docclient.Client, stages []pipeline.Stage, opts Options) *Query[T] {
	q := &Query[T]{
		client: client,
		stages: append([]pipeline.Stage(nil), stages...),
		opts:   opts,
		log:    opts.Logger,
		rec:    opts.Metrics,
	}
	if q.log == nil {
		q.log = slog.Default()
	}
	if q.rec == nil {
		q.rec = metrics.Nop{}
	}
	return q
}

// Program returns the generated program, assembling it on first use.
func (q *Query[T]) Program() (*pipeline.Program, error) {
	if q.program == nil {
		p, err := pipeline.Assemble(q.stages)
		if err != nil {
			return nil, err
		}
		q.program = p
	}
	return q.program, nil
}

// HasMoreResults reports whether ExecuteNext may be called.
func (q *Query[T]) HasMoreResults() bool {
	return q.state == nil || !q.state.Done()
}

// ExecuteNext runs the program once and returns the results it produced.
// Compile errors are returned before anything is sent.
func (q *Query[T]) ExecuteNext(ctx context.Context) (*Response[T], error) {
	if !q.HasMoreResults() {
		return nil, &Error{Code: CodeInvalidUsage, Message: "all results have already been returned", ProgramID: q.program.ID}
	}
	if err := q.start(); err != nil {
		return nil, err
	}

	arg, err := q.state.Argument()
	if err != nil {
		return nil, fmt.Errorf("encode execution state: %w", err)
	}

	res, err := q.invoke(ctx, arg)
	if err != nil {
		return nil, err
	}
	if res.Outcome == docclient.InvokeNotFound {
		if err := q.register(ctx); err != nil {
			return nil, err
		}
		if res, err = q.invoke(ctx, arg); err != nil {
			return nil, err
		}
		if res.Outcome == docclient.InvokeNotFound {
			return nil, &Error{Code: CodeExecutionFailed, Message: "program not found after registration", ProgramID: q.program.ID}
		}
	}

	next, err := q.accept(res)
	if err != nil {
		return nil, err
	}

	resp := &Response[T]{
		results:       next.Results,
		requestCharge: res.RequestCharge,
		activityID:    res.ActivityID,
		statusCode:    res.Status,
	}
	if !next.Done() {
		if resp.continuation, err = state.Encode(next); err != nil {
			return nil, &Error{Code: CodeDecodeFailed, Message: "cannot encode continuation", ProgramID: q.program.ID, Err: err}
		}
	}
	q.state = next

	q.log.Debug("program invoked",
		"program_id", q.program.ID,
		"partition", q.opts.PartitionKey,
		"results", len(next.Results),
		"returned", next.ReturnedResultCount,
		"request_charge", res.RequestCharge,
		"activity_id", res.ActivityID,
		"done", next.Done(),
	)
	return resp, nil
}

// start materializes the program and the initial state.
func (q *Query[T]) start() error {
	if _, err := q.Program(); err != nil {
		return err
	}
	if q.state != nil {
		return nil
	}

	if q.opts.Continuation != "" {
		s, err := state.Decode(q.opts.Continuation)
		if err != nil {
			return &Error{Code: CodeInvalidContinuation, Message: "cannot resume", ProgramID: q.program.ID, Err: err}
		}
		q.state = s
		return nil
	}

	params := make([]state.Parameter, len(q.program.Parameters))
	for i, p := range q.program.Parameters {
		params[i] = state.Parameter{Name: p.Name, Value: p.Value}
	}
	q.state = state.New(params, q.opts.MaxItemCount)
	return nil
}

func (q *Query[T]) invoke(ctx context.Context, arg []byte) (*docclient.InvokeResult, error) {
	res, err := q.client.InvokeProgram(ctx, q.program.ID, q.opts.PartitionKey, arg)
	if err != nil {
		q.rec.Invocation(metrics.OutcomeError, 0, 0)
		var se *docclient.StatusError
		if errors.As(err, &se) && strings.Contains(se.Message, pipeline.NotAcceptedMessage) {
			return nil, &Error{
				Code:      CodeNoProgress,
				Message:   "the database refused the first query of the run",
				ProgramID: q.program.ID,
				Err:       err,
			}
		}
		return nil, err
	}
	if res.Outcome == docclient.InvokeNotFound {
		q.rec.Invocation(metrics.OutcomeNotFound, res.RequestCharge, 0)
	}
	return res, nil
}

func (q *Query[T]) register(ctx context.Context) error {
	outcome, err := q.client.RegisterProgram(ctx, q.program.ID, q.program.Source)
	if err != nil {
		q.rec.Registration(metrics.OutcomeError)
		return &Error{Code: CodeRegistrationFailed, Message: "cannot register program", ProgramID: q.program.ID, Err: err}
	}
	q.rec.Registration(outcome.String())
	q.log.Info("program registered",
		"program_id", q.program.ID,
		"outcome", outcome.String(),
	)
	return nil
}

// accept decodes the returned state and checks it against the current one.
func (q *Query[T]) accept(res *docclient.InvokeResult) (*state.State, error) {
	if len(res.Resource) == 0 {
		q.rec.Invocation(metrics.OutcomeError, res.RequestCharge, 0)
		return nil, &Error{Code: CodeExecutionFailed, Message: "program returned no state", ProgramID: q.program.ID}
	}
	next, err := state.Parse(res.Resource)
	if err != nil {
		q.rec.Invocation(metrics.OutcomeError, res.RequestCharge, 0)
		return nil, &Error{Code: CodeDecodeFailed, Message: "cannot decode returned state", ProgramID: q.program.ID, Err: err}
	}
	if next.ReturnedResultCount < q.state.ReturnedResultCount {
		q.rec.Invocation(metrics.OutcomeError, res.RequestCharge, 0)
		return nil, &Error{
			Code:      CodeDecodeFailed,
			Message:   fmt.Sprintf("returned result count went from %d to %d", q.state.ReturnedResultCount, next.ReturnedResultCount),
			ProgramID: q.program.ID,
		}
	}
	if next.MaxResultCount != nil && next.ReturnedResultCount > *next.MaxResultCount {
		q.rec.Invocation(metrics.OutcomeError, res.RequestCharge, 0)
		return nil, &Error{
			Code:      CodeDecodeFailed,
			Message:   fmt.Sprintf("returned %d results past the cap of %d", next.ReturnedResultCount, *next.MaxResultCount),
			ProgramID: q.program.ID,
		}
	}
	q.rec.Invocation(metrics.OutcomeOK, res.RequestCharge, len(next.Results))
	return next, nil
}
