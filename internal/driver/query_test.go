package driver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docagg/internal/ast"
	"github.com/roach88/docagg/internal/docclient"
	"github.com/roach88/docagg/internal/pipeline"
	"github.com/roach88/docagg/internal/state"
	"github.com/roach88/docagg/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type invokeReply struct {
	res *docclient.InvokeResult
	err error
}

// fakeClient replays scripted invocation replies in order.
type fakeClient struct {
	mu          sync.Mutex
	replies     []invokeReply
	args        []json.RawMessage
	registered  []string
	registerOut docclient.RegisterOutcome
	registerErr error
}

func (f *fakeClient) InvokeProgram(_ context.Context, id, partition string, arg json.RawMessage) (*docclient.InvokeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, append(json.RawMessage(nil), arg...))
	if len(f.replies) == 0 {
		return nil, errors.New("unexpected invocation")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.res, r.err
}

func (f *fakeClient) RegisterProgram(_ context.Context, id, source string) (docclient.RegisterOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, id)
	return f.registerOut, f.registerErr
}

func ok(body string) invokeReply {
	return invokeReply{res: &docclient.InvokeResult{
		Outcome:       docclient.InvokeOK,
		Status:        200,
		Resource:      json.RawMessage(body),
		RequestCharge: 2.5,
		ActivityID:    "act",
	}}
}

func notFound() invokeReply {
	return invokeReply{res: &docclient.InvokeResult{Outcome: docclient.InvokeNotFound, Status: 404, RequestCharge: 1}}
}

func countStages() []pipeline.Stage {
	return pipeline.New().
		Where(testutil.AmountAbove(3)).
		AggregateSeeded(testutil.CountSeed(), testutil.CountSales()).
		Stages()
}

func newTestQuery(client docclient.Client, opts Options) *Query[map[string]any] {
	opts.Logger = discardLogger()
	return New[map[string]any](client, countStages(), opts)
}

const doneBody = `{"parameters":[],"results":[{"count":2}],"returnedResultCount":1}`

func TestExecuteNext_CompileErrorBeforeAnyCall(t *testing.T) {
	client := &fakeClient{}
	q := New[map[string]any](client, pipeline.New().Where(testutil.AmountAbove(3)).Stages(), Options{Logger: discardLogger()})

	_, err := q.ExecuteNext(context.Background())
	require.Error(t, err)
	assert.True(t, ast.IsCompileError(err))
	assert.Empty(t, client.args)
	assert.True(t, q.HasMoreResults())
}

func TestExecuteNext_SeedsState(t *testing.T) {
	client := &fakeClient{replies: []invokeReply{ok(doneBody)}}
	q := newTestQuery(client, Options{PartitionKey: "p1", MaxItemCount: 10})

	_, err := q.ExecuteNext(context.Background())
	require.NoError(t, err)
	require.Len(t, client.args, 1)
	assert.JSONEq(t,
		`{"parameters":[{"name":"@p1","value":3}],"maxResultCount":10,"returnedResultCount":0}`,
		string(client.args[0]))
}

func TestExecuteNext_RegistersOnNotFound(t *testing.T) {
	for name, outcome := range map[string]docclient.RegisterOutcome{
		"registered": docclient.Registered,
		"conflict":   docclient.RegisterConflict,
	} {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{replies: []invokeReply{notFound(), ok(doneBody)}, registerOut: outcome}
			q := newTestQuery(client, Options{})

			resp, err := q.ExecuteNext(context.Background())
			require.NoError(t, err)

			program, err := q.Program()
			require.NoError(t, err)
			assert.Equal(t, []string{program.ID}, client.registered)
			require.Len(t, client.args, 2)
			assert.Equal(t, client.args[0], client.args[1], "the retry sends the same state")
			assert.Equal(t, 1, resp.Len())
			assert.True(t, resp.Done())
		})
	}
}

func TestExecuteNext_RegistrationFailure(t *testing.T) {
	cause := &docclient.StatusError{Status: 403, Message: "forbidden"}
	client := &fakeClient{replies: []invokeReply{notFound()}, registerErr: cause}
	q := newTestQuery(client, Options{})

	_, err := q.ExecuteNext(context.Background())
	require.Error(t, err)
	assert.True(t, IsRegistrationError(err))
	assert.Equal(t, 403, docclient.StatusOf(err))
	assert.Len(t, client.args, 1, "no retry after a failed registration")
}

func TestExecuteNext_NotFoundAfterRegistration(t *testing.T) {
	client := &fakeClient{replies: []invokeReply{notFound(), notFound()}}
	q := newTestQuery(client, Options{})

	_, err := q.ExecuteNext(context.Background())
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, CodeExecutionFailed, de.Code)
	assert.Len(t, client.args, 2, "retried exactly once")
}

func TestExecuteNext_NoProgress(t *testing.T) {
	refused := &docclient.StatusError{
		Status:  400,
		Message: "Error: The query was not accepted (queryState = {}).",
	}
	client := &fakeClient{replies: []invokeReply{{err: refused}}}
	q := newTestQuery(client, Options{})

	_, err := q.ExecuteNext(context.Background())
	require.Error(t, err)
	assert.True(t, IsNoProgressError(err))
	assert.ErrorIs(t, err, refused)
}

func TestExecuteNext_TransportErrorsPropagate(t *testing.T) {
	cause := errors.New("connection reset")
	client := &fakeClient{replies: []invokeReply{{err: cause}}}
	q := newTestQuery(client, Options{})

	_, err := q.ExecuteNext(context.Background())
	assert.Same(t, cause, err)
	assert.True(t, q.HasMoreResults(), "a failed call can be retried")
}

func TestExecuteNext_InvalidUsageAfterDone(t *testing.T) {
	client := &fakeClient{replies: []invokeReply{ok(doneBody)}}
	q := newTestQuery(client, Options{})

	_, err := q.ExecuteNext(context.Background())
	require.NoError(t, err)
	assert.False(t, q.HasMoreResults())

	_, err = q.ExecuteNext(context.Background())
	assert.True(t, IsInvalidUsageError(err))
	assert.Len(t, client.args, 1, "no call is made after completion")
}

func TestExecuteNext_InvalidContinuation(t *testing.T) {
	client := &fakeClient{}
	q := newTestQuery(client, Options{Continuation: "not a token"})

	_, err := q.ExecuteNext(context.Background())
	assert.True(t, IsContinuationError(err))
	assert.ErrorIs(t, err, state.ErrInvalidToken)
	assert.Empty(t, client.args)
}

func TestExecuteNext_ResumesFromContinuation(t *testing.T) {
	token := `{"parameters":[{"name":"@p1","value":3}],"continuationToken":"+4","partialAggregate":{"count":1},"returnedResultCount":2}`
	client := &fakeClient{replies: []invokeReply{ok(`{"parameters":[],"results":[{"count":4}],"returnedResultCount":3}`)}}
	q := newTestQuery(client, Options{Continuation: token})

	resp, err := q.ExecuteNext(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, token, string(client.args[0]))
	assert.True(t, resp.Done())
}

func TestExecuteNext_RejectsRegressingState(t *testing.T) {
	token := `{"parameters":[],"continuationToken":"+4","returnedResultCount":2}`
	client := &fakeClient{replies: []invokeReply{ok(`{"parameters":[],"returnedResultCount":1}`)}}
	q := newTestQuery(client, Options{Continuation: token})

	_, err := q.ExecuteNext(context.Background())
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, CodeDecodeFailed, de.Code)
}

func TestExecuteNext_EmptyOrInvalidBody(t *testing.T) {
	for name, body := range map[string]string{"empty": "", "not json": "{"} {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{replies: []invokeReply{ok(body)}}
			q := newTestQuery(client, Options{})
			_, err := q.ExecuteNext(context.Background())
			var de *Error
			require.True(t, errors.As(err, &de))
		})
	}
}

func TestResponse_Metadata(t *testing.T) {
	body := `{"parameters":[],"continuationToken":"+2","results":[{"count":1},{"count":"x"}],"returnedResultCount":2}`
	client := &fakeClient{replies: []invokeReply{ok(body)}}
	q := New[struct {
		Count int `json:"count"`
	}](client, countStages(), Options{Logger: discardLogger()})

	resp, err := q.ExecuteNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, 2.5, resp.RequestCharge())
	assert.Equal(t, "act", resp.ActivityID())
	assert.Equal(t, 2, resp.Len())
	assert.False(t, resp.Done())
	assert.NotContains(t, resp.Continuation(), "results")

	items, err := resp.Collect()
	require.Error(t, err, "second result does not decode")
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Count)

	n := 0
	for range resp.Items() {
		n++
	}
	assert.Zero(t, n, "items are read once")
}
