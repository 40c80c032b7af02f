package emulator

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/roach88/docagg/internal/docclient"
)

// SelfLink is the link of the emulated collection.
const SelfLink = "dbs/emulator/colls/documents"

//go:embed server.js
var serverSource string

var serverProgram = goja.MustCompile("server.js", serverSource, false)

// InvokeProgram runs a registered program in partition with arg as its
// argument. A missing program is reported as docclient.InvokeNotFound.
// Exceptions thrown by the program are returned as *docclient.StatusError.
// Cancelling ctx interrupts the program.
func (e *Emulator) InvokeProgram(ctx context.Context, id, partition string, arg json.RawMessage) (*docclient.InvokeResult, error) {
	activityID := e.activityIDs.Generate()

	source, entry, ok, err := e.loadProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &docclient.InvokeResult{
			Outcome:       docclient.InvokeNotFound,
			Status:        docclient.StatusNotFound,
			RequestCharge: e.charge(0),
			ActivityID:    activityID,
		}, nil
	}

	prog, err := e.compile(id, source)
	if err != nil {
		return nil, &docclient.StatusError{Status: docclient.StatusBadRequest, Message: err.Error()}
	}

	inv := &invocation{ctx: ctx, e: e, partition: partition, plans: make(map[string]*queryPlan)}
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if err := inv.install(vm); err != nil {
		return nil, fmt.Errorf("invoke program %s: %w", id, err)
	}
	if _, err := vm.RunProgram(serverProgram); err != nil {
		return nil, inv.failure(id, err)
	}
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, inv.failure(id, err)
	}

	fn, ok := goja.AssertFunction(vm.Get(entry))
	if !ok {
		return nil, &docclient.StatusError{
			Status:  docclient.StatusBadRequest,
			Message: fmt.Sprintf("program %s: entry point %s is not a function", id, entry),
		}
	}

	var args []goja.Value
	if len(arg) > 0 {
		v, err := parseJSON(vm, arg)
		if err != nil {
			return nil, &docclient.StatusError{Status: docclient.StatusBadRequest, Message: "invalid argument: " + err.Error()}
		}
		args = append(args, v)
	}
	if _, err := fn(goja.Undefined(), args...); err != nil {
		return nil, inv.failure(id, err)
	}

	return &docclient.InvokeResult{
		Outcome:       docclient.InvokeOK,
		Status:        200,
		Resource:      inv.body,
		RequestCharge: e.charge(inv.scanned),
		ActivityID:    activityID,
	}, nil
}

func (e *Emulator) compile(id, source string) (*goja.Program, error) {
	if p, ok := e.programs.Get(id); ok {
		return p, nil
	}
	p, err := goja.Compile(id, source, false)
	if err != nil {
		return nil, fmt.Errorf("compile program %s: %w", id, err)
	}
	e.programs.Add(id, p)
	return p, nil
}

func (e *Emulator) charge(scanned int) float64 {
	return 1 + float64(scanned)*e.chargePerDocument
}

// invocation is the host side of one program run.
type invocation struct {
	ctx       context.Context
	e         *Emulator
	partition string
	plans     map[string]*queryPlan
	batches   int
	scanned   int
	body      json.RawMessage
}

func (inv *invocation) install(vm *goja.Runtime) error {
	host := vm.NewObject()
	members := map[string]any{
		"selfLink": SelfLink,
		"predicate": func(call goja.FunctionCall) goja.Value {
			plan, err := inv.plan(call.Argument(0).String())
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(plan.predicate)
		},
		"fetch": func(call goja.FunctionCall) goja.Value {
			page, err := inv.fetch(call.Argument(0).String(), call.Argument(1), call.Argument(2))
			if err != nil {
				panic(vm.NewGoError(err))
			}
			if page == nil {
				return goja.Null()
			}
			return vm.ToValue(page)
		},
		"setBody": func(call goja.FunctionCall) goja.Value {
			v := call.Argument(0)
			if goja.IsUndefined(v) {
				inv.body = json.RawMessage("null")
			} else {
				inv.body = json.RawMessage(v.String())
			}
			return goja.Undefined()
		},
	}
	for name, v := range members {
		if err := host.Set(name, v); err != nil {
			return err
		}
	}
	return vm.Set("__host", host)
}

func (inv *invocation) plan(text string) (*queryPlan, error) {
	if p, ok := inv.plans[text]; ok {
		return p, nil
	}
	p, err := parseQuery(text)
	if err != nil {
		return nil, err
	}
	inv.plans[text] = p
	return p, nil
}

// admit reports whether the invocation may run another query.
func (inv *invocation) admit() bool {
	inv.batches++
	budget := inv.e.maxBatches
	return budget == 0 || (budget > 0 && inv.batches <= budget)
}

// fetch returns the next page for a query, or nil when the query is refused.
func (inv *invocation) fetch(text string, pageSize, continuation goja.Value) (map[string]any, error) {
	plan, err := inv.plan(text)
	if err != nil {
		return nil, err
	}
	if !inv.admit() {
		return nil, nil
	}

	size := inv.e.pageSize
	if n := pageSize.ToInteger(); n > 0 {
		size = min(int(n), maxPageSize)
	}

	offset := 0
	if !goja.IsUndefined(continuation) && !goja.IsNull(continuation) {
		offset, err = parseContinuation(continuation.String())
		if err != nil {
			return nil, err
		}
	}

	docs, more, err := inv.e.scan(inv.ctx, inv.partition, plan, offset, size)
	if err != nil {
		return nil, err
	}
	inv.scanned += len(docs)

	page := map[string]any{"documents": docs, "continuation": nil}
	if more {
		page["continuation"] = formatContinuation(offset + len(docs))
	}
	return page, nil
}

// failure converts a script error into the error returned to the caller.
func (inv *invocation) failure(id string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := inv.ctx.Err(); ctxErr != nil {
			return fmt.Errorf("invoke program %s: %w", id, ctxErr)
		}
		return &docclient.StatusError{Status: docclient.StatusRequestTimeout, Message: interrupted.String()}
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &docclient.StatusError{Status: docclient.StatusBadRequest, Message: exc.Value().String()}
	}
	return fmt.Errorf("invoke program %s: %w", id, err)
}

// scan reads up to limit documents of partition in query order starting at
// offset, and reports whether more remain.
func (e *Emulator) scan(ctx context.Context, partition string, plan *queryPlan, offset, limit int) ([]any, bool, error) {
	var sb strings.Builder
	args := []any{partition}
	sb.WriteString("SELECT body FROM documents WHERE partition_key = ? ORDER BY ")
	for _, path := range plan.orderBy {
		sb.WriteString("json_extract(body, ?), ")
		args = append(args, path)
	}
	sb.WriteString("seq LIMIT ? OFFSET ?")
	args = append(args, limit+1, offset)

	rows, err := e.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, false, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]any, 0, limit)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, false, fmt.Errorf("query documents: %w", err)
		}
		docs = append(docs, body)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("query documents: %w", err)
	}

	more := len(docs) > limit
	if more {
		docs = docs[:limit]
	}
	return docs, more, nil
}

func parseJSON(vm *goja.Runtime, data []byte) (goja.Value, error) {
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("JSON.parse is not available")
	}
	return parse(goja.Undefined(), vm.ToValue(string(data)))
}

func formatContinuation(offset int) string {
	return "+" + strconv.Itoa(offset)
}

func parseContinuation(token string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(token, "+"))
	if err != nil || n < 0 || !strings.HasPrefix(token, "+") {
		return 0, fmt.Errorf("invalid continuation %q", token)
	}
	return n, nil
}
