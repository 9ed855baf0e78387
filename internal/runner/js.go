package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/identity"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

// DefaultJSPoolSize is the number of concurrent js executions allowed
// before callers start queueing.
const DefaultJSPoolSize = 8

// JSRunner executes javascript endpoint bodies in sandboxed goja
// runtimes. Each call gets a fresh runtime with capability globals
// (db, config, secrets, user) bound to the current session.
type JSRunner struct {
	pool   *jsPool
	config map[string]interface{}
	logger *zap.Logger

	progMu   sync.RWMutex
	programs map[string]*goja.Program
}

// NewJSRunner creates a runner with the given concurrency limit.
// config is exposed read-only to endpoint code as the `config` global.
func NewJSRunner(poolSize int, config map[string]interface{}, logger *zap.Logger) (*JSRunner, error) {
	if poolSize <= 0 {
		poolSize = DefaultJSPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := newJSPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &JSRunner{
		pool:     pool,
		config:   config,
		logger:   logger,
		programs: make(map[string]*goja.Program),
	}, nil
}

// Close releases the runtime pool. In-flight executions finish first.
func (r *JSRunner) Close() {
	r.pool.close()
}

// Run executes the endpoint's declared function with arguments taken
// from args in declaration order. Cancellation of ctx interrupts the
// runtime mid-execution.
func (r *JSRunner) Run(ctx context.Context, ep *endpoints.Endpoint, args map[string]interface{}, user *identity.UserContext, session *sqlsession.Session) (interface{}, error) {
	prog, err := r.compiled(ep)
	if err != nil {
		return nil, mxcperr.Wrap(mxcperr.KindHostExecution, err, "source does not compile")
	}

	vm, err := r.pool.acquire(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, mxcperr.Wrap(mxcperr.KindCancelled, err, "cancelled while waiting for a runtime")
		}
		return nil, mxcperr.Wrap(mxcperr.KindHostExecution, err, "runtime unavailable")
	}
	defer r.pool.release()

	sandbox(vm)
	r.bindCapabilities(ctx, vm, user, session)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	result, err := r.invoke(vm, prog, ep, args)
	vm.ClearInterrupt()
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) || ctx.Err() != nil {
			return nil, mxcperr.Wrap(mxcperr.KindCancelled, err, "execution interrupted")
		}
		return nil, mxcperr.Wrap(mxcperr.KindHostExecution, err, "execution failed")
	}
	return result, nil
}

func (r *JSRunner) invoke(vm *goja.Runtime, prog *goja.Program, ep *endpoints.Endpoint, args map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("runtime panic: %v", rec)
		}
	}()

	if _, err = vm.RunProgram(prog); err != nil {
		return nil, err
	}

	fnValue := vm.Get(ep.Source.Function)
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("%q is not a function", ep.Source.Function)
	}

	callArgs := make([]goja.Value, 0, len(ep.Source.FunctionParams))
	for _, name := range ep.Source.FunctionParams {
		callArgs = append(callArgs, vm.ToValue(jsValue(args[name])))
	}

	value, err := fn(goja.Undefined(), callArgs...)
	if err != nil {
		return nil, err
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}

// compiled returns the cached program for the endpoint, compiling on
// first use. The cache key includes the source so a reloaded endpoint
// with new code recompiles.
func (r *JSRunner) compiled(ep *endpoints.Endpoint) (*goja.Program, error) {
	key := ep.ID + "\x00" + ep.Source.ResolvedCode

	r.progMu.RLock()
	prog, ok := r.programs[key]
	r.progMu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := goja.Compile(ep.Name, ep.Source.ResolvedCode, true)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("compiled endpoint source", zap.String("endpoint", ep.ID))

	r.progMu.Lock()
	r.programs[key] = prog
	r.progMu.Unlock()
	return prog, nil
}

// bindCapabilities installs the per-call globals endpoint code may use.
// SQL issued through db.execute runs under the request context, so the
// request deadline cancels a blocked statement that vm.Interrupt alone
// could not reach.
func (r *JSRunner) bindCapabilities(ctx context.Context, vm *goja.Runtime, user *identity.UserContext, session *sqlsession.Session) {
	db := vm.NewObject()
	_ = db.Set("execute", func(call goja.FunctionCall) goja.Value {
		query := call.Argument(0).String()
		params := map[string]interface{}{}
		if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			if m, ok := arg.Export().(map[string]interface{}); ok {
				params = m
			}
		}
		rows, err := session.Execute(ctx, query, params)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(rowsToObjects(rows))
	})
	_ = vm.Set("db", db)

	secrets := vm.NewObject()
	_ = secrets.Set("get", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		value, ok := session.Secret(name)
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(value)
	})
	_ = vm.Set("secrets", secrets)

	cfg := make(map[string]interface{}, len(r.config))
	for k, v := range r.config {
		cfg[k] = v
	}
	_ = vm.Set("config", cfg)

	if user == nil {
		user = identity.Anonymous()
	}
	_ = vm.Set("user", user.Bindings())
}

// sandbox removes host escapes the default runtime would expose.
func sandbox(vm *goja.Runtime) {
	for _, name := range []string{"require", "setTimeout", "setInterval", "setImmediate", "clearTimeout", "clearInterval"} {
		_ = vm.Set(name, goja.Undefined())
	}
}

// jsValue converts coerced argument values into shapes that are
// ergonomic on the js side. Times become RFC 3339 strings and
// durations their canonical string form.
func jsValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	case time.Duration:
		return t.String()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = jsValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = jsValue(e)
		}
		return out
	default:
		return v
	}
}
