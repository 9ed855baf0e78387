package runner

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

func jsEndpoint(t *testing.T, name, code, function string) *endpoints.Endpoint {
	t.Helper()
	params, err := endpoints.IntrospectFunction(code, function)
	require.NoError(t, err)
	return &endpoints.Endpoint{
		ID:      "tool:" + name,
		Kind:    endpoints.KindTool,
		Name:    name,
		Enabled: true,
		Source: endpoints.Source{
			Language:       endpoints.LanguageJS,
			ResolvedCode:   code,
			Function:       function,
			FunctionParams: params,
		},
	}
}

func newJSTestRunner(t *testing.T, config map[string]interface{}) *JSRunner {
	t.Helper()
	r, err := NewJSRunner(2, config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestJSRunnerPositionalArgs(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ep := jsEndpoint(t, "greet", `function greet(name, excited) {
		return excited ? "hello " + name + "!" : "hello " + name;
	}`, "greet")

	result, err := r.Run(context.Background(), ep, map[string]interface{}{
		"name":    "ada",
		"excited": true,
	}, nil, session)
	require.NoError(t, err)
	assert.Equal(t, "hello ada!", result)
}

func TestJSRunnerObjectResult(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ep := jsEndpoint(t, "shape", `function shape(n) {
		return {count: n, items: [1, 2, 3]};
	}`, "shape")

	result, err := r.Run(context.Background(), ep, map[string]interface{}{"n": int64(3)}, nil, session)
	require.NoError(t, err)
	obj, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(3), obj["count"])
	assert.Len(t, obj["items"], 3)
}

func TestJSRunnerDBFacade(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ep := jsEndpoint(t, "lookup", `function lookup(a, b) {
		var rows = db.execute("SELECT $a + $b AS total", {a: a, b: b});
		return rows[0].total;
	}`, "lookup")

	result, err := r.Run(context.Background(), ep, map[string]interface{}{
		"a": int64(4), "b": int64(5),
	}, nil, session)
	require.NoError(t, err)
	assert.Equal(t, int64(9), result)
}

func TestJSRunnerDBExecuteHonorsRequestContext(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vm := goja.New()
	sandbox(vm)
	r.bindCapabilities(ctx, vm, nil, session)

	_, err := vm.RunString(`db.execute("SELECT 1")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestJSRunnerSecretsAndConfig(t *testing.T) {
	session, err := sqlsession.Open(context.Background(), sqlsession.Config{},
		map[string]string{"api_key": "k-123"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	r := newJSTestRunner(t, map[string]interface{}{"project": "demo"})

	ep := jsEndpoint(t, "env", `function env() {
		return secrets.get("api_key") + "/" + config.project;
	}`, "env")

	result, runErr := r.Run(context.Background(), ep, nil, nil, session)
	require.NoError(t, runErr)
	assert.Equal(t, "k-123/demo", result)
}

func TestJSRunnerMissingSecretIsNull(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ep := jsEndpoint(t, "nosecret", `function nosecret() {
		return secrets.get("absent") === null;
	}`, "nosecret")

	result, err := r.Run(context.Background(), ep, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestJSRunnerThrowIsHostExecution(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ep := jsEndpoint(t, "boom", `function boom() {
		throw new Error("nope");
	}`, "boom")

	_, err := r.Run(context.Background(), ep, nil, nil, session)
	assert.Equal(t, mxcperr.KindHostExecution, mxcperr.KindOf(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestJSRunnerCancellation(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ep := jsEndpoint(t, "spin", `function spin() {
		while (true) {}
	}`, "spin")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, ep, nil, nil, session)
	assert.Equal(t, mxcperr.KindCancelled, mxcperr.KindOf(err))
}

func TestJSRunnerSandboxHasNoHostEscapes(t *testing.T) {
	session := newTestSession(t)
	r := newJSTestRunner(t, nil)

	ep := jsEndpoint(t, "probe", `function probe() {
		return typeof require === "undefined" && typeof setTimeout === "undefined";
	}`, "probe")

	result, err := r.Run(context.Background(), ep, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestDispatcherRoutesByLanguage(t *testing.T) {
	session := newTestSession(t)
	d := NewDispatcher(NewSQLRunner(nil), newJSTestRunner(t, nil))

	sqlEp := sqlEndpoint("one", "SELECT 1 AS n", nil)
	sqlResult, err := d.Run(context.Background(), sqlEp, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, []map[string]interface{}{{"n": int64(1)}}, sqlResult)

	jsEp := jsEndpoint(t, "two", `function two() { return 2; }`, "two")
	jsResult, err := d.Run(context.Background(), jsEp, nil, nil, session)
	require.NoError(t, err)
	assert.Equal(t, int64(2), jsResult)
}
