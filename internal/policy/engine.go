package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/typesys"
)

// newEnv builds the CEL environment with the three implicit bindings
// available to endpoint conditions.
func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("user", cel.DynType),
		cel.Variable("input", cel.DynType),
		cel.Variable("response", cel.DynType),
	)
}

var checkEnvOnce = sync.OnceValues(newEnv)

// CheckCondition compiles an expression against the condition
// environment without evaluating it. The loader uses this to reject
// malformed conditions at load time.
func CheckCondition(expr string) error {
	env, err := checkEnvOnce()
	if err != nil {
		return err
	}
	if _, issues := env.Compile(expr); issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid condition: %w", issues.Err())
	}
	return nil
}

// Engine evaluates endpoint policies. Compiled programs are cached per
// expression since the same conditions run on every request.
type Engine struct {
	env    *cel.Env
	logger *zap.Logger

	mu       sync.RWMutex
	programs map[string]*condition
}

// condition pairs a compiled program with the first-level fields it
// reads from the implicit bindings.
type condition struct {
	prg    cel.Program
	fields map[string][]string
}

// NewEngine creates a policy engine.
func NewEngine(logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("create environment: %w", err)
	}
	return &Engine{
		env:      env,
		logger:   logger,
		programs: make(map[string]*condition),
	}, nil
}

// EvaluateInput runs the input-stage rules in declared order. The first
// rule whose condition holds decides: deny produces DecisionDeny with
// the rule's reason, any other action is a no-op at input.
func (e *Engine) EvaluateInput(rules []Rule, bindings map[string]interface{}) (Decision, string) {
	for _, rule := range rules {
		if !e.condition(rule.Condition, bindings) {
			continue
		}
		if rule.Action == ActionDeny {
			return DecisionDeny, rule.Reason
		}
		return DecisionNone, ""
	}
	return DecisionNone, ""
}

// ApplyOutput runs the output-stage rules in declared order. Every rule
// whose condition holds applies; mutations compose on the response. A
// matching deny stops evaluation and fails the call.
func (e *Engine) ApplyOutput(rules []Rule, bindings map[string]interface{}, response interface{}, spec *typesys.TypeSpec) (interface{}, Decision, string) {
	filtered := false
	masked := false

	for _, rule := range rules {
		if !e.condition(rule.Condition, bindings) {
			continue
		}
		switch rule.Action {
		case ActionDeny:
			return nil, DecisionDeny, rule.Reason
		case ActionFilterFields:
			for _, path := range rule.Fields {
				mutatePath(response, strings.Split(path, "."), false)
			}
			filtered = true
		case ActionMaskFields:
			for _, path := range rule.Fields {
				mutatePath(response, strings.Split(path, "."), true)
			}
			masked = true
		case ActionFilterSensitiveFields:
			if spec != nil {
				response = typesys.RemoveSensitive(response, spec)
			}
			filtered = true
		}
	}

	switch {
	case filtered:
		return response, DecisionFilter, ""
	case masked:
		return response, DecisionMask, ""
	default:
		return response, DecisionNone, ""
	}
}

// condition evaluates one expression. Referenced fields absent from the
// bindings are bound to an empty collection first: comparisons with
// them are false and membership checks fail, so a negated membership
// check over a missing collection holds. Remaining evaluation errors
// count as false.
func (e *Engine) condition(expr string, bindings map[string]interface{}) bool {
	cond, err := e.program(expr)
	if err != nil {
		e.logger.Warn("policy condition does not compile",
			zap.String("condition", expr), zap.Error(err))
		return false
	}

	out, _, err := cond.prg.Eval(fillAbsentFields(bindings, cond.fields))
	if err != nil {
		e.logger.Debug("policy condition evaluation failed",
			zap.String("condition", expr), zap.Error(err))
		return false
	}
	result, ok := out.Value().(bool)
	if !ok {
		e.logger.Warn("policy condition is not boolean",
			zap.String("condition", expr))
		return false
	}
	return result
}

func (e *Engine) program(expr string) (*condition, error) {
	e.mu.RLock()
	cond, hit := e.programs[expr]
	e.mu.RUnlock()
	if hit {
		return cond, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cond, hit = e.programs[expr]; hit {
		return cond, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	cond = &condition{prg: prg, fields: referencedFields(ast)}
	e.programs[expr] = cond
	return cond, nil
}

// referencedFields collects the first-level fields an expression reads
// from the implicit bindings, through both selection (input.roles) and
// string subscripts (input["roles"]).
func referencedFields(expr *cel.Ast) map[string][]string {
	fields := make(map[string][]string)
	seen := make(map[string]bool)
	add := func(root, name string) {
		if seen[root+"."+name] {
			return
		}
		seen[root+"."+name] = true
		fields[root] = append(fields[root], name)
	}
	celast.PostOrderVisit(expr.NativeRep().Expr(), celast.NewExprVisitor(func(node celast.Expr) {
		switch node.Kind() {
		case celast.SelectKind:
			sel := node.AsSelect()
			if op := sel.Operand(); op.Kind() == celast.IdentKind {
				add(op.AsIdent(), sel.FieldName())
			}
		case celast.CallKind:
			call := node.AsCall()
			if call.FunctionName() != operators.Index || len(call.Args()) != 2 {
				return
			}
			op, key := call.Args()[0], call.Args()[1]
			if op.Kind() != celast.IdentKind || key.Kind() != celast.LiteralKind {
				return
			}
			if name, ok := key.AsLiteral().Value().(string); ok {
				add(op.AsIdent(), name)
			}
		}
	}))
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// fillAbsentFields binds referenced-but-absent fields to an empty
// collection. The caller's maps are never mutated.
func fillAbsentFields(bindings map[string]interface{}, fields map[string][]string) map[string]interface{} {
	out := bindings
	copied := false
	for root, names := range fields {
		src, ok := bindings[root].(map[string]interface{})
		if !ok {
			continue
		}
		var dst map[string]interface{}
		for _, name := range names {
			if _, present := src[name]; present {
				continue
			}
			if dst == nil {
				dst = make(map[string]interface{}, len(src)+len(names))
				for k, v := range src {
					dst[k] = v
				}
			}
			dst[name] = []interface{}{}
		}
		if dst == nil {
			continue
		}
		if !copied {
			next := make(map[string]interface{}, len(out))
			for k, v := range out {
				next[k] = v
			}
			out = next
			copied = true
		}
		out[root] = dst
	}
	return out
}

// mutatePath applies a dotted-path mutation to a response tree. Maps are
// descended by key, arrays apply the same path to every element. Paths
// that do not resolve are ignored.
func mutatePath(value interface{}, segments []string, mask bool) {
	if len(segments) == 0 {
		return
	}
	switch node := value.(type) {
	case map[string]interface{}:
		key := segments[0]
		if len(segments) == 1 {
			if _, ok := node[key]; !ok {
				return
			}
			if mask {
				node[key] = MaskValue
			} else {
				delete(node, key)
			}
			return
		}
		mutatePath(node[key], segments[1:], mask)
	case []interface{}:
		for _, element := range node {
			mutatePath(element, segments, mask)
		}
	case []map[string]interface{}:
		for _, element := range node {
			mutatePath(element, segments, mask)
		}
	}
}
