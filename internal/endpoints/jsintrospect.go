package endpoints

import (
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// IntrospectFunction parses js source and returns the positional parameter
// names of the named top-level function. Introspection happens once at
// load time; the runner maps declared endpoint parameters onto these names
// at call time.
func IntrospectFunction(code, function string) ([]string, error) {
	prog, err := parser.ParseFile(nil, "", code, 0)
	if err != nil {
		return nil, fmt.Errorf("js parse: %w", err)
	}

	for _, stmt := range prog.Body {
		decl, ok := stmt.(*ast.FunctionDeclaration)
		if !ok || decl.Function == nil || decl.Function.Name == nil {
			continue
		}
		if decl.Function.Name.Name.String() != function {
			continue
		}
		return bindingNames(decl.Function.ParameterList)
	}
	return nil, fmt.Errorf("function %q not found in js source", function)
}

func bindingNames(params *ast.ParameterList) ([]string, error) {
	if params == nil {
		return nil, nil
	}
	names := make([]string, 0, len(params.List))
	for _, binding := range params.List {
		id, ok := binding.Target.(*ast.Identifier)
		if !ok {
			return nil, fmt.Errorf("only plain identifier parameters are supported")
		}
		names = append(names, id.Name.String())
	}
	return names, nil
}
