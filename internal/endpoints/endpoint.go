package endpoints

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/mxcp-labs/mxcp-go/internal/policy"
	"github.com/mxcp-labs/mxcp-go/internal/typesys"
)

// Kind discriminates the three endpoint variants.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// Source languages.
const (
	LanguageSQL = "sql"
	LanguageJS  = "js"
)

var paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Annotations carry the MCP behavioral hints for a tool.
type Annotations struct {
	Title           string `yaml:"title,omitempty" json:"title,omitempty"`
	ReadOnlyHint    bool   `yaml:"readOnlyHint,omitempty" json:"readOnlyHint,omitempty"`
	DestructiveHint bool   `yaml:"destructiveHint,omitempty" json:"destructiveHint,omitempty"`
	IdempotentHint  bool   `yaml:"idempotentHint,omitempty" json:"idempotentHint,omitempty"`
	OpenWorldHint   bool   `yaml:"openWorldHint,omitempty" json:"openWorldHint,omitempty"`
}

// Parameter is one declared endpoint parameter: a name plus its TypeSpec.
// The type-specific annotations sit at the same YAML level as the name.
type Parameter struct {
	Name string            `yaml:"name" json:"name"`
	Spec *typesys.TypeSpec `yaml:"-" json:"spec"`
}

// UnmarshalYAML decodes the flat parameter shape: {name, type, ...annotations}.
func (p *Parameter) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var named struct {
		Name string `yaml:"name"`
	}
	if err := unmarshal(&named); err != nil {
		return err
	}
	spec := &typesys.TypeSpec{}
	if err := unmarshal(spec); err != nil {
		return err
	}
	p.Name = named.Name
	p.Spec = spec
	return nil
}

// Source points at the endpoint body: exactly one of inline code or a
// file path, in one of the supported languages.
type Source struct {
	Code     string `yaml:"code,omitempty" json:"code,omitempty"`
	FilePath string `yaml:"file,omitempty" json:"file,omitempty"`
	Language string `yaml:"-" json:"language"`

	// ResolvedCode is the body after file resolution; for inline sources
	// it equals Code.
	ResolvedCode string `yaml:"-" json:"-"`

	// Function is the introspected entry point for js sources: the named
	// function and its positional parameter names.
	Function       string   `yaml:"function,omitempty" json:"function,omitempty"`
	FunctionParams []string `yaml:"-" json:"-"`
}

// Message is one prompt template message.
type Message struct {
	Role   string `yaml:"role" json:"role"`
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// TestCase is a declared endpoint test. Test cases are carried in the IR
// for the validate command and the admin surface; they are not used on the
// request path.
type TestCase struct {
	Name      string                 `yaml:"name" json:"name"`
	Arguments map[string]interface{} `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Result    interface{}            `yaml:"result,omitempty" json:"result,omitempty"`
}

// Endpoint is the loaded, validated internal representation of one
// declared endpoint. Instances are immutable once published in a registry
// snapshot.
type Endpoint struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Enabled     bool              `json:"enabled"`
	Tags        []string          `json:"tags,omitempty"`
	Annotations Annotations       `json:"annotations,omitempty"`
	Parameters  []Parameter       `json:"parameters,omitempty"`
	ReturnType  *typesys.TypeSpec `json:"return,omitempty"`
	Policies    policy.Set        `json:"policies,omitempty"`
	Source      Source            `json:"source"`
	Tests       []TestCase        `json:"tests,omitempty"`

	// Resource-only fields.
	URITemplate string   `json:"uri,omitempty"`
	URIParams   []string `json:"-"`
	MimeType    string   `json:"mime_type,omitempty"`

	// Prompt-only fields.
	Messages []Message `json:"messages,omitempty"`

	// SourceFile is the YAML file this endpoint was loaded from.
	SourceFile string `json:"source_file"`

	paramsOnce sync.Once
	paramsSpec *typesys.TypeSpec
}

// ParamsSpec returns the object TypeSpec covering all declared parameters.
// Parameters without a default are required. The spec is built once;
// concurrent requests share the same instance.
func (e *Endpoint) ParamsSpec() *typesys.TypeSpec {
	e.paramsOnce.Do(func() {
		props := make(map[string]*typesys.TypeSpec, len(e.Parameters))
		var required []string
		for _, p := range e.Parameters {
			props[p.Name] = p.Spec
			if p.Spec.Default == nil {
				required = append(required, p.Name)
			}
		}
		e.paramsSpec = &typesys.TypeSpec{
			Type:       typesys.TypeObject,
			Properties: props,
			Required:   required,
		}
	})
	return e.paramsSpec
}

// Parameter returns the named parameter declaration, or nil.
func (e *Endpoint) Parameter(name string) *Parameter {
	for i := range e.Parameters {
		if e.Parameters[i].Name == name {
			return &e.Parameters[i]
		}
	}
	return nil
}

// validateHeader applies the invariants shared by all three variants.
func (e *Endpoint) validateHeader() error {
	if e.Name == "" {
		return fmt.Errorf("endpoint name is required")
	}
	seen := make(map[string]bool, len(e.Parameters))
	for _, p := range e.Parameters {
		if !paramNamePattern.MatchString(p.Name) {
			return fmt.Errorf("parameter name %q is invalid", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.Spec == nil || p.Spec.Type == "" {
			return fmt.Errorf("parameter %q has no type", p.Name)
		}
		if err := typesys.CheckSpec(p.Spec); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
	}
	if e.ReturnType != nil {
		if err := typesys.CheckSpec(e.ReturnType); err != nil {
			return fmt.Errorf("return type: %w", err)
		}
	}
	for _, stage := range [][]policy.Rule{e.Policies.Input, e.Policies.Output} {
		for _, rule := range stage {
			if rule.Condition == "" {
				return fmt.Errorf("policy rule without condition")
			}
			if err := policy.CheckCondition(rule.Condition); err != nil {
				return fmt.Errorf("policy rule: %w", err)
			}
			if !policy.ValidActions[rule.Action] {
				return fmt.Errorf("unknown policy action %q", rule.Action)
			}
		}
	}
	return nil
}
