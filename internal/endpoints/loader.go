package endpoints

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yosida95/uritemplate/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mxcp-labs/mxcp-go/internal/policy"
	"github.com/mxcp-labs/mxcp-go/internal/typesys"
)

// SchemaVersion is the required value of the root schema-version key.
const SchemaVersion = 1

var (
	uriShapePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://([A-Za-z0-9._~-]+|\{[A-Za-z_][A-Za-z0-9_]*\})(/([A-Za-z0-9._~-]+|\{[A-Za-z_][A-Za-z0-9_]*\}))*$`)
	templateVarRe   = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
)

// LoadError records one file that failed to load.
type LoadError struct {
	File string `json:"file"`
	Err  error  `json:"-"`
}

// Error implements the error interface.
func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

// Result is a partial load: valid endpoints plus per-file errors. The
// caller decides whether a partial result is acceptable.
type Result struct {
	Loaded []*Endpoint
	Errors []LoadError
}

// Loader discovers endpoint YAML files under a project tree and builds
// the endpoint IR. The loader is pure with respect to the filesystem: it
// reads files and nothing else.
type Loader struct {
	root   string
	logger *zap.Logger
}

// NewLoader creates a loader rooted at the project directory.
func NewLoader(root string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{root: root, logger: logger}
}

// fileDoc is the raw YAML document shape. Exactly one of the three body
// keys classifies the file.
type fileDoc struct {
	Mxcp     int                    `yaml:"mxcp"`
	Metadata map[string]interface{} `yaml:"metadata,omitempty"`
	Tool     *bodyDoc               `yaml:"tool,omitempty"`
	Resource *bodyDoc               `yaml:"resource,omitempty"`
	Prompt   *bodyDoc               `yaml:"prompt,omitempty"`
}

// bodyDoc is the superset of the three endpoint body shapes.
type bodyDoc struct {
	Name        string            `yaml:"name"`
	URI         string            `yaml:"uri,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
	MimeType    string            `yaml:"mime_type,omitempty"`
	Annotations Annotations       `yaml:"annotations,omitempty"`
	Parameters  []Parameter       `yaml:"parameters,omitempty"`
	Return      *typesys.TypeSpec `yaml:"return,omitempty"`
	Language    string            `yaml:"language,omitempty"`
	Source      Source            `yaml:"source,omitempty"`
	Enabled     *bool             `yaml:"enabled,omitempty"`
	Tests       []TestCase        `yaml:"tests,omitempty"`
	Policies    policy.Set        `yaml:"policies,omitempty"`
	Messages    []Message         `yaml:"messages,omitempty"`
}

// Load enumerates YAML files under the project root, classifies each by
// its root key, and builds validated endpoint IR. Files without an
// endpoint root key are skipped with a warning. A partial load yields the
// valid subset plus per-file errors.
func (l *Loader) Load() (*Result, error) {
	result := &Result{}
	seen := make(map[string]string) // endpoint id -> file

	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != l.root {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		ep, loadErr := l.loadFile(path)
		if loadErr != nil {
			result.Errors = append(result.Errors, LoadError{File: path, Err: loadErr})
			return nil
		}
		if ep == nil {
			return nil // not an endpoint file
		}
		if prev, dup := seen[ep.ID]; dup {
			result.Errors = append(result.Errors, LoadError{
				File: path,
				Err:  fmt.Errorf("duplicate endpoint %q, already defined in %s", ep.ID, prev),
			})
			return nil
		}
		seen[ep.ID] = path
		result.Loaded = append(result.Loaded, ep)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk project tree %s: %w", l.root, err)
	}

	l.logger.Info("endpoint load complete",
		zap.Int("loaded", len(result.Loaded)),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// loadFile parses and validates a single YAML file. A nil endpoint with a
// nil error means the file is not an endpoint document.
func (l *Loader) loadFile(path string) (*Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	bodies := 0
	var kind Kind
	var body *bodyDoc
	if doc.Tool != nil {
		bodies, kind, body = bodies+1, KindTool, doc.Tool
	}
	if doc.Resource != nil {
		bodies, kind, body = bodies+1, KindResource, doc.Resource
	}
	if doc.Prompt != nil {
		bodies, kind, body = bodies+1, KindPrompt, doc.Prompt
	}
	if bodies == 0 {
		l.logger.Warn("skipping YAML file without tool, resource, or prompt key", zap.String("file", path))
		return nil, nil
	}
	if bodies > 1 {
		return nil, fmt.Errorf("file declares more than one of tool, resource, prompt")
	}
	if doc.Mxcp != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d, expected %d", doc.Mxcp, SchemaVersion)
	}

	ep := &Endpoint{
		ID:          fmt.Sprintf("%s:%s", kind, body.Name),
		Kind:        kind,
		Name:        body.Name,
		Description: body.Description,
		Enabled:     body.Enabled == nil || *body.Enabled,
		Tags:        body.Tags,
		Annotations: body.Annotations,
		Parameters:  body.Parameters,
		ReturnType:  body.Return,
		Policies:    body.Policies,
		Source:      body.Source,
		Tests:       body.Tests,
		URITemplate: body.URI,
		MimeType:    body.MimeType,
		Messages:    body.Messages,
		SourceFile:  path,
	}
	ep.Source.Language = body.Language

	if err := ep.validateHeader(); err != nil {
		return nil, err
	}

	switch kind {
	case KindPrompt:
		if err := l.validatePrompt(ep); err != nil {
			return nil, err
		}
	case KindResource:
		if err := l.validateResource(ep); err != nil {
			return nil, err
		}
		if err := l.resolveSource(ep, filepath.Dir(path)); err != nil {
			return nil, err
		}
	case KindTool:
		if err := l.resolveSource(ep, filepath.Dir(path)); err != nil {
			return nil, err
		}
	}
	return ep, nil
}

// resolveSource enforces the inline-XOR-file invariant, reads file
// sources, and introspects js entry points.
func (l *Loader) resolveSource(ep *Endpoint, baseDir string) error {
	src := &ep.Source
	if (src.Code == "") == (src.FilePath == "") {
		return fmt.Errorf("source must set exactly one of code or file")
	}
	if src.Language == "" {
		src.Language = LanguageSQL
	}
	if src.Language != LanguageSQL && src.Language != LanguageJS {
		return fmt.Errorf("unsupported source language %q", src.Language)
	}

	if src.Code != "" {
		src.ResolvedCode = src.Code
	} else {
		path := src.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("source file %s: %w", src.FilePath, err)
		}
		src.ResolvedCode = string(data)
	}

	if src.Language == LanguageJS {
		if src.Function == "" {
			return fmt.Errorf("js source requires a function name")
		}
		params, err := IntrospectFunction(src.ResolvedCode, src.Function)
		if err != nil {
			return err
		}
		for _, name := range params {
			if ep.Parameter(name) == nil {
				return fmt.Errorf("function %s takes parameter %q which is not declared", src.Function, name)
			}
		}
		src.FunctionParams = params
	}
	return nil
}

// validateResource checks the URI template shape and that every template
// variable is a declared parameter.
func (l *Loader) validateResource(ep *Endpoint) error {
	if ep.URITemplate == "" {
		return fmt.Errorf("resource requires a uri")
	}
	if !uriShapePattern.MatchString(ep.URITemplate) {
		return fmt.Errorf("invalid resource uri template %q", ep.URITemplate)
	}
	tmpl, err := uritemplate.New(ep.URITemplate)
	if err != nil {
		return fmt.Errorf("invalid resource uri template %q: %w", ep.URITemplate, err)
	}
	names := tmpl.Varnames()
	for _, name := range names {
		if ep.Parameter(name) == nil {
			return fmt.Errorf("uri template variable %q is not a declared parameter", name)
		}
	}
	ep.URIParams = names
	return nil
}

// validatePrompt checks that template variables and declared parameters
// map one to one.
func (l *Loader) validatePrompt(ep *Endpoint) error {
	if len(ep.Messages) == 0 {
		return fmt.Errorf("prompt requires at least one message")
	}
	used := make(map[string]bool)
	for _, msg := range ep.Messages {
		if msg.Role == "" {
			return fmt.Errorf("prompt message without role")
		}
		for _, match := range templateVarRe.FindAllStringSubmatch(msg.Prompt, -1) {
			name := match[1]
			if ep.Parameter(name) == nil {
				return fmt.Errorf("template variable %q is not a declared parameter", name)
			}
			used[name] = true
		}
	}
	for _, p := range ep.Parameters {
		if !used[p.Name] {
			return fmt.Errorf("parameter %q is not referenced by any message template", p.Name)
		}
	}
	return nil
}

// RenderTemplate substitutes {{ name }} variables with the stringified
// argument values. Rendering is pure with respect to the arguments.
func RenderTemplate(text string, args map[string]interface{}) string {
	return templateVarRe.ReplaceAllStringFunc(text, func(match string) string {
		name := templateVarRe.FindStringSubmatch(match)[1]
		if v, ok := args[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}
