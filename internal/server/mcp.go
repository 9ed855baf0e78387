package server

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/yosida95/uritemplate/v3"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
)

// RefreshEndpoints publishes the current registry snapshot to the MCP
// server. Tools are replaced wholesale, which makes mcp-go emit a
// tools/list_changed notification; prompts are added and stale ones
// deleted by name. Resource templates are only added: reads always check
// the live snapshot, so a template whose endpoint disappeared answers
// with not-found until the next restart prunes the listing.
func (s *Server) RefreshEndpoints() {
	snap := s.registry.Current()
	next := make(map[string]bool)

	var tools []mcpserver.ServerTool
	var stalePrompts []string

	for _, ep := range snap.ByKind(endpoints.KindTool) {
		if !ep.Enabled {
			continue
		}
		tools = append(tools, s.serverTool(ep))
		next[ep.ID] = true
	}
	for _, ep := range snap.ByKind(endpoints.KindResource) {
		if !ep.Enabled {
			continue
		}
		if !s.published[ep.ID] {
			s.addResource(ep)
		}
		next[ep.ID] = true
	}
	for _, ep := range snap.ByKind(endpoints.KindPrompt) {
		if !ep.Enabled {
			continue
		}
		s.addPrompt(ep)
		next[ep.ID] = true
	}

	for id := range s.published {
		if next[id] {
			continue
		}
		if kind, name, ok := splitID(id); ok && kind == endpoints.KindPrompt {
			stalePrompts = append(stalePrompts, name)
		}
	}

	s.mcp.SetTools(tools...)
	if len(stalePrompts) > 0 {
		s.mcp.DeletePrompts(stalePrompts...)
	}
	s.published = next

	tc, rc, pc := snap.Counts()
	s.logger.Info("published endpoint snapshot",
		zap.Int("tools", tc),
		zap.Int("resources", rc),
		zap.Int("prompts", pc),
		zap.String("schema_hash", snap.SchemaHash))
}

func (s *Server) serverTool(ep *endpoints.Endpoint) mcpserver.ServerTool {
	schema, err := json.Marshal(ep.ParamsSpec().SchemaJSON())
	if err != nil {
		schema = []byte(`{"type":"object"}`)
	}
	tool := mcp.NewToolWithRawSchema(ep.Name, ep.Description, schema)
	tool.Annotations = mcp.ToolAnnotation{
		Title:           ep.Annotations.Title,
		ReadOnlyHint:    mcp.ToBoolPtr(ep.Annotations.ReadOnlyHint),
		DestructiveHint: mcp.ToBoolPtr(ep.Annotations.DestructiveHint),
		IdempotentHint:  mcp.ToBoolPtr(ep.Annotations.IdempotentHint),
		OpenWorldHint:   mcp.ToBoolPtr(ep.Annotations.OpenWorldHint),
	}

	name := ep.Name
	return mcpserver.ServerTool{
		Tool: tool,
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			result, err := s.invoke(ctx, endpoints.KindTool, name, request.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			text, err := encodeResult(result)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	}
}

func (s *Server) addResource(ep *endpoints.Endpoint) {
	tmpl, err := uritemplate.New(ep.URITemplate)
	if err != nil {
		s.logger.Error("invalid resource URI template",
			zap.String("endpoint", ep.ID), zap.Error(err))
		return
	}

	mimeType := ep.MimeType
	if mimeType == "" {
		mimeType = "application/json"
	}

	name := ep.Name
	template := mcp.NewResourceTemplate(ep.URITemplate, ep.Name,
		mcp.WithTemplateDescription(ep.Description),
		mcp.WithTemplateMIMEType(mimeType),
	)
	s.mcp.AddResourceTemplate(template, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		args := uriArguments(tmpl, request.Params.URI)
		result, err := s.invoke(ctx, endpoints.KindResource, name, args)
		if err != nil {
			return nil, err
		}
		text, err := encodeResult(result)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: mimeType,
				Text:     text,
			},
		}, nil
	})
}

func (s *Server) addPrompt(ep *endpoints.Endpoint) {
	opts := []mcp.PromptOption{mcp.WithPromptDescription(ep.Description)}
	for _, p := range ep.Parameters {
		argOpts := []mcp.ArgumentOption{mcp.ArgumentDescription(p.Spec.Description)}
		if p.Spec.Default == nil {
			argOpts = append(argOpts, mcp.RequiredArgument())
		}
		opts = append(opts, mcp.WithArgument(p.Name, argOpts...))
	}

	name := ep.Name
	s.mcp.AddPrompt(mcp.NewPrompt(ep.Name, opts...), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := make(map[string]interface{}, len(request.Params.Arguments))
		for k, v := range request.Params.Arguments {
			args[k] = v
		}
		result, err := s.invoke(ctx, endpoints.KindPrompt, name, args)
		if err != nil {
			return nil, err
		}
		rendered, ok := result.([]endpoints.Message)
		if !ok {
			return nil, mxcperr.New(mxcperr.KindInternal, "prompt %q produced unexpected result", name)
		}
		messages := make([]mcp.PromptMessage, 0, len(rendered))
		for _, m := range rendered {
			messages = append(messages, mcp.NewPromptMessage(promptRole(m.Role), mcp.NewTextContent(m.Prompt)))
		}
		return mcp.NewGetPromptResult(name, messages), nil
	})
}

func promptRole(role string) mcp.Role {
	if role == "assistant" {
		return mcp.RoleAssistant
	}
	return mcp.RoleUser
}

// uriArguments extracts template variables from a concrete URI. A URI
// that does not match yields no arguments; input validation then rejects
// the call with the missing required parameters.
func uriArguments(tmpl *uritemplate.Template, uri string) map[string]interface{} {
	args := make(map[string]interface{})
	match := tmpl.Match(uri)
	if match == nil {
		return args
	}
	for _, name := range tmpl.Varnames() {
		if v := match.Get(name).String(); v != "" {
			args[name] = v
		}
	}
	return args
}

// encodeResult renders an execution result for the wire. Bare strings
// pass through untouched; everything else is JSON.
func encodeResult(result interface{}) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", mxcperr.Wrap(mxcperr.KindInternal, err, "encode result")
	}
	return string(raw), nil
}

func errUnknownEndpoint(kind endpoints.Kind, name string) error {
	return mxcperr.New(mxcperr.KindNotFound, "unknown %s %q", kind, name)
}

func splitID(id string) (endpoints.Kind, string, bool) {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return endpoints.Kind(id[:i]), id[i+1:], true
		}
	}
	return "", "", false
}
