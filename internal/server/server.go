// Package server is the MCP edge: it publishes the current endpoint
// snapshot as MCP tools, resources, and prompts, and routes every
// invocation through the reload gate into the executor.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/config"
	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/executor"
	"github.com/mxcp-labs/mxcp-go/internal/identity"
	"github.com/mxcp-labs/mxcp-go/internal/reload"
	"github.com/mxcp-labs/mxcp-go/internal/reqcontext"
)

// Options configure the MCP edge.
type Options struct {
	Name    string
	Version string

	// Transport is config.TransportStdio or config.TransportHTTP.
	Transport string
	Addr      string

	// SQLTools enables the built-in execute_sql_query and list_tables
	// tools alongside the declared endpoints.
	SQLTools bool

	// KeyFunc verifies bearer tokens on the HTTP transport. Nil means
	// tokens are parsed without signature verification.
	KeyFunc jwt.Keyfunc
}

// Server owns the mcp-go server instance and its transport.
type Server struct {
	opts     Options
	registry *endpoints.Registry
	reloader *reload.Controller
	exec     *executor.Executor
	logger   *zap.Logger

	mcp     *mcpserver.MCPServer
	httpSrv *mcpserver.StreamableHTTPServer

	// published tracks endpoint IDs currently registered with mcp-go, so
	// a refresh can delete what the new snapshot dropped.
	published map[string]bool
}

// New builds the MCP server and registers the current snapshot.
func New(opts Options, registry *endpoints.Registry, reloader *reload.Controller, exec *executor.Executor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:      opts,
		registry:  registry,
		reloader:  reloader,
		exec:      exec,
		logger:    logger,
		published: make(map[string]bool),
	}

	s.mcp = mcpserver.NewMCPServer(
		opts.Name,
		opts.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s.registerBuiltinTools()
	s.RefreshEndpoints()
	return s
}

// Start serves the configured transport until ctx is cancelled (stdio) or
// Shutdown is called (http).
func (s *Server) Start(ctx context.Context) error {
	switch s.opts.Transport {
	case config.TransportHTTP:
		s.httpSrv = mcpserver.NewStreamableHTTPServer(s.mcp,
			mcpserver.WithHTTPContextFunc(s.httpContext),
		)
		s.logger.Info("serving MCP over HTTP", zap.String("addr", s.opts.Addr))
		err := s.httpSrv.Start(s.opts.Addr)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	default:
		s.logger.Info("serving MCP over stdio")
		return mcpserver.ServeStdio(s.mcp,
			mcpserver.WithStdioContextFunc(s.stdioContext),
		)
	}
}

// Shutdown stops the HTTP transport. The stdio transport ends with its
// stream, so there is nothing to stop.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// stdioContext attaches the anonymous user: stdio clients are the local
// process owner and carry no credentials.
func (s *Server) stdioContext(ctx context.Context) context.Context {
	return reqcontext.WithUser(ctx, identity.Anonymous())
}

// httpContext extracts the caller identity from the Authorization header.
// Requests without a valid token run as anonymous; policies decide what
// anonymous may do.
func (s *Server) httpContext(ctx context.Context, r *http.Request) context.Context {
	ctx = reqcontext.WithRequestID(ctx, reqcontext.NewRequestID())
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return reqcontext.WithUser(ctx, identity.Anonymous())
	}
	user, err := identity.FromBearerToken(auth, s.opts.KeyFunc)
	if err != nil {
		s.logger.Warn("rejected bearer token", zap.Error(err))
		return reqcontext.WithUser(ctx, identity.Anonymous())
	}
	return reqcontext.WithUser(ctx, user)
}

// invoke resolves the endpoint from the live snapshot, enters the reload
// gate, and hands the request to the executor. Unknown and disabled
// endpoints are indistinguishable to the caller.
func (s *Server) invoke(ctx context.Context, kind endpoints.Kind, name string, args map[string]interface{}) (interface{}, error) {
	ep := s.lookup(kind, name)
	if ep == nil {
		err := errUnknownEndpoint(kind, name)
		s.exec.RecordRejection(reqcontext.RequestID(ctx), kind, string(kind)+":"+name, reqcontext.User(ctx), err)
		return nil, err
	}

	release, err := s.reloader.EnterRequest(ctx)
	if err != nil {
		s.exec.RecordRejection(reqcontext.RequestID(ctx), kind, ep.ID, reqcontext.User(ctx), err)
		return nil, err
	}
	defer release()

	req := &executor.Request{
		ID:         reqcontext.RequestID(ctx),
		ReceivedAt: time.Now(),
		Endpoint:   ep,
		Args:       args,
		User:       reqcontext.User(ctx),
	}
	if deadline, ok := ctx.Deadline(); ok {
		req.Deadline = deadline
	}
	return s.exec.Execute(ctx, req)
}

func (s *Server) lookup(kind endpoints.Kind, name string) *endpoints.Endpoint {
	ep := s.registry.Current().Get(string(kind) + ":" + name)
	if ep == nil || !ep.Enabled {
		return nil
	}
	return ep
}
