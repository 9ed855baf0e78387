package runner

import (
	"context"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/identity"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

// Runner executes one endpoint body. Both variants share the contract:
// validated args in, raw result value out. Cancellation is observed via
// ctx at the execution suspension point.
type Runner interface {
	Run(ctx context.Context, ep *endpoints.Endpoint, args map[string]interface{}, user *identity.UserContext, session *sqlsession.Session) (interface{}, error)
}

// Dispatcher picks the runner for an endpoint's source language.
type Dispatcher struct {
	sql *SQLRunner
	js  *JSRunner
}

// NewDispatcher wires the two runner variants.
func NewDispatcher(sqlRunner *SQLRunner, jsRunner *JSRunner) *Dispatcher {
	return &Dispatcher{sql: sqlRunner, js: jsRunner}
}

// Run dispatches to the language-appropriate runner.
func (d *Dispatcher) Run(ctx context.Context, ep *endpoints.Endpoint, args map[string]interface{}, user *identity.UserContext, session *sqlsession.Session) (interface{}, error) {
	if ep.Source.Language == endpoints.LanguageJS {
		if d.js == nil {
			return nil, mxcperr.New(mxcperr.KindUnavailable, "host language runtime is not configured")
		}
		return d.js.Run(ctx, ep, args, user, session)
	}
	return d.sql.Run(ctx, ep, args, user, session)
}
