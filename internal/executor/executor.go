package executor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/audit"
	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/identity"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/policy"
	"github.com/mxcp-labs/mxcp-go/internal/runner"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
	"github.com/mxcp-labs/mxcp-go/internal/typesys"
)

// DefaultTimeout bounds a request when neither the edge nor the
// endpoint supplies a deadline.
const DefaultTimeout = 30 * time.Second

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxcp_requests_total",
		Help: "Executed requests by endpoint kind and outcome.",
	}, []string{"kind", "status"})
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mxcp_request_duration_seconds",
		Help:    "End-to-end request duration.",
		Buckets: prometheus.DefBuckets,
	})
)

// SessionProvider hands out the current SQL session. The reload
// controller swaps the session wholesale; a request resolves it once at
// dispatch and keeps that reference for its lifetime.
type SessionProvider interface {
	Session() *sqlsession.Session
}

// Request carries one invocation through the stage machine.
type Request struct {
	ID         string
	ReceivedAt time.Time
	Endpoint   *endpoints.Endpoint
	Args       map[string]interface{}
	User       *identity.UserContext

	// Deadline is the edge-supplied deadline; zero means none.
	Deadline time.Time
}

// Executor drives one request through validate, policy, run, output
// validation, output policy, and audit. Every request produces exactly
// one audit record no matter which stage fails.
type Executor struct {
	runner   runner.Runner
	policies *policy.Engine
	auditLog *audit.Logger
	sessions SessionProvider
	timeout  time.Duration
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates an executor. timeout of zero selects DefaultTimeout.
func New(run runner.Runner, policies *policy.Engine, auditLog *audit.Logger, sessions SessionProvider, timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		runner:   run,
		policies: policies,
		auditLog: auditLog,
		sessions: sessions,
		timeout:  timeout,
		tracer:   otel.Tracer("mxcp/executor"),
		logger:   logger,
	}
}

// Execute runs the stage machine for one request and returns the final
// response value or a kinded error.
func (e *Executor) Execute(ctx context.Context, req *Request) (result interface{}, err error) {
	started := time.Now()
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = started
	}
	if req.User == nil {
		req.User = identity.Anonymous()
	}

	ctx, cancel := e.withDeadline(ctx, req)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "mxcp.execute",
		trace.WithAttributes(
			attribute.String("endpoint.id", req.Endpoint.ID),
			attribute.String("endpoint.kind", string(req.Endpoint.Kind)),
		))
	defer span.End()

	rec := audit.Record{
		ID:             audit.NewRecordID(),
		Timestamp:      req.ReceivedAt.UTC(),
		RequestID:      req.ID,
		EndpointKind:   string(req.Endpoint.Kind),
		EndpointID:     req.Endpoint.ID,
		UserID:         req.User.UserID,
		UserRole:       req.User.Role,
		Provider:       req.User.Provider,
		PolicyDecision: string(policy.DecisionNone),
	}
	if span.SpanContext().HasTraceID() {
		rec.TraceID = span.SpanContext().TraceID().String()
	}

	defer func() {
		rec.DurationMS = time.Since(started).Milliseconds()
		if err != nil {
			kind := mxcperr.KindOf(err)
			rec.Status = audit.StatusError
			if kind == mxcperr.KindPolicyDenied {
				rec.Status = audit.StatusDenied
			}
			rec.ErrorKind = string(kind)
			rec.ErrorMessage = mxcperr.MessageOf(err)
			span.SetStatus(codes.Error, rec.ErrorMessage)
		} else {
			rec.Status = audit.StatusSuccess
			span.SetStatus(codes.Ok, "")
		}
		requestsTotal.WithLabelValues(string(req.Endpoint.Kind), string(rec.Status)).Inc()
		requestDuration.Observe(time.Since(started).Seconds())
		if e.auditLog != nil {
			e.auditLog.Enqueue(rec)
		}
	}()

	ep := req.Endpoint
	paramsSpec := ep.ParamsSpec()

	args, verrs := typesys.ValidateAndCoerce(req.Args, paramsSpec)
	if verr := verrs.AsError(); verr != nil {
		return nil, mxcperr.Wrap(mxcperr.KindBadInput, verr, "invalid arguments")
	}
	coerced, _ := args.(map[string]interface{})
	if coerced == nil {
		coerced = map[string]interface{}{}
	}
	rec.InputRedacted = redactInput(coerced, paramsSpec)

	bindings := map[string]interface{}{
		"user":  req.User.Bindings(),
		"input": plainValue(coerced).(map[string]interface{}),
	}
	if decision, reason := e.policies.EvaluateInput(ep.Policies.Input, bindings); decision == policy.DecisionDeny {
		rec.PolicyDecision = string(decision)
		rec.PolicyReason = reason
		return nil, mxcperr.New(mxcperr.KindPolicyDenied, "%s", denialMessage(reason))
	}

	raw, err := e.run(ctx, ep, coerced, req.User)
	if err != nil {
		return nil, err
	}

	response := raw
	if ep.ReturnType != nil {
		coercedOut, oerrs := typesys.ValidateOutput(raw, ep.ReturnType)
		if oerr := oerrs.AsError(); oerr != nil {
			return nil, mxcperr.Wrap(mxcperr.KindBadOutput, oerr, "result does not match declared return type")
		}
		response = coercedOut
	}

	bindings["response"] = plainValue(response)
	mutated, decision, reason := e.policies.ApplyOutput(ep.Policies.Output, bindings, response, ep.ReturnType)
	if decision == policy.DecisionDeny {
		rec.PolicyDecision = string(decision)
		rec.PolicyReason = reason
		return nil, mxcperr.New(mxcperr.KindPolicyDenied, "%s", denialMessage(reason))
	}
	if decision != policy.DecisionNone {
		rec.PolicyDecision = string(decision)
	}
	response = mutated

	if ep.ReturnType != nil {
		rec.OutputSummary = typesys.Redact(response, ep.ReturnType)
	}
	return response, nil
}

// RecordRejection audits a request the edge refused before the stage
// machine started (unknown endpoint, drain gate), so those requests
// still appear on the audit trail.
func (e *Executor) RecordRejection(requestID string, kind endpoints.Kind, endpointID string, user *identity.UserContext, cause error) {
	if user == nil {
		user = identity.Anonymous()
	}
	rec := audit.Record{
		ID:             audit.NewRecordID(),
		Timestamp:      time.Now().UTC(),
		RequestID:      requestID,
		EndpointKind:   string(kind),
		EndpointID:     endpointID,
		UserID:         user.UserID,
		UserRole:       user.Role,
		Provider:       user.Provider,
		PolicyDecision: string(policy.DecisionNone),
		Status:         audit.StatusError,
		ErrorKind:      string(mxcperr.KindOf(cause)),
		ErrorMessage:   mxcperr.MessageOf(cause),
	}
	requestsTotal.WithLabelValues(string(kind), string(rec.Status)).Inc()
	if e.auditLog != nil {
		e.auditLog.Enqueue(rec)
	}
}

// run dispatches the endpoint body. Prompts render their message
// templates; tools and resources execute through the runner.
func (e *Executor) run(ctx context.Context, ep *endpoints.Endpoint, args map[string]interface{}, user *identity.UserContext) (interface{}, error) {
	if ep.Kind == endpoints.KindPrompt {
		return renderMessages(ep, args), nil
	}

	var session *sqlsession.Session
	if e.sessions != nil {
		session = e.sessions.Session()
	}
	if session == nil {
		return nil, mxcperr.New(mxcperr.KindUnavailable, "no database session available")
	}
	return e.runner.Run(ctx, ep, args, user, session)
}

func (e *Executor) withDeadline(ctx context.Context, req *Request) (context.Context, context.CancelFunc) {
	deadline := time.Now().Add(e.timeout)
	if !req.Deadline.IsZero() && req.Deadline.Before(deadline) {
		deadline = req.Deadline
	}
	return context.WithDeadline(ctx, deadline)
}

// renderMessages substitutes validated arguments into every prompt
// message template.
func renderMessages(ep *endpoints.Endpoint, args map[string]interface{}) []endpoints.Message {
	rendered := make([]endpoints.Message, len(ep.Messages))
	for i, msg := range ep.Messages {
		rendered[i] = msg
		rendered[i].Prompt = endpoints.RenderTemplate(msg.Prompt, args)
	}
	return rendered
}

func denialMessage(reason string) string {
	if reason == "" {
		return "request denied by policy"
	}
	return reason
}

// redactInput prepares the audit copy of the arguments with sensitive
// values replaced.
func redactInput(args map[string]interface{}, spec *typesys.TypeSpec) map[string]interface{} {
	redacted, _ := typesys.Redact(args, spec).(map[string]interface{})
	if redacted == nil {
		redacted = map[string]interface{}{}
	}
	return redacted
}

// plainValue converts coerced values back to JSON-like shapes for the
// policy bindings. Parsed times and durations become strings again so
// conditions compare against what the caller sent.
func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	case time.Duration:
		return t.String()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
