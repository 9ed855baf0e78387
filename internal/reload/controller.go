package reload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/mxcperr"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

// DefaultDrainTimeout bounds how long a reload waits for in-flight
// requests before aborting.
const DefaultDrainTimeout = 60 * time.Second

// Hooks supply the rebuild steps a reload performs. ResolveSecrets and
// OpenSession are required; the others are optional.
type Hooks struct {
	// ResolveSecrets re-resolves external references (environment,
	// files, secret store) into a fresh secret map.
	ResolveSecrets func(ctx context.Context) (map[string]string, error)

	// OpenSession builds a candidate SQL session from the resolved
	// secrets.
	OpenSession func(ctx context.Context, secrets map[string]string) (*sqlsession.Session, error)

	// LoadEndpoints re-reads endpoint definitions. A nil hook keeps the
	// current registry snapshot.
	LoadEndpoints func() (*endpoints.Snapshot, error)

	// RebuildRuntimes recreates host-language runtimes with the updated
	// configuration.
	RebuildRuntimes func(ctx context.Context) error

	// OnComplete observes every reload outcome, successful or not. Used
	// to persist reload history.
	OnComplete func(err error)
}

// State is the observable reload status served by the admin surface.
type State struct {
	InProgress       bool      `json:"in_progress"`
	Draining         bool      `json:"draining"`
	ActiveRequests   int64     `json:"active_requests"`
	LastReloadAt     time.Time `json:"last_reload_at,omitzero"`
	LastReloadStatus string    `json:"last_reload_status,omitempty"`
	LastReloadError  string    `json:"last_reload_error,omitempty"`
}

// Controller owns the drain-and-swap lifecycle: it gates request entry,
// holds the current SQL session, and performs one reload at a time.
type Controller struct {
	hooks        Hooks
	registry     *endpoints.Registry
	drainTimeout time.Duration
	logger       *zap.Logger

	inProgress atomic.Bool
	active     atomic.Int64
	session    atomic.Pointer[sqlsession.Session]

	gateMu sync.Mutex
	gate   chan struct{}

	stateMu sync.Mutex
	last    struct {
		at     time.Time
		status string
		errMsg string
	}
}

// NewController creates a controller owning the initial session.
func NewController(hooks Hooks, registry *endpoints.Registry, initial *sqlsession.Session, drainTimeout time.Duration, logger *zap.Logger) *Controller {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		hooks:        hooks,
		registry:     registry,
		drainTimeout: drainTimeout,
		logger:       logger,
	}
	c.session.Store(initial)
	return c
}

// Session returns the current SQL session. Callers resolve it once per
// request; the pointer stays valid for the request's lifetime because
// reload drains before swapping.
func (c *Controller) Session() *sqlsession.Session {
	return c.session.Load()
}

// EnterRequest admits one request past the drain gate and counts it
// in-flight. The returned release must be called when the request
// completes. Admission blocks while a reload is draining, bounded by
// ctx.
//
// The in-flight count is incremented before the gate is checked: a
// request that observed an open gate is already counted, so the drain
// can never complete underneath it.
func (c *Controller) EnterRequest(ctx context.Context) (func(), error) {
	for {
		c.active.Add(1)
		c.gateMu.Lock()
		gate := c.gate
		c.gateMu.Unlock()
		if gate == nil {
			return func() { c.active.Add(-1) }, nil
		}
		c.active.Add(-1)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, mxcperr.Wrap(mxcperr.KindCancelled, ctx.Err(), "cancelled waiting for reload to finish")
		}
	}
}

// Reload drains in-flight requests, rebuilds secrets and session, and
// swaps them in. On any failure the previous state stays intact.
func (c *Controller) Reload(ctx context.Context) error {
	if !c.inProgress.CompareAndSwap(false, true) {
		return mxcperr.New(mxcperr.KindUnavailable, "a reload is already in progress")
	}
	defer c.inProgress.Store(false)

	c.logger.Info("reload started")
	c.startDraining()
	defer c.stopDraining()

	if err := c.awaitDrain(ctx); err != nil {
		c.recordOutcome(err)
		return err
	}

	newSecrets, err := c.hooks.ResolveSecrets(ctx)
	if err != nil {
		err = fmt.Errorf("resolve secrets: %w", err)
		c.recordOutcome(err)
		return err
	}

	newSession, err := c.hooks.OpenSession(ctx, newSecrets)
	if err != nil {
		err = fmt.Errorf("open session: %w", err)
		c.recordOutcome(err)
		return err
	}

	if c.hooks.LoadEndpoints != nil {
		snapshot, err := c.hooks.LoadEndpoints()
		if err != nil {
			_ = newSession.Close()
			err = fmt.Errorf("load endpoints: %w", err)
			c.recordOutcome(err)
			return err
		}
		c.registry.Swap(snapshot)
	}

	if c.hooks.RebuildRuntimes != nil {
		if err := c.hooks.RebuildRuntimes(ctx); err != nil {
			_ = newSession.Close()
			err = fmt.Errorf("rebuild runtimes: %w", err)
			c.recordOutcome(err)
			return err
		}
	}

	old := c.session.Swap(newSession)
	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Warn("previous session did not close cleanly", zap.Error(err))
		}
	}

	c.recordOutcome(nil)
	c.logger.Info("reload finished")
	return nil
}

// State reports the observable reload status.
func (c *Controller) State() State {
	c.gateMu.Lock()
	draining := c.gate != nil
	c.gateMu.Unlock()

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return State{
		InProgress:       c.inProgress.Load(),
		Draining:         draining,
		ActiveRequests:   c.active.Load(),
		LastReloadAt:     c.last.at,
		LastReloadStatus: c.last.status,
		LastReloadError:  c.last.errMsg,
	}
}

// Close releases the current session at shutdown.
func (c *Controller) Close() error {
	if session := c.session.Swap(nil); session != nil {
		return session.Close()
	}
	return nil
}

func (c *Controller) startDraining() {
	c.gateMu.Lock()
	c.gate = make(chan struct{})
	c.gateMu.Unlock()
}

func (c *Controller) stopDraining() {
	c.gateMu.Lock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
	c.gateMu.Unlock()
}

// awaitDrain waits for the in-flight count to reach zero, bounded by
// the drain timeout and ctx.
func (c *Controller) awaitDrain(ctx context.Context) error {
	deadline := time.NewTimer(c.drainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		if c.active.Load() == 0 {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			return mxcperr.New(mxcperr.KindUnavailable,
				"drain timed out after %s with %d requests in flight", c.drainTimeout, c.active.Load())
		case <-ctx.Done():
			return mxcperr.Wrap(mxcperr.KindCancelled, ctx.Err(), "reload cancelled while draining")
		}
	}
}

func (c *Controller) recordOutcome(err error) {
	c.stateMu.Lock()
	c.last.at = time.Now().UTC()
	if err != nil {
		c.last.status = "error"
		c.last.errMsg = err.Error()
		c.logger.Error("reload failed", zap.Error(err))
	} else {
		c.last.status = "success"
		c.last.errMsg = ""
	}
	c.stateMu.Unlock()

	if c.hooks.OnComplete != nil {
		c.hooks.OnComplete(err)
	}
}
