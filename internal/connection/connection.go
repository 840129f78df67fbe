// Package connection implements the self-refreshing session wrapper that
// makes token expiry invisible to tool-operation callers: an authorization
// failure triggers exactly one credential refresh and one retry, with the
// underlying session swapped in place so every holder of the wrapper
// observes the replacement.
package connection

import (
	"context"
	"sync"

	"toolgate/internal/mcpclient"
	"toolgate/pkg/logging"
)

const subsystem = "Connection"

// ToolSession is the protocol surface the wrapper drives. *mcpclient.Session
// satisfies it; tests substitute stubs.
type ToolSession interface {
	ListTools(ctx context.Context) ([]mcpclient.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcpclient.ToolResult, error)
	Close() error
}

// RefreshResult is what a refresh callback yields: new credentials and a new
// session opened with them.
type RefreshResult struct {
	AccessToken string
	Session     ToolSession
}

// RefreshFunc obtains fresh credentials and a replacement session. It is
// bound to a specific user and server by its creator; the wrapper knows
// nothing about either.
type RefreshFunc func(ctx context.Context) (*RefreshResult, error)

// SelfRefreshing wraps one live session and its access token with a bound
// refresh callback. It is request-scoped and never shared across requests.
type SelfRefreshing struct {
	mu          sync.Mutex
	session     ToolSession
	accessToken string
	refresh     RefreshFunc
}

// NewSelfRefreshing wraps session. refresh may be nil for connections that
// cannot refresh (API-key and open servers).
func NewSelfRefreshing(session ToolSession, accessToken string, refresh RefreshFunc) *SelfRefreshing {
	return &SelfRefreshing{
		session:     session,
		accessToken: accessToken,
		refresh:     refresh,
	}
}

// CanRefresh reports whether the wrapper has a refresh callback.
func (c *SelfRefreshing) CanRefresh() bool {
	return c.refresh != nil
}

// AccessToken returns the current access token.
func (c *SelfRefreshing) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *SelfRefreshing) current() ToolSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Refresh invokes the bound callback and replaces the wrapper's session and
// token in place. The previous session is void afterwards; the wrapper does
// not close it; the refresh callback decides its fate.
func (c *SelfRefreshing) Refresh(ctx context.Context) error {
	result, err := c.refresh(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = result.Session
	c.accessToken = result.AccessToken
	c.mu.Unlock()

	logging.Debug(subsystem, "Session replaced after credential refresh")
	return nil
}

// ListTools lists tools through the current session.
func (c *SelfRefreshing) ListTools(ctx context.Context) ([]mcpclient.Tool, error) {
	return c.current().ListTools(ctx)
}

// CallTool invokes a tool through the current session.
func (c *SelfRefreshing) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcpclient.ToolResult, error) {
	return c.current().CallTool(ctx, name, args)
}

// Close closes the current underlying session.
func (c *SelfRefreshing) Close() error {
	return c.current().Close()
}

// WithAuthRetry runs op; if it fails with an authorization failure and conn
// can refresh, it refreshes once and retries once. A second failure
// propagates unmodified, and no second refresh is ever attempted. Non-401
// failures propagate immediately.
func WithAuthRetry[T any](ctx context.Context, conn *SelfRefreshing, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := op(ctx)
	if err == nil || !mcpclient.IsUnauthorized(err) || !conn.CanRefresh() {
		return result, err
	}

	logging.Debug(subsystem, "Authorization failure, refreshing credentials and retrying once")
	if refreshErr := conn.Refresh(ctx); refreshErr != nil {
		var zero T
		return zero, refreshErr
	}

	return op(ctx)
}
