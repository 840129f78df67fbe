package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/mcpclient"
)

var errUnauthorized = errors.New("request failed with status 401")

// stubSession fails every call with failWith until it is nil.
type stubSession struct {
	failWith error
	calls    int
	closed   bool
}

func (s *stubSession) ListTools(context.Context) ([]mcpclient.Tool, error) {
	s.calls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	return []mcpclient.Tool{{Name: "echo"}}, nil
}

func (s *stubSession) CallTool(context.Context, string, map[string]interface{}) (*mcpclient.ToolResult, error) {
	s.calls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	return &mcpclient.ToolResult{Content: []mcpclient.ContentItem{{Type: "text", Text: "ok"}}}, nil
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

func TestRefreshSwapsSessionInPlace(t *testing.T) {
	old := &stubSession{failWith: errUnauthorized}
	fresh := &stubSession{}

	conn := NewSelfRefreshing(old, "stale", func(context.Context) (*RefreshResult, error) {
		return &RefreshResult{AccessToken: "fresh", Session: fresh}, nil
	})

	require.NoError(t, conn.Refresh(context.Background()))
	assert.Equal(t, "fresh", conn.AccessToken())

	// Calls now flow through the replacement session.
	tools, err := conn.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 1)
	assert.Equal(t, 0, old.calls)

	// The wrapper does not close the stale session.
	assert.False(t, old.closed)
}

func TestWithAuthRetry_RefreshOnceThenSucceed(t *testing.T) {
	failing := &stubSession{failWith: errUnauthorized}
	working := &stubSession{}

	refreshes := 0
	conn := NewSelfRefreshing(failing, "stale", func(context.Context) (*RefreshResult, error) {
		refreshes++
		return &RefreshResult{AccessToken: "fresh", Session: working}, nil
	})

	tools, err := WithAuthRetry(context.Background(), conn, conn.ListTools)
	require.NoError(t, err)
	assert.Len(t, tools, 1)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestWithAuthRetry_AlwaysUnauthorizedFailsAfterOneRefresh(t *testing.T) {
	first := &stubSession{failWith: errUnauthorized}
	second := &stubSession{failWith: errUnauthorized}

	refreshes := 0
	conn := NewSelfRefreshing(first, "tok", func(context.Context) (*RefreshResult, error) {
		refreshes++
		return &RefreshResult{AccessToken: "tok2", Session: second}, nil
	})

	_, err := WithAuthRetry(context.Background(), conn, conn.ListTools)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnauthorized)

	// Exactly one refresh: not zero, not many.
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestWithAuthRetry_NonAuthErrorPropagatesImmediately(t *testing.T) {
	boom := errors.New("connection reset by peer")
	sess := &stubSession{failWith: boom}

	refreshes := 0
	conn := NewSelfRefreshing(sess, "tok", func(context.Context) (*RefreshResult, error) {
		refreshes++
		return nil, nil
	})

	_, err := WithAuthRetry(context.Background(), conn, conn.ListTools)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, 1, sess.calls)
}

func TestWithAuthRetry_NoRefreshCallback(t *testing.T) {
	sess := &stubSession{failWith: errUnauthorized}
	conn := NewSelfRefreshing(sess, "tok", nil)
	assert.False(t, conn.CanRefresh())

	_, err := WithAuthRetry(context.Background(), conn, conn.ListTools)
	assert.ErrorIs(t, err, errUnauthorized)
	assert.Equal(t, 1, sess.calls)
}

func TestWithAuthRetry_RefreshFailurePropagates(t *testing.T) {
	sess := &stubSession{failWith: errUnauthorized}
	refreshErr := errors.New("refresh token revoked")

	conn := NewSelfRefreshing(sess, "tok", func(context.Context) (*RefreshResult, error) {
		return nil, refreshErr
	})

	_, err := WithAuthRetry(context.Background(), conn, conn.ListTools)
	assert.ErrorIs(t, err, refreshErr)
	assert.Equal(t, 1, sess.calls)
}

func TestWithAuthRetry_CallToolResult(t *testing.T) {
	sess := &stubSession{}
	conn := NewSelfRefreshing(sess, "tok", nil)

	result, err := WithAuthRetry(context.Background(), conn, func(ctx context.Context) (*mcpclient.ToolResult, error) {
		return conn.CallTool(ctx, "echo", map[string]interface{}{"message": "hi"})
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok", result.Content[0].Text)
}
