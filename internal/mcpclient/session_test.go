package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/registry"
	"toolgate/internal/testing/mock"
)

func TestBuildHeaders(t *testing.T) {
	tests := []struct {
		name string
		mode registry.AuthMode
		want map[string]string
	}{
		{"oauth static", registry.AuthModeOAuthStatic, map[string]string{"Authorization": "Bearer tok"}},
		{"oauth dynamic", registry.AuthModeOAuthDynamic, map[string]string{"Authorization": "Bearer tok"}},
		{"api key", registry.AuthModeAPIKey, map[string]string{"X-API-Key": "tok"}},
		{"none", registry.AuthModeNone, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildHeaders(tt.mode, "tok"))
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := mock.NewToolServer("lifecycle", mock.EchoTool())
	defer srv.Close()

	ctx := context.Background()

	t.Run("operations require connected state", func(t *testing.T) {
		s := NewSession(srv.URL(), nil)
		assert.Equal(t, StateUnconnected, s.State())

		_, err := s.ListTools(ctx)
		var ise *InvalidSessionStateError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, StateUnconnected, ise.State)

		_, err = s.CallTool(ctx, "echo", nil)
		assert.True(t, errors.As(err, &ise))

		_, err = s.ServerInfo()
		assert.True(t, errors.As(err, &ise))
	})

	t.Run("connect then close", func(t *testing.T) {
		s, err := Connect(ctx, srv.URL(), registry.AuthModeNone, "")
		require.NoError(t, err)
		assert.Equal(t, StateConnected, s.State())

		info, err := s.ServerInfo()
		require.NoError(t, err)
		assert.Equal(t, "lifecycle", info.Name)
		assert.True(t, info.HasTools)

		require.NoError(t, s.Close())
		assert.Equal(t, StateClosed, s.State())

		// Close is idempotent.
		require.NoError(t, s.Close())

		// A closed session cannot be reused.
		_, err = s.ListTools(ctx)
		var ise *InvalidSessionStateError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, StateClosed, ise.State)

		err = s.Initialize(ctx)
		assert.True(t, errors.As(err, &ise))
	})
}

func TestSessionToolOperations(t *testing.T) {
	srv := mock.NewToolServer("tools",
		mock.EchoTool(),
		mock.ToolSpec{
			Name:        "fail",
			Description: "Always reports a tool error",
			Handler: func(map[string]interface{}) (string, error) {
				return "", fmt.Errorf("boom")
			},
		},
	)
	defer srv.Close()

	ctx := context.Background()
	s, err := Connect(ctx, srv.URL(), registry.AuthModeNone, "")
	require.NoError(t, err)
	defer Disconnect(s)

	t.Run("list tools", func(t *testing.T) {
		tools, err := s.ListTools(ctx)
		require.NoError(t, err)
		require.Len(t, tools, 2)

		names := []string{tools[0].Name, tools[1].Name}
		assert.Contains(t, names, "echo")
		assert.Contains(t, names, "fail")
		for _, tool := range tools {
			assert.NotEmpty(t, tool.InputSchema)
		}
	})

	t.Run("call tool", func(t *testing.T) {
		result, err := s.CallTool(ctx, "echo", map[string]interface{}{"message": "hello"})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		require.Len(t, result.Content, 1)
		assert.Equal(t, "text", result.Content[0].Type)
		assert.Equal(t, "hello", result.Content[0].Text)
	})

	t.Run("tool error surfaces in result", func(t *testing.T) {
		result, err := s.CallTool(ctx, "fail", nil)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestSessionAuth(t *testing.T) {
	srv := mock.NewToolServer("secured", mock.EchoTool())
	defer srv.Close()
	srv.AllowToken("good-token")

	ctx := context.Background()

	t.Run("valid bearer token", func(t *testing.T) {
		s, err := Connect(ctx, srv.URL(), registry.AuthModeOAuthDynamic, "good-token")
		require.NoError(t, err)
		Disconnect(s)
	})

	t.Run("rejected token is unauthorized", func(t *testing.T) {
		_, err := Connect(ctx, srv.URL(), registry.AuthModeOAuthDynamic, "bad-token")
		require.Error(t, err)
		assert.True(t, IsUnauthorized(err))
	})

	t.Run("api key mode", func(t *testing.T) {
		keyed := mock.NewToolServer("keyed", mock.EchoTool())
		defer keyed.Close()
		keyed.RequireAPIKey("k-1")

		s, err := Connect(ctx, keyed.URL(), registry.AuthModeAPIKey, "k-1")
		require.NoError(t, err)
		Disconnect(s)

		_, err = Connect(ctx, keyed.URL(), registry.AuthModeAPIKey, "wrong")
		assert.True(t, IsUnauthorized(err))
	})
}

func TestIsUnauthorized(t *testing.T) {
	assert.False(t, IsUnauthorized(nil))
	assert.False(t, IsUnauthorized(errors.New("connection refused")))
	assert.True(t, IsUnauthorized(errors.New("request failed with status 401")))
	assert.True(t, IsUnauthorized(errors.New("Unauthorized")))
	assert.True(t, IsUnauthorized(fmt.Errorf("call failed: %w", errors.New("invalid_token"))))
}

func TestTestConnection(t *testing.T) {
	srv := mock.NewToolServer("smoke", mock.EchoTool())
	defer srv.Close()

	ctx := context.Background()
	assert.True(t, TestConnection(ctx, srv.URL(), registry.AuthModeNone, ""))

	srv.AllowToken("tok")
	assert.False(t, TestConnection(ctx, srv.URL(), registry.AuthModeOAuthDynamic, "nope"))
	assert.True(t, TestConnection(ctx, srv.URL(), registry.AuthModeOAuthDynamic, "tok"))
}
