// Package mcpclient opens transport-level sessions to remote tool servers
// and exposes tool listing and invocation in a normalized shape.
package mcpclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"toolgate/internal/registry"
	"toolgate/pkg/logging"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "toolgate"
	clientVersion   = "1.0.0"

	subsystem = "MCPClient"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateUnconnected SessionState = iota
	StateConnected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// BuildHeaders returns the HTTP headers carrying the credential for the
// given auth mode: a bearer header for OAuth modes, X-API-Key for API-key
// servers, and nothing for open servers.
func BuildHeaders(mode registry.AuthMode, token string) map[string]string {
	headers := make(map[string]string)
	switch mode {
	case registry.AuthModeOAuthStatic, registry.AuthModeOAuthDynamic:
		headers["Authorization"] = "Bearer " + token
	case registry.AuthModeAPIKey:
		headers["X-API-Key"] = token
	case registry.AuthModeNone:
	}
	return headers
}

// Session is one open protocol session to a tool server. Its lifecycle is
// Unconnected -> Connected -> Closed; operations outside Connected fail with
// InvalidSessionStateError.
type Session struct {
	url     string
	headers map[string]string

	mu         sync.RWMutex
	state      SessionState
	client     client.MCPClient
	serverInfo *ServerInfo
}

// NewSession creates an unconnected session for url with the given headers.
func NewSession(url string, headers map[string]string) *Session {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &Session{
		url:     url,
		headers: headers,
	}
}

// Connect opens a session to url, authenticating per the server's auth mode,
// and performs the protocol handshake.
func Connect(ctx context.Context, url string, mode registry.AuthMode, token string) (*Session, error) {
	s := NewSession(url, BuildHeaders(mode, token))
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize establishes the connection and performs the protocol handshake.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnected:
		return nil
	case StateClosed:
		return &InvalidSessionStateError{Op: "initialize", State: s.state}
	}

	logging.Debug(subsystem, "Creating StreamableHTTP client for URL: %s", s.url)

	var opts []transport.StreamableHTTPCOption
	if len(s.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(s.headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(s.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to create StreamableHTTP client: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	s.client = mcpClient
	s.state = StateConnected
	s.serverInfo = &ServerInfo{
		Name:            initResult.ServerInfo.Name,
		Version:         initResult.ServerInfo.Version,
		ProtocolVersion: initResult.ProtocolVersion,
		HasTools:        initResult.Capabilities.Tools != nil,
		HasResources:    initResult.Capabilities.Resources != nil,
		HasPrompts:      initResult.Capabilities.Prompts != nil,
	}

	logging.Debug(subsystem, "Session initialized. Server: %s, Version: %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

// checkConnected verifies the session is usable for op. Caller must hold at
// least a read lock.
func (s *Session) checkConnected(op string) error {
	if s.state != StateConnected || s.client == nil {
		return &InvalidSessionStateError{Op: op, State: s.state}
	}
	return nil
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ServerInfo returns the handshake result. It fails unless the session is
// connected.
func (s *Session) ServerInfo() (*ServerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected("get server info"); err != nil {
		return nil, err
	}
	return s.serverInfo, nil
}

// ListTools returns the server's tool catalogue.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected("list tools"); err != nil {
		return nil, err
	}

	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tool, err := toolFromMCP(t)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize tool %s: %w", t.Name, err)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// CallTool invokes one tool and returns its normalized result.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected("call tool"); err != nil {
		return nil, err
	}

	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}

	return resultFromMCP(result), nil
}

// Close shuts down the session. It is idempotent; a closed session stays
// closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected || s.client == nil {
		s.state = StateClosed
		return nil
	}

	err := s.client.Close()
	s.client = nil
	s.state = StateClosed
	return err
}

// Disconnect closes the session, downgrading close-time errors to a warning.
// Closing a half-broken session must never fail the enclosing operation.
func Disconnect(s *Session) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		logging.Warn(subsystem, "Error closing session to %s: %v", s.url, err)
	}
}

// TestConnection connects, fetches server info, and disconnects. It reports
// whether the server answered the handshake; it is a configuration smoke
// test, never a production call path.
func TestConnection(ctx context.Context, url string, mode registry.AuthMode, token string) bool {
	session, err := Connect(ctx, url, mode, token)
	if err != nil {
		logging.Debug(subsystem, "Connection test failed for %s: %v", url, err)
		return false
	}
	defer Disconnect(session)

	if _, err := session.ServerInfo(); err != nil {
		return false
	}
	return true
}
