// Package mock provides in-process fakes for tests: a credential-checking
// tool server speaking the real MCP streamable-HTTP protocol, and a minimal
// OAuth authorization server.
package mock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolSpec declares one tool the mock server exposes. Handler receives the
// raw arguments and returns the text content of the result.
type ToolSpec struct {
	Name        string
	Description string
	Handler     func(args map[string]interface{}) (string, error)
}

// ToolServer is an MCP server over streamable HTTP guarded by a credential
// check. With no credentials configured it accepts every request.
type ToolServer struct {
	httpSrv *httptest.Server

	mu          sync.RWMutex
	validTokens map[string]struct{}
	apiKey      string

	// Rejected counts requests turned away with 401.
	Rejected atomic.Int32
	// Served counts requests that reached the MCP handler.
	Served atomic.Int32
}

// NewToolServer starts a mock tool server exposing the given tools. Callers
// must Close it.
func NewToolServer(name string, tools ...ToolSpec) *ToolServer {
	mcpServer := server.NewMCPServer(
		name,
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	for _, spec := range tools {
		spec := spec
		tool := mcp.NewTool(spec.Name, mcp.WithDescription(spec.Description))
		mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := spec.Handler(request.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(text), nil
		})
	}

	s := &ToolServer{
		validTokens: make(map[string]struct{}),
	}

	underlying := server.NewStreamableHTTPServer(mcpServer)
	s.httpSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			s.Rejected.Add(1)
			w.Header().Set("WWW-Authenticate", `Bearer realm="mock"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.Served.Add(1)
		underlying.ServeHTTP(w, r)
	}))

	return s
}

func (s *ToolServer) authorized(r *http.Request) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.validTokens) == 0 && s.apiKey == "" {
		return true
	}

	if s.apiKey != "" {
		return r.Header.Get("X-API-Key") == s.apiKey
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	_, ok := s.validTokens[strings.TrimPrefix(auth, "Bearer ")]
	return ok
}

// AllowToken marks token as a valid bearer credential.
func (s *ToolServer) AllowToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validTokens[token] = struct{}{}
}

// RevokeToken removes token from the valid set; subsequent requests carrying
// it receive 401.
func (s *ToolServer) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.validTokens, token)
}

// RequireAPIKey switches the server to X-API-Key authentication.
func (s *ToolServer) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}

// URL returns the server's base URL.
func (s *ToolServer) URL() string {
	return s.httpSrv.URL
}

// Close shuts the server down.
func (s *ToolServer) Close() {
	s.httpSrv.Close()
}

// EchoTool returns a ToolSpec that echoes its "message" argument.
func EchoTool() ToolSpec {
	return ToolSpec{
		Name:        "echo",
		Description: "Echoes the message argument back to the caller",
		Handler: func(args map[string]interface{}) (string, error) {
			msg, _ := args["message"].(string)
			return msg, nil
		},
	}
}
