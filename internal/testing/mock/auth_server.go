package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
)

// AuthServer is a minimal OAuth authorization server: RFC 8414 metadata,
// RFC 7591 registration, and a token endpoint issuing sequential
// "AT<n>"/"RT<n>" token pairs.
type AuthServer struct {
	httpSrv *httptest.Server

	// ExpiresIn is the expires_in reported on issued tokens. Zero omits it.
	ExpiresIn int

	// WithRegistration controls whether metadata advertises /register.
	WithRegistration bool

	Registrations atomic.Int32
	Exchanges     atomic.Int32
	Refreshes     atomic.Int32

	mu           sync.Mutex
	tokenSeq     int
	lastExchange url.Values
	lastRefresh  url.Values
}

// NewAuthServer starts a mock authorization server. Callers must Close it.
func NewAuthServer() *AuthServer {
	s := &AuthServer{
		ExpiresIn:        3600,
		WithRegistration: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/token", s.handleToken)
	s.httpSrv = httptest.NewServer(mux)

	return s
}

// URL returns the issuer URL.
func (s *AuthServer) URL() string {
	return s.httpSrv.URL
}

// Close shuts the server down.
func (s *AuthServer) Close() {
	s.httpSrv.Close()
}

// LastExchange returns the form values of the most recent code exchange.
func (s *AuthServer) LastExchange() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastExchange
}

// LastRefresh returns the form values of the most recent refresh request.
func (s *AuthServer) LastRefresh() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

func (s *AuthServer) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	md := map[string]interface{}{
		"issuer":                 s.httpSrv.URL,
		"authorization_endpoint": s.httpSrv.URL + "/authorize",
		"token_endpoint":         s.httpSrv.URL + "/token",
	}
	if s.WithRegistration {
		md["registration_endpoint"] = s.httpSrv.URL + "/register"
	}
	json.NewEncoder(w).Encode(md)
}

func (s *AuthServer) handleRegister(w http.ResponseWriter, _ *http.Request) {
	n := s.Registrations.Add(1)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"client_id":     fmt.Sprintf("dyn-client-%d", n),
		"client_secret": fmt.Sprintf("dyn-secret-%d", n),
	})
}

func (s *AuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.tokenSeq++
	n := s.tokenSeq
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.lastExchange = r.PostForm
		s.mu.Unlock()
		s.Exchanges.Add(1)
	case "refresh_token":
		s.lastRefresh = r.PostForm
		s.mu.Unlock()
		s.Refreshes.Add(1)
	default:
		s.mu.Unlock()
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}

	resp := map[string]interface{}{
		"access_token":  fmt.Sprintf("AT%d", n),
		"refresh_token": fmt.Sprintf("RT%d", n),
		"token_type":    "Bearer",
	}
	if s.ExpiresIn > 0 {
		resp["expires_in"] = s.ExpiresIn
	}
	json.NewEncoder(w).Encode(resp)
}
