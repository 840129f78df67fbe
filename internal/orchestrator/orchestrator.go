// Package orchestrator ties the connection-lifecycle layers together: it
// initiates authorization flows, handles OAuth callbacks with an idempotency
// window for duplicates, and drives tool listing and invocation through
// self-refreshing connections.
package orchestrator

import (
	"context"
	"time"

	"toolgate/internal/api"
	"toolgate/internal/cache"
	"toolgate/internal/connection"
	"toolgate/internal/mcpclient"
	"toolgate/internal/oauth"
	"toolgate/internal/registry"
	"toolgate/internal/store"
)

const (
	// stateTTL bounds how long an issued authorization state stays valid.
	stateTTL = 10 * time.Minute

	// idempotencyWindow is how far back a duplicate callback may match a
	// freshly created connection.
	idempotencyWindow = 10 * time.Second

	subsystem = "Orchestrator"
)

// KeyResolver supplies per-user encryption key material from the
// surrounding identity layer. The orchestrator never generates keys.
type KeyResolver interface {
	ResolveUserEncryptionKey(userID string) ([]byte, error)
}

// Dialer opens a protocol session. The default dials the real transport;
// tests substitute stubs.
type Dialer func(ctx context.Context, url string, mode registry.AuthMode, token string) (connection.ToolSession, error)

// authorizationState correlates an in-flight authorization request with its
// originating user and server. It is single-use: consumed exactly once when
// the callback arrives.
type authorizationState struct {
	UserID        string
	OrgID         string
	Slug          string
	AuthMode      registry.AuthMode
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	CodeVerifier  string
}

// ServerSummary is one registry entry with its resolved readiness.
type ServerSummary struct {
	Slug       string            `json:"slug"`
	Name       string            `json:"name"`
	AuthMode   registry.AuthMode `json:"authMode"`
	Configured bool              `json:"configured"`
}

// InitiateResult is the outcome of InitiateConnection. Either the connection
// was established immediately (Connected) or the user must visit
// AuthorizationURL.
type InitiateResult struct {
	Connected        bool   `json:"connected"`
	Message          string `json:"message,omitempty"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

// CallbackResult is the outcome of HandleCallback. Duplicate marks callbacks
// absorbed by the idempotency window.
type CallbackResult struct {
	Connection *store.Connection `json:"connection"`
	Duplicate  bool              `json:"duplicate,omitempty"`
}

// Orchestrator exposes the high-level connection operations to the
// surrounding request-handling layer.
type Orchestrator struct {
	registry    *registry.Registry
	negotiator  *oauth.Negotiator
	store       *store.Store
	keys        KeyResolver
	dial        Dialer
	states      *cache.Cache[string, *authorizationState]
	redirectURI string
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithDialer overrides how protocol sessions are opened.
func WithDialer(dial Dialer) Option {
	return func(o *Orchestrator) {
		o.dial = dial
	}
}

// New builds an Orchestrator. redirectURI is the callback URL registered
// with (or sent to) authorization servers.
func New(reg *registry.Registry, negotiator *oauth.Negotiator, st *store.Store, keys KeyResolver, redirectURI string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    reg,
		negotiator:  negotiator,
		store:       st,
		keys:        keys,
		redirectURI: redirectURI,
		states:      cache.New[string, *authorizationState](stateTTL, time.Minute),
		dial: func(ctx context.Context, url string, mode registry.AuthMode, token string) (connection.ToolSession, error) {
			return mcpclient.Connect(ctx, url, mode, token)
		},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Close stops background state-cache maintenance.
func (o *Orchestrator) Close() {
	o.states.Stop()
}

// AvailableServers lists every known server with its resolved readiness.
func (o *Orchestrator) AvailableServers() []ServerSummary {
	configs := o.registry.List()
	summaries := make([]ServerSummary, 0, len(configs))
	for _, cfg := range configs {
		summaries = append(summaries, ServerSummary{
			Slug:       cfg.Slug,
			Name:       cfg.Name,
			AuthMode:   cfg.AuthMode,
			Configured: o.registry.IsConfigured(cfg),
		})
	}
	return summaries
}

// UserConnections lists the user's connections newest-first.
func (o *Orchestrator) UserConnections(ctx context.Context, userID string) ([]*store.Connection, error) {
	return o.store.ListByUser(ctx, userID)
}

// DeleteConnection removes a connection after an ownership check.
func (o *Orchestrator) DeleteConnection(ctx context.Context, userID, connectionID string) error {
	conn, err := o.store.GetByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.UserID != userID {
		return &api.ForbiddenError{Message: "connection belongs to another user"}
	}
	return o.store.Delete(ctx, connectionID)
}

// CheckServer smoke-tests connectivity to a server using the user's stored
// credential, if any. It never refreshes tokens and is not a production
// call path.
func (o *Orchestrator) CheckServer(ctx context.Context, userID, slug string) bool {
	cfg, err := o.registry.Get(slug)
	if err != nil {
		return false
	}

	token := ""
	if conn, err := o.store.GetByUserAndSlug(ctx, userID, slug); err == nil {
		if key, err := o.keys.ResolveUserEncryptionKey(userID); err == nil {
			if tokens, err := o.store.DecryptedTokens(conn, key); err == nil {
				token = tokens.AccessToken
			}
		}
	}

	return mcpclient.TestConnection(ctx, o.registry.ResolveURL(cfg), cfg.AuthMode, token)
}
