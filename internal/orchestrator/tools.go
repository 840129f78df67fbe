package orchestrator

import (
	"context"
	"time"

	"toolgate/internal/api"
	"toolgate/internal/connection"
	"toolgate/internal/mcpclient"
	"toolgate/internal/oauth"
	"toolgate/internal/registry"
	"toolgate/internal/store"
	"toolgate/pkg/logging"
)

// ListServerTools lists the tool catalogue of a server the user is
// connected to, transparently refreshing expired credentials.
func (o *Orchestrator) ListServerTools(ctx context.Context, userID, slug string) ([]mcpclient.Tool, error) {
	conn, err := o.openConnection(ctx, userID, slug)
	if err != nil {
		return nil, err
	}
	defer o.closeConnection(conn, slug)

	return connection.WithAuthRetry(ctx, conn, conn.ListTools)
}

// CallServerTool invokes one tool on a server the user is connected to,
// transparently refreshing expired credentials.
func (o *Orchestrator) CallServerTool(ctx context.Context, userID, slug, tool string, args map[string]interface{}) (*mcpclient.ToolResult, error) {
	conn, err := o.openConnection(ctx, userID, slug)
	if err != nil {
		return nil, err
	}
	defer o.closeConnection(conn, slug)

	return connection.WithAuthRetry(ctx, conn, func(ctx context.Context) (*mcpclient.ToolResult, error) {
		return conn.CallTool(ctx, tool, args)
	})
}

// closeConnection tears down the (possibly replaced) underlying session.
// Close-time errors never fail the enclosing operation.
func (o *Orchestrator) closeConnection(conn *connection.SelfRefreshing, slug string) {
	if err := conn.Close(); err != nil {
		logging.Warn(subsystem, "Error closing session to server %s: %v", slug, err)
	}
}

// openConnection loads the user's stored credentials for slug, proactively
// refreshes tokens that are about to expire, dials a session, and wraps it
// with a refresh callback bound to this user and server.
func (o *Orchestrator) openConnection(ctx context.Context, userID, slug string) (*connection.SelfRefreshing, error) {
	cfg, err := o.registry.Get(slug)
	if err != nil {
		return nil, err
	}

	row, err := o.store.GetByUserAndSlug(ctx, userID, slug)
	if err != nil {
		return nil, err
	}

	key, err := o.keys.ResolveUserEncryptionKey(userID)
	if err != nil {
		return nil, err
	}

	tokens, err := o.store.DecryptedTokens(row, key)
	if err != nil {
		return nil, err
	}

	refreshable := cfg.AuthMode == registry.AuthModeOAuthStatic || cfg.AuthMode == registry.AuthModeOAuthDynamic

	// Refresh ahead of expiry instead of waiting for the server's 401.
	if refreshable && tokens.RefreshToken != "" && expiresWithin(tokens.ExpiresAt, oauth.TokenRefreshThreshold) {
		refreshed, err := o.refreshStoredTokens(ctx, cfg, userID, key)
		if err != nil {
			logging.Warn(subsystem, "Proactive token refresh failed for server %s, continuing with stored token: %v", slug, err)
		} else {
			tokens = refreshed
		}
	}

	url := o.registry.ResolveURL(cfg)

	var refresh connection.RefreshFunc
	if refreshable {
		refresh = func(ctx context.Context) (*connection.RefreshResult, error) {
			refreshed, err := o.refreshStoredTokens(ctx, cfg, userID, key)
			if err != nil {
				return nil, err
			}
			session, err := o.dial(ctx, url, cfg.AuthMode, refreshed.AccessToken)
			if err != nil {
				return nil, err
			}
			return &connection.RefreshResult{AccessToken: refreshed.AccessToken, Session: session}, nil
		}
	}

	session, err := o.dial(ctx, url, cfg.AuthMode, tokens.AccessToken)
	if err != nil {
		// A revoked or stale token can fail the handshake itself before any
		// tool operation runs; recover once the same way WithAuthRetry does.
		if refresh == nil || !mcpclient.IsUnauthorized(err) {
			return nil, err
		}
		result, refreshErr := refresh(ctx)
		if refreshErr != nil {
			return nil, refreshErr
		}
		return connection.NewSelfRefreshing(result.Session, result.AccessToken, refresh), nil
	}

	return connection.NewSelfRefreshing(session, tokens.AccessToken, refresh), nil
}

// refreshStoredTokens performs one token refresh for the user's connection
// to cfg and persists the result. The refreshed bundle keeps the previous
// refresh token when the server does not rotate it.
func (o *Orchestrator) refreshStoredTokens(ctx context.Context, cfg *registry.ServerConfig, userID string, key []byte) (*store.TokenData, error) {
	row, err := o.store.GetByUserAndSlug(ctx, userID, cfg.Slug)
	if err != nil {
		return nil, err
	}

	tokens, err := o.store.DecryptedTokens(row, key)
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == "" {
		return nil, &api.NoRefreshTokenError{Slug: cfg.Slug}
	}

	tokenEndpoint, clientID, clientSecret, err := o.resolveTokenCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	token, err := o.negotiator.RefreshAccessToken(ctx, tokenEndpoint, tokens.RefreshToken, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	refreshed := store.TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt
		refreshed.ExpiresAt = &expiresAt
	}

	if err := o.store.UpdateTokens(ctx, row, refreshed, key); err != nil {
		return nil, err
	}

	logging.Debug(subsystem, "Refreshed tokens for user %s on server %s", userID, cfg.Slug)
	return &refreshed, nil
}

// resolveTokenCredentials picks the client credentials and token endpoint
// for cfg's auth mode: the cached dynamic registration for dynamic servers,
// the configured bindings for static ones.
func (o *Orchestrator) resolveTokenCredentials(ctx context.Context, cfg *registry.ServerConfig) (tokenEndpoint, clientID, clientSecret string, err error) {
	switch cfg.AuthMode {
	case registry.AuthModeOAuthDynamic:
		client, err := o.negotiator.GetOrCreateDynamicClient(ctx, cfg.Slug, o.registry.ResolveURL(cfg), o.redirectURI, cfg.Scopes)
		if err != nil {
			return "", "", "", err
		}
		return client.Metadata.TokenEndpoint, client.ClientID, client.ClientSecret, nil

	case registry.AuthModeOAuthStatic:
		clientID := o.registry.ResolveClientID(cfg)
		if clientID == "" {
			return "", "", "", &api.MisconfiguredServerError{Slug: cfg.Slug, Reason: "client id binding resolves to an empty value"}
		}
		return cfg.TokenURL, clientID, o.registry.ResolveClientSecret(cfg), nil
	}

	return "", "", "", &api.MisconfiguredServerError{Slug: cfg.Slug, Reason: "auth mode does not support token refresh"}
}

func expiresWithin(expiresAt *time.Time, threshold time.Duration) bool {
	if expiresAt == nil {
		return false
	}
	return time.Now().Add(threshold).After(*expiresAt)
}
