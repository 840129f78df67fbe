package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolgate/internal/api"
	"toolgate/internal/registry"
	"toolgate/internal/store"
	"toolgate/pkg/logging"
)

// InitiateConnection starts connecting a user to a server. API-key and open
// servers connect immediately; OAuth servers yield an authorization URL the
// user must visit.
func (o *Orchestrator) InitiateConnection(ctx context.Context, userID, orgID, slug string) (*InitiateResult, error) {
	cfg, err := o.registry.Get(slug)
	if err != nil {
		return nil, err
	}

	switch cfg.AuthMode {
	case registry.AuthModeAPIKey:
		apiKey := o.registry.ResolveAPIKey(cfg)
		if apiKey == "" {
			return nil, &api.MisconfiguredServerError{Slug: slug, Reason: "API key binding resolves to an empty value"}
		}
		return o.connectImmediately(ctx, userID, orgID, slug, apiKey)

	case registry.AuthModeNone:
		return o.connectImmediately(ctx, userID, orgID, slug, "")

	case registry.AuthModeOAuthDynamic:
		return o.initiateDynamic(ctx, userID, orgID, cfg)

	case registry.AuthModeOAuthStatic:
		return o.initiateStatic(userID, orgID, cfg)
	}

	return nil, &api.MisconfiguredServerError{Slug: slug, Reason: fmt.Sprintf("unknown auth mode %q", cfg.AuthMode)}
}

// connectImmediately upserts a connection without an external round trip.
func (o *Orchestrator) connectImmediately(ctx context.Context, userID, orgID, slug, token string) (*InitiateResult, error) {
	key, err := o.keys.ResolveUserEncryptionKey(userID)
	if err != nil {
		return nil, err
	}

	if _, err := o.store.Upsert(ctx, userID, orgID, slug, store.TokenData{AccessToken: token}, key); err != nil {
		return nil, err
	}

	logging.Info(subsystem, "Connected user %s to server %s without authorization flow", userID, slug)
	return &InitiateResult{
		Connected: true,
		Message:   fmt.Sprintf("Connected to %s", slug),
	}, nil
}

func (o *Orchestrator) initiateDynamic(ctx context.Context, userID, orgID string, cfg *registry.ServerConfig) (*InitiateResult, error) {
	client, err := o.negotiator.GetOrCreateDynamicClient(ctx, cfg.Slug, o.registry.ResolveURL(cfg), o.redirectURI, cfg.Scopes)
	if err != nil {
		logging.Error(subsystem, err, "Dynamic client setup failed for server %s", cfg.Slug)
		return nil, &api.OAuthFlowError{Slug: cfg.Slug, Err: err}
	}

	pkce, err := o.negotiator.GeneratePKCE()
	if err != nil {
		return nil, &api.OAuthFlowError{Slug: cfg.Slug, Err: err}
	}

	state := uuid.New().String()
	o.states.Set(state, &authorizationState{
		UserID:        userID,
		OrgID:         orgID,
		Slug:          cfg.Slug,
		AuthMode:      registry.AuthModeOAuthDynamic,
		TokenEndpoint: client.Metadata.TokenEndpoint,
		ClientID:      client.ClientID,
		ClientSecret:  client.ClientSecret,
		CodeVerifier:  pkce.CodeVerifier,
	})

	authURL, err := o.negotiator.BuildAuthorizationURL(client.Metadata.AuthorizationEndpoint, client.ClientID, o.redirectURI, state, cfg.Scopes, pkce)
	if err != nil {
		return nil, &api.OAuthFlowError{Slug: cfg.Slug, Err: err}
	}

	return &InitiateResult{AuthorizationURL: authURL}, nil
}

func (o *Orchestrator) initiateStatic(userID, orgID string, cfg *registry.ServerConfig) (*InitiateResult, error) {
	clientID := o.registry.ResolveClientID(cfg)
	if clientID == "" {
		return nil, &api.MisconfiguredServerError{Slug: cfg.Slug, Reason: "client id binding resolves to an empty value"}
	}
	clientSecret := o.registry.ResolveClientSecret(cfg)

	state := uuid.New().String()
	// Pre-registered clients hold their own secret, so no PKCE fields are
	// needed in the state.
	o.states.Set(state, &authorizationState{
		UserID:        userID,
		OrgID:         orgID,
		Slug:          cfg.Slug,
		AuthMode:      registry.AuthModeOAuthStatic,
		TokenEndpoint: cfg.TokenURL,
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	})

	authURL, err := o.negotiator.BuildAuthorizationURL(cfg.AuthorizationURL, clientID, o.redirectURI, state, cfg.Scopes, nil)
	if err != nil {
		return nil, &api.OAuthFlowError{Slug: cfg.Slug, Err: err}
	}

	return &InitiateResult{AuthorizationURL: authURL}, nil
}

// HandleCallback completes an authorization flow. The state is consumed
// exactly once; an unrecognized state falls back to treating the callback
// as a duplicate when the user created a connection within the last few
// seconds.
func (o *Orchestrator) HandleCallback(ctx context.Context, userID, orgID, code, state string) (*CallbackResult, error) {
	if peeked, ok := o.states.Get(state); ok && peeked.UserID != userID {
		// Ownership mismatch leaves the state intact for its real owner.
		return nil, &api.ForbiddenError{Message: "authorization state belongs to another user"}
	}

	authState, ok := o.states.Take(state)
	if !ok {
		recent, err := o.store.LatestCreatedSince(ctx, userID, time.Now().UTC().Add(-idempotencyWindow))
		if err == nil {
			logging.Info(subsystem, "Treating unrecognized OAuth state as duplicate callback for user %s", userID)
			return &CallbackResult{Connection: recent, Duplicate: true}, nil
		}
		return nil, &api.InvalidOAuthStateError{}
	}

	token, err := o.negotiator.ExchangeAuthorizationCode(ctx, authState.TokenEndpoint, code, authState.ClientID, authState.ClientSecret, o.redirectURI, authState.CodeVerifier)
	if err != nil {
		logging.Error(subsystem, err, "Code exchange failed for server %s", authState.Slug)
		return nil, &api.OAuthFlowError{Slug: authState.Slug, Err: err}
	}

	key, err := o.keys.ResolveUserEncryptionKey(userID)
	if err != nil {
		return nil, err
	}

	tokens := store.TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt
		tokens.ExpiresAt = &expiresAt
	}

	conn, err := o.store.Upsert(ctx, userID, orgID, authState.Slug, tokens, key)
	if err != nil {
		return nil, err
	}

	logging.Info(subsystem, "Completed authorization for user %s on server %s", userID, authState.Slug)
	return &CallbackResult{Connection: conn}, nil
}
