// Package oauth implements the client side of the authorization flows
// toolgate drives against third-party authorization servers: RFC 8414
// metadata discovery, RFC 7591 dynamic client registration, PKCE, and
// token exchange/refresh.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"toolgate/internal/cache"
	"toolgate/pkg/logging"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is the default TTL for cached OAuth metadata.
	DefaultMetadataCacheTTL = 30 * time.Minute

	// DefaultClientCacheTTL is the default TTL for cached dynamic client
	// registrations.
	DefaultClientCacheTTL = 24 * time.Hour

	// DefaultClientName is the client_name sent in registration requests.
	DefaultClientName = "toolgate"

	subsystem = "OAuth"
)

// metadataCacheEntry holds cached OAuth metadata with its timestamp.
type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Negotiator handles OAuth 2.1 protocol operations against arbitrary
// third-party authorization servers: metadata discovery, dynamic client
// registration, PKCE generation, and token exchange/refresh.
type Negotiator struct {
	httpClient *http.Client
	clientName string

	// Metadata cache with mutex for thread safety
	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration

	// singleflight groups to deduplicate concurrent fetches
	metadataGroup singleflight.Group
	clientGroup   singleflight.Group

	// clients caches dynamic registrations per server slug.
	clients *cache.Cache[string, *DynamicClient]
}

// Option configures the Negotiator.
type Option func(*Negotiator)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(n *Negotiator) {
		n.httpClient = httpClient
	}
}

// WithMetadataCacheTTL sets the metadata cache TTL.
func WithMetadataCacheTTL(ttl time.Duration) Option {
	return func(n *Negotiator) {
		n.metadataTTL = ttl
	}
}

// WithClientName sets the client_name used for dynamic registration.
func WithClientName(name string) Option {
	return func(n *Negotiator) {
		n.clientName = name
	}
}

// WithClientCacheTTL sets the dynamic client registration cache TTL.
func WithClientCacheTTL(ttl time.Duration) Option {
	return func(n *Negotiator) {
		n.clients.Stop()
		n.clients = cache.New[string, *DynamicClient](ttl, ttl/4)
	}
}

// NewNegotiator creates a Negotiator with the given options.
func NewNegotiator(opts ...Option) *Negotiator {
	n := &Negotiator{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		clientName:    DefaultClientName,
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
		clients:       cache.New[string, *DynamicClient](DefaultClientCacheTTL, time.Hour),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Close stops the background cache maintenance.
func (n *Negotiator) Close() {
	n.clients.Stop()
}

// DiscoverMetadata fetches OAuth metadata from the issuer's well-known
// endpoint. It tries RFC 8414 (/.well-known/oauth-authorization-server)
// first, then falls back to OpenID Connect (/.well-known/openid-configuration).
//
// Results are cached with a TTL to reduce network requests; concurrent
// fetches for the same issuer collapse to one round trip.
func (n *Negotiator) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	n.metadataMu.RLock()
	if entry, ok := n.metadataCache[issuer]; ok {
		if time.Since(entry.fetchedAt) < n.metadataTTL {
			n.metadataMu.RUnlock()
			return entry.metadata, nil
		}
	}
	n.metadataMu.RUnlock()

	result, err, _ := n.metadataGroup.Do(issuer, func() (interface{}, error) {
		// Double-check cache after acquiring singleflight lock
		n.metadataMu.RLock()
		if entry, ok := n.metadataCache[issuer]; ok {
			if time.Since(entry.fetchedAt) < n.metadataTTL {
				n.metadataMu.RUnlock()
				return entry.metadata, nil
			}
		}
		n.metadataMu.RUnlock()

		return n.doDiscoverMetadata(ctx, issuer)
	})

	if err != nil {
		return nil, err
	}

	return result.(*Metadata), nil
}

func (n *Negotiator) doDiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	// Try RFC 8414 first
	metadata, err := n.fetchMetadata(ctx, issuer+"/.well-known/oauth-authorization-server")
	if err == nil {
		n.cacheMetadata(issuer, metadata)
		return metadata, nil
	}

	logging.Debug(subsystem, "RFC 8414 metadata fetch failed for issuer=%s, trying OIDC: %v", issuer, err)

	// Fall back to OpenID Connect discovery
	metadata, err = n.fetchMetadata(ctx, issuer+"/.well-known/openid-configuration")
	if err == nil {
		n.cacheMetadata(issuer, metadata)
		return metadata, nil
	}

	return nil, &DiscoveryError{Issuer: issuer, Err: err}
}

func (n *Negotiator) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &metadata, nil
}

func (n *Negotiator) cacheMetadata(issuer string, metadata *Metadata) {
	n.metadataMu.Lock()
	n.metadataCache[issuer] = &metadataCacheEntry{
		metadata:  metadata,
		fetchedAt: time.Now(),
	}
	n.metadataMu.Unlock()

	logging.Debug(subsystem, "Cached OAuth metadata for issuer=%s (auth=%s, token=%s)",
		issuer, metadata.AuthorizationEndpoint, metadata.TokenEndpoint)
}

// ClearMetadataCache clears the metadata cache. Useful for testing or when
// metadata needs to be refreshed immediately.
func (n *Negotiator) ClearMetadataCache() {
	n.metadataMu.Lock()
	n.metadataCache = make(map[string]*metadataCacheEntry)
	n.metadataMu.Unlock()
}

// GeneratePKCE generates a PKCE code verifier and its S256 challenge from a
// cryptographically secure random source.
func (n *Negotiator) GeneratePKCE() (*PKCEChallenge, error) {
	// 32 random bytes for the verifier
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// RegisterClient performs RFC 7591 dynamic client registration at the given
// endpoint, requesting the authorization_code and refresh_token grants.
func (n *Negotiator) RegisterClient(ctx context.Context, registrationEndpoint, redirectURI string, scopes []string) (*ClientRegistration, error) {
	reqBody := registrationRequest{
		ClientName:              n.clientName,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "client_secret_post",
		Scope:                   strings.Join(scopes, " "),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &RegistrationError{Endpoint: registrationEndpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, &RegistrationError{Endpoint: registrationEndpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &RegistrationError{Endpoint: registrationEndpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &RegistrationError{Endpoint: registrationEndpoint, Err: err}
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		logging.Debug(subsystem, "Registration failed with status %d: %s", resp.StatusCode, string(body))
		return nil, &RegistrationError{
			Endpoint: registrationEndpoint,
			Err:      fmt.Errorf("registration failed with status %d", resp.StatusCode),
		}
	}

	var registration ClientRegistration
	if err := json.Unmarshal(body, &registration); err != nil {
		return nil, &RegistrationError{Endpoint: registrationEndpoint, Err: fmt.Errorf("failed to parse registration response: %w", err)}
	}
	if registration.ClientID == "" {
		return nil, &RegistrationError{Endpoint: registrationEndpoint, Err: fmt.Errorf("registration response missing client_id")}
	}

	logging.Info(subsystem, "Registered dynamic OAuth client (client_id=%s)", registration.ClientID)
	return &registration, nil
}

// GetOrCreateDynamicClient returns the cached dynamic client for slug, or
// discovers the server's metadata and registers a fresh client. Concurrent
// first-time registrations for the same slug collapse to one round trip.
// Servers whose metadata advertises no registration endpoint fail with
// UnsupportedServerError.
func (n *Negotiator) GetOrCreateDynamicClient(ctx context.Context, slug, baseURL, redirectURI string, scopes []string) (*DynamicClient, error) {
	if client, ok := n.clients.Get(slug); ok {
		return client, nil
	}

	result, err, _ := n.clientGroup.Do(slug, func() (interface{}, error) {
		if client, ok := n.clients.Get(slug); ok {
			return client, nil
		}

		metadata, err := n.DiscoverMetadata(ctx, baseURL)
		if err != nil {
			return nil, err
		}
		if metadata.RegistrationEndpoint == "" {
			return nil, &UnsupportedServerError{Slug: slug}
		}

		registration, err := n.RegisterClient(ctx, metadata.RegistrationEndpoint, redirectURI, scopes)
		if err != nil {
			return nil, err
		}

		client := &DynamicClient{
			Metadata:     metadata,
			ClientID:     registration.ClientID,
			ClientSecret: registration.ClientSecret,
		}
		n.clients.Set(slug, client)
		return client, nil
	})

	if err != nil {
		return nil, err
	}

	return result.(*DynamicClient), nil
}

// ExchangeAuthorizationCode exchanges an authorization code for tokens.
// clientSecret and codeVerifier are included only when non-empty.
func (n *Negotiator) ExchangeAuthorizationCode(ctx context.Context, tokenEndpoint, code, clientID, clientSecret, redirectURI, codeVerifier string) (*Token, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"client_id":    {clientID},
		"redirect_uri": {redirectURI},
	}
	if clientSecret != "" {
		data.Set("client_secret", clientSecret)
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	return n.doTokenRequest(ctx, tokenEndpoint, data)
}

// RefreshAccessToken obtains a new access token using a refresh token.
// clientSecret is included only when non-empty.
func (n *Negotiator) RefreshAccessToken(ctx context.Context, tokenEndpoint, refreshToken, clientID, clientSecret string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}
	if clientSecret != "" {
		data.Set("client_secret", clientSecret)
	}

	return n.doTokenRequest(ctx, tokenEndpoint, data)
}

func (n *Negotiator) doTokenRequest(ctx context.Context, tokenEndpoint string, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &TokenExchangeError{Endpoint: tokenEndpoint, Err: err}
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &TokenExchangeError{Endpoint: tokenEndpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TokenExchangeError{Endpoint: tokenEndpoint, Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logging.Debug(subsystem, "Token request failed (status=%d)", resp.StatusCode)
		return nil, &TokenExchangeError{Endpoint: tokenEndpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &TokenExchangeError{Endpoint: tokenEndpoint, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}

	// Calculate expiration if not set
	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// BuildAuthorizationURL constructs an OAuth authorization URL. pkce may be
// nil for flows that do not use a challenge.
func (n *Negotiator) BuildAuthorizationURL(authEndpoint, clientID, redirectURI, state string, scopes []string, pkce *PKCEChallenge) (string, error) {
	authURL, err := url.Parse(authEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("state", state)

	if len(scopes) > 0 {
		query.Set("scope", strings.Join(scopes, " "))
	}

	if pkce != nil {
		query.Set("code_challenge", pkce.CodeChallenge)
		query.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}
