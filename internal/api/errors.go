// Package api defines the error taxonomy shared across toolgate's
// connection-lifecycle layers. Components return these typed errors so the
// surrounding request-handling layer can map them to transport-level
// responses without string matching.
package api

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a referenced server, connection, or user does not
// exist.
type NotFoundError struct {
	// ResourceType categorizes what was not found ("server", "connection",
	// "user").
	ResourceType string

	// ResourceName is the identifier that failed to resolve.
	ResourceName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// MisconfiguredServerError indicates a server's required credential bindings
// do not resolve to usable values (e.g. an OAuth-static server without a
// client id in the environment).
type MisconfiguredServerError struct {
	Slug   string
	Reason string
}

func (e *MisconfiguredServerError) Error() string {
	return fmt.Sprintf("server %s is not configured: %s", e.Slug, e.Reason)
}

// ForbiddenError indicates an ownership mismatch: the caller tried to act on
// a connection or authorization state belonging to another user.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "forbidden"
}

// IsForbidden reports whether err is or wraps a ForbiddenError.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// InvalidOAuthStateError indicates an OAuth callback presented a state token
// that is unknown or expired and no recent connection matched the
// idempotency fallback.
type InvalidOAuthStateError struct{}

func (e *InvalidOAuthStateError) Error() string {
	return "invalid or expired OAuth state"
}

// OAuthFlowError is the single user-facing error for authorization flow
// failures. Upstream OAuth error bodies are logged internally and never
// carried here.
type OAuthFlowError struct {
	Slug string
	Err  error
}

func (e *OAuthFlowError) Error() string {
	return fmt.Sprintf("OAuth flow failed for server %s", e.Slug)
}

// Unwrap exposes the internal cause for logging and tests; the message above
// is what callers should surface.
func (e *OAuthFlowError) Unwrap() error {
	return e.Err
}

// NoRefreshTokenError indicates a token refresh was attempted for a
// connection that has no stored refresh token.
type NoRefreshTokenError struct {
	Slug string
}

func (e *NoRefreshTokenError) Error() string {
	return fmt.Sprintf("no refresh token stored for server %s", e.Slug)
}
