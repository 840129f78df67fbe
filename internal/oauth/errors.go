package oauth

import (
	"errors"
	"fmt"
)

// DiscoveryError indicates authorization-server metadata could not be
// fetched or parsed.
type DiscoveryError struct {
	Issuer string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("OAuth metadata discovery failed for %s: %v", e.Issuer, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// RegistrationError indicates dynamic client registration failed.
type RegistrationError struct {
	Endpoint string
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("dynamic client registration at %s failed: %v", e.Endpoint, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// UnsupportedServerError indicates a server's authorization server does not
// advertise a registration endpoint, so dynamic clients cannot be created
// for it.
type UnsupportedServerError struct {
	Slug string
}

func (e *UnsupportedServerError) Error() string {
	return fmt.Sprintf("server %s does not support dynamic client registration", e.Slug)
}

// TokenExchangeError indicates a token endpoint request failed. StatusCode
// and Body carry the upstream response for logging; the Error message
// deliberately omits the body.
type TokenExchangeError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token request to %s failed with status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("token request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// IsTokenExchangeError reports whether err is or wraps a TokenExchangeError.
func IsTokenExchangeError(err error) bool {
	var te *TokenExchangeError
	return errors.As(err, &te)
}
