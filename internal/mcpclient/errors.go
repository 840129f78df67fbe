package mcpclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client/transport"
)

// InvalidSessionStateError indicates a protocol operation was attempted on a
// session in the wrong lifecycle state.
type InvalidSessionStateError struct {
	Op    string
	State SessionState
}

func (e *InvalidSessionStateError) Error() string {
	return fmt.Sprintf("cannot %s: session is %s", e.Op, e.State)
}

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// IsUnauthorized reports whether err represents an HTTP 401 authorization
// failure from the tool server. It checks typed transport errors first and
// falls back to message inspection, since not every transport surfaces a
// structured status code.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() == 401
	}

	var oauthErr *transport.OAuthAuthorizationRequiredError
	if errors.As(err, &oauthErr) {
		return true
	}

	errLower := strings.ToLower(err.Error())
	for _, pattern := range []string{"401", "unauthorized", "invalid_token"} {
		if strings.Contains(errLower, pattern) {
			return true
		}
	}
	return false
}
