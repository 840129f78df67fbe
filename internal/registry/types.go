package registry

// AuthMode describes how a tool server authenticates callers. It is a closed
// enum: every operation that branches on it carries one exhaustive switch,
// so adding a mode is a compile-visible, single-site change per operation.
type AuthMode string

const (
	// AuthModeOAuthStatic uses a pre-registered OAuth client whose id and
	// secret resolve from environment bindings.
	AuthModeOAuthStatic AuthMode = "oauth-static"

	// AuthModeOAuthDynamic registers an OAuth client at runtime via
	// RFC 7591 dynamic client registration.
	AuthModeOAuthDynamic AuthMode = "oauth-dynamic"

	// AuthModeAPIKey authenticates with a static API key from an
	// environment binding.
	AuthModeAPIKey AuthMode = "api-key"

	// AuthModeNone connects without credentials.
	AuthModeNone AuthMode = "none"
)

// Valid reports whether m is one of the known auth modes.
func (m AuthMode) Valid() bool {
	switch m {
	case AuthModeOAuthStatic, AuthModeOAuthDynamic, AuthModeAPIKey, AuthModeNone:
		return true
	default:
		return false
	}
}

// ServerConfig is the identity and auth requirements of one tool server.
// Configs are immutable after the registry is loaded. Credential material is
// never stored inline; only the names of environment variables that hold it.
type ServerConfig struct {
	// Slug is the unique identifier used in connection rows and API calls.
	Slug string `yaml:"slug"`

	// Name is the human-readable display name.
	Name string `yaml:"name"`

	// BaseURL is the tool server endpoint.
	BaseURL string `yaml:"baseUrl"`

	// BaseURLEnv optionally names an environment variable that overrides
	// BaseURL (e.g. to point a staging deployment at a sandbox server).
	BaseURLEnv string `yaml:"baseUrlEnv,omitempty"`

	// AuthMode selects the authentication strategy.
	AuthMode AuthMode `yaml:"authMode"`

	// AuthorizationURL and TokenURL are the pre-known OAuth endpoints for
	// oauth-static servers. Dynamic servers discover theirs at runtime.
	AuthorizationURL string `yaml:"authorizationUrl,omitempty"`
	TokenURL         string `yaml:"tokenUrl,omitempty"`

	// ClientIDEnv and ClientSecretEnv name the environment bindings for
	// oauth-static client credentials.
	ClientIDEnv     string `yaml:"clientIdEnv,omitempty"`
	ClientSecretEnv string `yaml:"clientSecretEnv,omitempty"`

	// Scopes are the OAuth scopes requested during authorization.
	Scopes []string `yaml:"scopes,omitempty"`

	// APIKeyEnv names the environment binding for api-key servers.
	APIKeyEnv string `yaml:"apiKeyEnv,omitempty"`
}
