// Package registry holds the static catalogue of known tool servers and
// their auth requirements. It is read-only after load: no network access, no
// persistence, no mutation. Credential values resolve from environment
// bindings at call time so rotating a secret never requires a reload.
package registry

import (
	"fmt"
	"os"

	"toolgate/internal/api"
)

// Registry is the immutable catalogue of tool servers.
type Registry struct {
	configs map[string]*ServerConfig
	order   []string
}

// New builds a registry from the given configs, validating each entry.
func New(configs []*ServerConfig) (*Registry, error) {
	r := &Registry{
		configs: make(map[string]*ServerConfig, len(configs)),
	}

	for _, cfg := range configs {
		if err := validate(cfg); err != nil {
			return nil, err
		}
		if _, exists := r.configs[cfg.Slug]; exists {
			return nil, fmt.Errorf("duplicate server slug %q", cfg.Slug)
		}
		r.configs[cfg.Slug] = cfg
		r.order = append(r.order, cfg.Slug)
	}

	return r, nil
}

func validate(cfg *ServerConfig) error {
	if cfg.Slug == "" {
		return fmt.Errorf("server config missing slug")
	}
	if cfg.BaseURL == "" && cfg.BaseURLEnv == "" {
		return fmt.Errorf("server %s: baseUrl or baseUrlEnv is required", cfg.Slug)
	}
	if !cfg.AuthMode.Valid() {
		return fmt.Errorf("server %s: unknown auth mode %q", cfg.Slug, cfg.AuthMode)
	}

	switch cfg.AuthMode {
	case AuthModeOAuthStatic:
		if cfg.AuthorizationURL == "" || cfg.TokenURL == "" {
			return fmt.Errorf("server %s: oauth-static requires authorizationUrl and tokenUrl", cfg.Slug)
		}
		if cfg.ClientIDEnv == "" {
			return fmt.Errorf("server %s: oauth-static requires clientIdEnv", cfg.Slug)
		}
	case AuthModeAPIKey:
		if cfg.APIKeyEnv == "" {
			return fmt.Errorf("server %s: api-key requires apiKeyEnv", cfg.Slug)
		}
	case AuthModeOAuthDynamic, AuthModeNone:
		// Nothing beyond the common fields.
	}

	return nil
}

// List returns all configs in declaration order.
func (r *Registry) List() []*ServerConfig {
	out := make([]*ServerConfig, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.configs[slug])
	}
	return out
}

// Get returns the config for slug.
func (r *Registry) Get(slug string) (*ServerConfig, error) {
	cfg, ok := r.configs[slug]
	if !ok {
		return nil, api.NewNotFoundError("server", slug)
	}
	return cfg, nil
}

// IsConfigured reports whether the credential bindings required by the
// server's auth mode resolve to non-empty values.
func (r *Registry) IsConfigured(cfg *ServerConfig) bool {
	switch cfg.AuthMode {
	case AuthModeOAuthStatic:
		return r.ResolveClientID(cfg) != ""
	case AuthModeAPIKey:
		return r.ResolveAPIKey(cfg) != ""
	case AuthModeOAuthDynamic, AuthModeNone:
		return true
	default:
		return false
	}
}

// ResolveURL returns the effective base URL after applying the environment
// override, if any.
func (r *Registry) ResolveURL(cfg *ServerConfig) string {
	if cfg.BaseURLEnv != "" {
		if v := os.Getenv(cfg.BaseURLEnv); v != "" {
			return v
		}
	}
	return cfg.BaseURL
}

// ResolveClientID returns the static OAuth client id, or "" when the binding
// is absent or the mode does not use one.
func (r *Registry) ResolveClientID(cfg *ServerConfig) string {
	if cfg.AuthMode != AuthModeOAuthStatic || cfg.ClientIDEnv == "" {
		return ""
	}
	return os.Getenv(cfg.ClientIDEnv)
}

// ResolveClientSecret returns the static OAuth client secret, or "".
func (r *Registry) ResolveClientSecret(cfg *ServerConfig) string {
	if cfg.AuthMode != AuthModeOAuthStatic || cfg.ClientSecretEnv == "" {
		return ""
	}
	return os.Getenv(cfg.ClientSecretEnv)
}

// ResolveAPIKey returns the API key for api-key servers, or "".
func (r *Registry) ResolveAPIKey(cfg *ServerConfig) string {
	if cfg.AuthMode != AuthModeAPIKey || cfg.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(cfg.APIKeyEnv)
}
