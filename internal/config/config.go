// Package config loads the toolgate configuration file and supplies
// defaults for anything the file leaves out.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"toolgate/pkg/logging"
)

const (
	userConfigDir  = ".config/toolgate"
	configFileName = "config.yaml"

	// DefaultCallbackPath is appended to PublicURL to form the OAuth
	// redirect URI when RedirectURI is not set explicitly.
	DefaultCallbackPath = "/oauth/callback"
)

// Config is the top-level configuration for toolgate.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Debug   bool          `yaml:"debug,omitempty"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // default localhost
	Port int    `yaml:"port,omitempty"` // default 8090

	// PublicURL is the externally reachable base URL, used to build the
	// OAuth redirect URI for authorization servers.
	PublicURL string `yaml:"publicUrl,omitempty"`

	// RedirectURI overrides the PublicURL-derived callback address.
	RedirectURI string `yaml:"redirectUri,omitempty"`
}

// StorageConfig holds file locations for persistent state.
type StorageConfig struct {
	// CataloguePath is the YAML file listing available tool servers.
	CataloguePath string `yaml:"cataloguePath,omitempty"`

	// DatabasePath is the SQLite file for stored connections.
	DatabasePath string `yaml:"databasePath,omitempty"`

	// SecretsDir holds encryption key material.
	SecretsDir string `yaml:"secretsDir,omitempty"`
}

// CallbackURI returns the OAuth redirect URI for this deployment.
func (c *Config) CallbackURI() string {
	if c.Server.RedirectURI != "" {
		return c.Server.RedirectURI
	}
	return c.Server.PublicURL + DefaultCallbackPath
}

// DefaultConfigPathOrPanic returns the per-user configuration directory.
func DefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// Default returns the built-in configuration, rooted at configPath for all
// file locations.
func Default(configPath string) Config {
	return Config{
		Server: ServerConfig{
			Host:      "localhost",
			Port:      8090,
			PublicURL: "http://localhost:8090",
		},
		Storage: StorageConfig{
			CataloguePath: filepath.Join(configPath, "catalogue.yaml"),
			DatabasePath:  filepath.Join(configPath, "connections.db"),
			SecretsDir:    filepath.Join(configPath, "secrets"),
		},
	}
}

// Load reads config.yaml from configPath, overlaying it on the defaults.
// A missing file is not an error.
func Load(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := Default(configPath)

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return cfg, nil
}
