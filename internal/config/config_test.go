package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "catalogue.yaml"), cfg.Storage.CataloguePath)
	assert.Equal(t, filepath.Join(dir, "connections.db"), cfg.Storage.DatabasePath)
	assert.Equal(t, "http://localhost:8090/oauth/callback", cfg.CallbackURI())
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 9999
  publicUrl: https://gate.example.com
storage:
  databasePath: /var/lib/toolgate/connections.db
debug: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/var/lib/toolgate/connections.db", cfg.Storage.DatabasePath)
	// Unset fields keep their defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, filepath.Join(dir, "catalogue.yaml"), cfg.Storage.CataloguePath)
	assert.Equal(t, "https://gate.example.com/oauth/callback", cfg.CallbackURI())
}

func TestCallbackURI_ExplicitOverride(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.Server.RedirectURI = "https://other.example.com/cb"
	assert.Equal(t, "https://other.example.com/cb", cfg.CallbackURI())
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: ["), 0600))

	_, err := Load(dir)
	assert.Error(t, err)
}
