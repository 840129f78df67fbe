package secrets

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// masterKeyFile is the filename of the master encryption key inside the
// configuration directory.
const masterKeyFile = "master.key"

// FileKeyProvider loads or generates a master key stored on disk. It is a
// convenience for single-tenant deployments; multi-tenant deployments
// resolve per-user keys through the orchestrator's KeyResolver instead.
type FileKeyProvider struct {
	keyPath string
	key     []byte
}

// NewFileKeyProvider loads the master key from configDir, generating and
// persisting a fresh one on first use.
func NewFileKeyProvider(configDir string) (*FileKeyProvider, error) {
	p := &FileKeyProvider{keyPath: filepath.Join(configDir, masterKeyFile)}
	if err := p.loadOrGenerate(); err != nil {
		return nil, fmt.Errorf("master key init: %w", err)
	}
	return p, nil
}

func (p *FileKeyProvider) loadOrGenerate() error {
	data, err := os.ReadFile(p.keyPath)
	if err == nil && len(data) == KeySize {
		p.key = data
		return nil
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(p.keyPath, key, 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	p.key = key
	return nil
}

// Key returns the master key bytes.
func (p *FileKeyProvider) Key() []byte {
	return p.key
}

// ResolveUserEncryptionKey returns the master key for every user, making
// the provider usable as an orchestrator KeyResolver in single-tenant mode.
func (p *FileKeyProvider) ResolveUserEncryptionKey(userID string) ([]byte, error) {
	return p.key, nil
}
