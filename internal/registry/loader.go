package registry

import (
	"fmt"
	"os"

	"toolgate/pkg/logging"

	"gopkg.in/yaml.v3"
)

// catalogueFile is the YAML shape of a server catalogue file.
type catalogueFile struct {
	Servers []*ServerConfig `yaml:"servers"`
}

// Load reads a server catalogue from a YAML file and builds a registry.
// A missing file yields an empty registry rather than an error, matching
// deployments that declare all servers programmatically.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Info("Registry", "No server catalogue at %s, starting empty", path)
			return New(nil)
		}
		return nil, fmt.Errorf("failed to read server catalogue %s: %w", path, err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse server catalogue %s: %w", path, err)
	}

	r, err := New(file.Servers)
	if err != nil {
		return nil, fmt.Errorf("invalid server catalogue %s: %w", path, err)
	}

	logging.Info("Registry", "Loaded %d server(s) from %s", len(file.Servers), path)
	return r, nil
}
