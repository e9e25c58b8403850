package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
)

// File is the on-disk flow definition.
type File struct {
	Nodes []node.Config `yaml:"nodes" json:"nodes"`
}

// LoadFile reads a flow definition. A missing file yields an empty flow.
func LoadFile(path string) ([]node.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading flows file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing flows file: %w", err)
	}
	return f.Nodes, nil
}

// SaveFile writes a flow definition, replacing the file atomically.
func SaveFile(path string, nodes []node.Config) error {
	data, err := yaml.Marshal(File{Nodes: nodes})
	if err != nil {
		return fmt.Errorf("encoding flows: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing flows file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing flows file: %w", err)
	}
	return nil
}
