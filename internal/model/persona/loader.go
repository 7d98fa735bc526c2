package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type registryFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads a YAML registry of the form
//
//	personas:
//	  - key: CFO
//	    name: Chief Financial Officer
//	    ...
//
// and builds a MemoryStore from it.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a MemoryStore from YAML bytes.
func Parse(data []byte) (*MemoryStore, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode persona registry: %w", err)
	}
	for i, p := range file.Personas {
		if p.Name == "" {
			return nil, fmt.Errorf("persona %q (index %d) has no name", p.Key, i)
		}
		if p.Prompt == "" {
			return nil, fmt.Errorf("persona %q has no prompt", p.Key)
		}
	}
	return NewMemoryStore(file.Personas)
}
