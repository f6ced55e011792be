package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a configuration document from raw YAML bytes. The document
// must be a mapping of fragment names to fragments and must contain a
// Default fragment.
func Load(data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ValidationError{KeyPath: "", Message: fmt.Sprintf("not a valid YAML document: %v", err)}
	}
	if len(root.Content) == 0 {
		return nil, &ValidationError{KeyPath: "", Message: "configuration document is empty"}
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, &ValidationError{KeyPath: "", Message: "configuration document must be a mapping of fragment names to fragments"}
	}

	doc := Document{}
	if err := root.Decode(&doc); err != nil {
		return nil, &ValidationError{KeyPath: "", Message: err.Error()}
	}

	if _, ok := doc[DefaultKey]; !ok {
		return nil, &ValidationError{KeyPath: DefaultKey, Message: "configuration document must contain a Default fragment"}
	}
	for name, frag := range doc {
		if frag == nil {
			return nil, &ValidationError{Target: name, KeyPath: name, Message: "fragment must be a mapping"}
		}
	}

	return doc, nil
}

// LoadFile reads and parses a configuration document from a file path.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	doc, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
