package layer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadStack reads a stack from a .json, .yaml or .yml file.
func LoadStack(path string) (Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stack{}, err
	}

	var s Stack
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		return Stack{}, fmt.Errorf("unsupported stack file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return Stack{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// SaveStack writes a stack to a .json, .yaml or .yml file.
func SaveStack(path string, s Stack) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(s, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(s)
	default:
		return fmt.Errorf("unsupported stack file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
