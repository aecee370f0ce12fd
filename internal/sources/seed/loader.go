// Package seed reads users and targets from a YAML file.
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads the seed file. ${VAR} references are expanded from the
// environment before parsing, so secrets can stay out of the file.
type Loader struct {
	filePath string
	getenv   func(string) string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath, getenv: os.Getenv}
}

func (l *Loader) Path() string { return l.filePath }

func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read seed file: %w", err)
	}

	expanded := os.Expand(string(data), l.getenv)

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return File{}, fmt.Errorf("failed to parse seed yaml: %w", err)
	}
	return f, nil
}
