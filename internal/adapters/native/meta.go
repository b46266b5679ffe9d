// Package native provides a rule-based pipeline runtime.
// Clean Architecture: Adapter implementing ports.PipelineRuntime.
// Model directories carry a meta.yaml and an optional SQLite lexicon.
package native

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	metaFile    = "meta.yaml"
	lexiconFile = "lexicon.db"
)

// Meta describes a model directory.
type Meta struct {
	Name      string   `yaml:"name"`
	Lang      string   `yaml:"lang"`
	Version   string   `yaml:"version"`
	Pipeline  []string `yaml:"pipeline"`
	StopWords []string `yaml:"stop_words"`
}

// ReadMeta loads meta.yaml from dir.
func ReadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}

	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metaFile, err)
	}
	return &m, nil
}

// WriteMeta stores m as meta.yaml in dir, creating dir if needed.
func WriteMeta(dir string, m *Meta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metaFile), data, 0o644)
}
