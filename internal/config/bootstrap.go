package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// bootstrapDocument mirrors the "sections" shape of the persisted JSON
// file, but in YAML, so the same -config flag the teacher's headless
// executor accepts can be reused for a human-editable seed file.
type bootstrapDocument struct {
	Sections map[string]map[string]interface{} `yaml:"sections"`
}

// SeedFromYAML reads a YAML bootstrap file and applies its sections to m,
// overwriting whatever LoadAll populated from the JSON store. It is meant
// to run once, before ApplyEnv, so env vars still win over the seed file —
// this is a convenience for first-run provisioning, not a second runtime
// source of truth.
func SeedFromYAML(m *Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read bootstrap file %s: %w", path, err)
	}

	var doc bootstrapDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse bootstrap file %s: %w", path, err)
	}

	for id, data := range doc.Sections {
		section, ok := m.GetSection(id)
		if !ok {
			return fmt.Errorf("config: bootstrap file references unknown section %q", id)
		}
		if err := section.SetData(data); err != nil {
			return fmt.Errorf("config: apply bootstrap section %q: %w", id, err)
		}
	}
	return nil
}
