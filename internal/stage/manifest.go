package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest overrides stage commands from a YAML file, letting a tool
// checkout ship its own invocation table next to the scripts.
//
//	stages:
//	  - name: training
//	    command: "{python}"
//	    args: ["s2_train.py", "--exp", "{model}"]
type Manifest struct {
	Stages []ManifestEntry `yaml:"stages"`
}

// ManifestEntry overrides a single stage. Nil fields keep the configured value.
type ManifestEntry struct {
	Name     string    `yaml:"name"`
	Command  *string   `yaml:"command"`
	Args     *[]string `yaml:"args"`
	Artifact *string   `yaml:"artifact"`
}

// LoadManifest reads and validates a stage manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse stage manifest %s: %w", path, err)
	}
	if err := manifest.validate(); err != nil {
		return nil, fmt.Errorf("invalid stage manifest %s: %w", path, err)
	}
	return &manifest, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]struct{}, len(m.Stages))
	for i, entry := range m.Stages {
		name := strings.TrimSpace(entry.Name)
		if Name(name).Ordinal() == 0 {
			return fmt.Errorf("stages[%d]: unknown stage %q", i, entry.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("stages[%d]: duplicate stage %q", i, name)
		}
		seen[name] = struct{}{}
		if entry.Command != nil && strings.TrimSpace(*entry.Command) == "" {
			return fmt.Errorf("stages[%d] (%s): command cannot be empty", i, name)
		}
		if entry.Artifact != nil && strings.ContainsRune(*entry.Artifact, filepath.Separator) {
			return fmt.Errorf("stages[%d] (%s): artifact must be a file name or glob", i, name)
		}
	}
	return nil
}

// Apply returns a copy of defs with the manifest overrides applied.
func (m *Manifest) Apply(defs []Definition) ([]Definition, error) {
	out := make([]Definition, len(defs))
	copy(out, defs)
	for _, entry := range m.Stages {
		name := Name(strings.TrimSpace(entry.Name))
		idx := -1
		for i := range out {
			if out[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("stage manifest: stage %q not defined", name)
		}
		if entry.Command != nil {
			out[idx].Command = strings.TrimSpace(*entry.Command)
		}
		if entry.Args != nil {
			out[idx].Args = append([]string(nil), (*entry.Args)...)
		}
		if entry.Artifact != nil {
			out[idx].Artifact = strings.TrimSpace(*entry.Artifact)
		}
	}
	return out, nil
}
