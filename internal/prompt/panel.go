// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"go.yaml.in/yaml/v3"
)

//go:embed panel.yaml
var defaultPanelYAML []byte

// Persona is one reviewer: who the model should be, what it is after, and the
// task template it is given.
type Persona struct {
	// Key identifies the persona in logs, reports and the archive.
	Key string `yaml:"key"`

	// Label heads the persona's section of the aggregation input.
	Label string `yaml:"label"`

	Role string `yaml:"role"`
	Goal string `yaml:"goal"`

	// Model is the remote model variant. Empty means the panel default.
	Model string `yaml:"model,omitempty"`

	// Template is a text/template. Specialists receive {{.Document}};
	// the aggregator receives {{.Reviews}}.
	Template string `yaml:"template"`
}

// Panel is the static table of reviewers. The order of Specialists fixes
// the order of sections in the aggregation input.
type Panel struct {
	DefaultModel string    `yaml:"default_model"`
	Specialists  []Persona `yaml:"specialists"`
	Aggregator   Persona   `yaml:"aggregator"`
}

// DefaultPanel returns the built-in panel: a lawyer, a buyer's agent and a
// conveyancer, combined by a principal lawyer.
func DefaultPanel() Panel {
	p, err := ParsePanel(defaultPanelYAML)
	if err != nil {
		panic(fmt.Sprintf("prompt: built-in panel is invalid: %v", err))
	}
	return p
}

// LoadPanel reads and validates a panel from a YAML file.
func LoadPanel(path string) (Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Panel{}, fmt.Errorf("reading panel: %w", err)
	}
	p, err := ParsePanel(data)
	if err != nil {
		return Panel{}, fmt.Errorf("panel %s: %w", path, err)
	}
	return p, nil
}

// ParsePanel decodes and validates a panel from YAML.
func ParsePanel(data []byte) (Panel, error) {
	var p Panel
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Panel{}, fmt.Errorf("parsing panel: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Panel{}, err
	}
	return p, nil
}

// Marshal renders the panel as YAML.
func (p Panel) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Validate checks that the panel can drive a review run.
func (p Panel) Validate() error {
	if len(p.Specialists) == 0 {
		return fmt.Errorf("panel has no specialists")
	}
	seen := make(map[string]bool, len(p.Specialists)+1)
	for i, s := range p.Specialists {
		if err := s.validate(); err != nil {
			return fmt.Errorf("specialist %d: %w", i, err)
		}
		if seen[s.Key] {
			return fmt.Errorf("specialist %d: duplicate key %q", i, s.Key)
		}
		seen[s.Key] = true
		if s.Model == "" && p.DefaultModel == "" {
			return fmt.Errorf("specialist %q: no model and no default_model", s.Key)
		}
	}
	if err := p.Aggregator.validate(); err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	if seen[p.Aggregator.Key] {
		return fmt.Errorf("aggregator: key %q is also a specialist", p.Aggregator.Key)
	}
	if p.Aggregator.Model == "" && p.DefaultModel == "" {
		return fmt.Errorf("aggregator: no model and no default_model")
	}
	return nil
}

func (s Persona) validate() error {
	fields := []struct{ name, value string }{
		{"key", s.Key},
		{"label", s.Label},
		{"role", s.Role},
		{"goal", s.Goal},
		{"template", s.Template},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("missing %s", f.name)
		}
	}
	if _, err := template.New(s.Key).Option("missingkey=error").Parse(s.Template); err != nil {
		return fmt.Errorf("persona %q: parsing template: %w", s.Key, err)
	}
	return nil
}

// Keys returns the specialist keys in panel order.
func (p Panel) Keys() []string {
	keys := make([]string, len(p.Specialists))
	for i, s := range p.Specialists {
		keys[i] = s.Key
	}
	return keys
}

// model returns the persona's model, falling back to the panel default.
func (p Panel) model(s Persona) string {
	if s.Model != "" {
		return s.Model
	}
	return p.DefaultModel
}
