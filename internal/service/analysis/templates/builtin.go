package templates

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"figmant/internal/domain/models/analysis"
)

//go:embed builtin/*.yaml
var builtinFiles embed.FS

type builtinFile struct {
	Templates []analysis.Template `yaml:"templates"`
}

// LoadBuiltins parses the embedded built-in template catalog, in file order
func LoadBuiltins() ([]analysis.Template, error) {
	data, err := builtinFiles.ReadFile("builtin/templates.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in templates: %w", err)
	}

	var file builtinFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal built-in templates: %w", err)
	}

	seen := make(map[string]bool, len(file.Templates))
	for i := range file.Templates {
		t := &file.Templates[i]
		if t.ID == "" || seen[t.ID] {
			return nil, fmt.Errorf("built-in template %d: missing or duplicate id %q", i, t.ID)
		}
		if err := validateFields(t.ContextualFields); err != nil {
			return nil, fmt.Errorf("built-in template %s: %w", t.ID, err)
		}
		seen[t.ID] = true
		t.BuiltIn = true
	}
	return file.Templates, nil
}
