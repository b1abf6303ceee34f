package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads a spec document from a YAML or JSON file.
func LoadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return doc, nil
}

// ParseDocument decodes a YAML or JSON spec document into plain mappings
// with string keys.
func ParseDocument(data []byte) (map[string]any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	doc, ok := normalizeYAML(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("spec document must be a mapping, got %s", jsonTypeName(raw))
	}
	return doc, nil
}

func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
