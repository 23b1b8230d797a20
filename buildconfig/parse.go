// Package buildconfig decodes repository build configuration documents into
// the generic config mapping consumed by the request lifecycle.
package buildconfig

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var ErrNotMapping = errors.New("buildconfig: document must be a mapping")

// Parse decodes a YAML document. An empty document yields an empty map.
// Nested mappings are returned as map[string]any and sequences as []any.
func Parse(input []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		return map[string]any{}, nil
	}
	var raw any
	if err := yaml.Unmarshal(input, &raw); err != nil {
		return nil, fmt.Errorf("buildconfig: decode: %w", err)
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	normalized, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrNotMapping, raw)
	}
	return normalized, nil
}

func normalize(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalize(item)
		}
		return out
	default:
		return value
	}
}
