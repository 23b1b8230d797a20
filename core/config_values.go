package core

import "fmt"

// CloneConfig deep copies nested maps and slices so callers never share
// mutable config state with a Request.
func CloneConfig(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneConfigValue(value)
	}
	return out
}

func cloneConfigValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CloneConfig(typed)
	case map[any]any:
		return CloneConfig(stringKeyed(typed))
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneConfigValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}

// MergeConfig returns base with overlay merged on top. Nested maps merge
// recursively, every other overlay value replaces the base value. Neither
// input is modified.
func MergeConfig(base map[string]any, overlay map[string]any) map[string]any {
	merged := CloneConfig(base)
	for key, value := range overlay {
		overlayMap, overlayIsMap := asStringMap(value)
		baseMap, baseIsMap := asStringMap(merged[key])
		if overlayIsMap && baseIsMap {
			merged[key] = MergeConfig(baseMap, overlayMap)
			continue
		}
		merged[key] = cloneConfigValue(value)
	}
	return merged
}

func asStringMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		return stringKeyed(typed), true
	default:
		return nil, false
	}
}

func stringKeyed(in map[any]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[fmt.Sprint(key)] = value
	}
	return out
}
