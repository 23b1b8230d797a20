package core

import (
	"fmt"
	"strings"
)

const (
	BranchesConfigKey = "branches"
	branchesOnlyKey   = "only"
	branchesExceptKey = "except"
	branchWildcard    = "*"
)

type FilterKind string

const (
	FilterKindNone          FilterKind = "none"
	FilterKindOnly          FilterKind = "only"
	FilterKindExcept        FilterKind = "except"
	FilterKindOnlyAndExcept FilterKind = "only_and_except"
	// FilterKindMalformed marks a branches value of an unsupported shape.
	FilterKindMalformed FilterKind = "malformed"
)

// FilterSpec is the normalized form of config["branches"].
type FilterSpec struct {
	Kind   FilterKind
	Only   []string
	Except []string
}

// BranchDecision explains an admission decision.
type BranchDecision struct {
	Branch   string
	Approved bool
	Kind     FilterKind
	Matched  string
}

// ParseFilterSpec normalizes the branches entry of config. It never mutates
// config.
func ParseFilterSpec(config map[string]any) FilterSpec {
	raw, ok := config[BranchesConfigKey]
	if !ok || raw == nil {
		return FilterSpec{Kind: FilterKindNone}
	}

	if mapping, isMap := asStringMap(raw); isMap {
		return parseFilterMapping(mapping)
	}

	patterns, valid := normalizePatterns(raw)
	if !valid {
		return FilterSpec{Kind: FilterKindMalformed}
	}
	if len(patterns) == 0 {
		return FilterSpec{Kind: FilterKindNone}
	}
	return FilterSpec{Kind: FilterKindOnly, Only: patterns}
}

func parseFilterMapping(mapping map[string]any) FilterSpec {
	spec := FilterSpec{}
	if raw, ok := mapping[branchesOnlyKey]; ok && raw != nil {
		patterns, valid := normalizePatterns(raw)
		if !valid {
			return FilterSpec{Kind: FilterKindMalformed}
		}
		spec.Only = patterns
	}
	if raw, ok := mapping[branchesExceptKey]; ok && raw != nil {
		patterns, valid := normalizePatterns(raw)
		if !valid {
			return FilterSpec{Kind: FilterKindMalformed}
		}
		spec.Except = patterns
	}

	switch {
	case len(spec.Only) > 0 && len(spec.Except) > 0:
		spec.Kind = FilterKindOnlyAndExcept
	case len(spec.Only) > 0:
		spec.Kind = FilterKindOnly
	case len(spec.Except) > 0:
		spec.Kind = FilterKindExcept
	default:
		spec.Kind = FilterKindNone
	}
	return spec
}

// normalizePatterns accepts a comma separated string or a sequence of
// strings. The second return value is false for any other shape.
func normalizePatterns(raw any) ([]string, bool) {
	switch typed := raw.(type) {
	case string:
		return splitPatterns(typed), true
	case []string:
		return trimPatterns(typed), true
	case []any:
		values := make([]string, 0, len(typed))
		for _, item := range typed {
			value, ok := item.(string)
			if !ok {
				continue
			}
			values = append(values, value)
		}
		return trimPatterns(values), true
	default:
		return nil, false
	}
}

func splitPatterns(value string) []string {
	return trimPatterns(strings.Split(value, ","))
}

func trimPatterns(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// Approves applies the filter to branch. When both lists are present the
// only list decides and except is ignored. Malformed filters approve.
func (f FilterSpec) Approves(branch string) bool {
	return f.Decide(branch, false).Approved
}

// Decide evaluates the filter. strict rejects malformed filters instead of
// approving them.
func (f FilterSpec) Decide(branch string, strict bool) BranchDecision {
	decision := BranchDecision{Branch: branch, Kind: f.Kind}
	switch f.Kind {
	case FilterKindNone:
		decision.Approved = true
	case FilterKindOnly, FilterKindOnlyAndExcept:
		decision.Matched, decision.Approved = firstMatch(f.Only, branch)
	case FilterKindExcept:
		matched, found := firstMatch(f.Except, branch)
		decision.Matched = matched
		decision.Approved = !found
	case FilterKindMalformed:
		decision.Approved = !strict
	default:
		decision.Approved = !strict
	}
	return decision
}

func (f FilterSpec) String() string {
	switch f.Kind {
	case FilterKindOnly:
		return fmt.Sprintf("only[%s]", strings.Join(f.Only, ","))
	case FilterKindExcept:
		return fmt.Sprintf("except[%s]", strings.Join(f.Except, ","))
	case FilterKindOnlyAndExcept:
		return fmt.Sprintf("only[%s] except[%s]", strings.Join(f.Only, ","), strings.Join(f.Except, ","))
	case FilterKindNone, FilterKindMalformed:
		return string(f.Kind)
	default:
		return string(f.Kind)
	}
}

// Approved reports whether branch is admitted by the branches filter in
// config.
func Approved(config map[string]any, branch string) bool {
	return ParseFilterSpec(config).Approves(branch)
}

func firstMatch(patterns []string, branch string) (string, bool) {
	for _, pattern := range patterns {
		if MatchBranch(pattern, branch) {
			return pattern, true
		}
	}
	return "", false
}

// MatchBranch matches branch against pattern. A pattern without a wildcard
// must be equal to the branch; each * matches zero or more characters.
func MatchBranch(pattern string, branch string) bool {
	if !strings.Contains(pattern, branchWildcard) {
		return pattern == branch
	}
	parts := strings.Split(pattern, branchWildcard)
	prefix, suffix := parts[0], parts[len(parts)-1]
	if !strings.HasPrefix(branch, prefix) {
		return false
	}
	rest := branch[len(prefix):]
	if len(rest) < len(suffix) || !strings.HasSuffix(rest, suffix) {
		return false
	}
	rest = rest[:len(rest)-len(suffix)]
	for _, middle := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, middle)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(middle):]
	}
	return true
}
