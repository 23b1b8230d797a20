// Package matrix expands a build config into the jobs of its build matrix.
package matrix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-buildrequests/core"
)

const (
	matrixKey  = "matrix"
	excludeKey = "exclude"
	includeKey = "include"
)

var ErrMatrixTooLarge = errors.New("matrix: too many jobs")

// DefaultAxes are the config keys that multiply the matrix, in expansion
// order.
var DefaultAxes = []string{"rvm", "gemfile", "env", "go", "jdk", "node_js", "python"}

type JobConfig struct {
	Number string
	Config map[string]any
}

type expandOptions struct {
	axes    []string
	maxJobs int
}

type Option func(*expandOptions)

func WithAxes(axes ...string) Option {
	return func(o *expandOptions) {
		o.axes = normalizeAxes(axes)
	}
}

// WithMaxJobs rejects matrices with more than limit jobs. Zero disables the
// limit.
func WithMaxJobs(limit int) Option {
	return func(o *expandOptions) {
		if limit >= 0 {
			o.maxJobs = limit
		}
	}
}

// Expand builds the cross product of the axis values found in config, drops
// combinations listed under matrix.exclude and appends matrix.include rows.
// A config without axes expands into a single job. config is not modified.
func Expand(config map[string]any, opts ...Option) ([]JobConfig, error) {
	options := expandOptions{axes: DefaultAxes}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	base := core.CloneConfig(config)
	rules, _ := base[matrixKey].(map[string]any)
	delete(base, matrixKey)

	rows := []map[string]any{{}}
	expanded := []string{}
	for _, axis := range options.axes {
		raw, ok := base[axis]
		if !ok || raw == nil {
			continue
		}
		values := axisValues(raw)
		if len(values) == 0 {
			continue
		}
		next := make([]map[string]any, 0, len(rows)*len(values))
		for _, row := range rows {
			for _, value := range values {
				combined := copyRow(row)
				combined[axis] = value
				next = append(next, combined)
			}
		}
		rows = next
		expanded = append(expanded, axis)
	}
	// Include rows only carry the axis values they name.
	for _, axis := range expanded {
		delete(base, axis)
	}

	rows = excludeRows(rows, entries(rules[excludeKey]))
	for _, include := range entries(rules[includeKey]) {
		rows = append(rows, include)
	}

	if options.maxJobs > 0 && len(rows) > options.maxJobs {
		return nil, fmt.Errorf("%w: %d exceeds limit %d", ErrMatrixTooLarge, len(rows), options.maxJobs)
	}

	jobs := make([]JobConfig, 0, len(rows))
	for i, row := range rows {
		jobs = append(jobs, JobConfig{
			Number: fmt.Sprint(i + 1),
			Config: core.MergeConfig(base, row),
		})
	}
	return jobs, nil
}

func axisValues(raw any) []any {
	switch typed := raw.(type) {
	case []any:
		return typed
	case []string:
		values := make([]any, 0, len(typed))
		for _, value := range typed {
			values = append(values, value)
		}
		return values
	default:
		return []any{typed}
	}
}

func entries(raw any) []map[string]any {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok || len(entry) == 0 {
			continue
		}
		out = append(out, core.CloneConfig(entry))
	}
	return out
}

func excludeRows(rows []map[string]any, excludes []map[string]any) []map[string]any {
	if len(excludes) == 0 {
		return rows
	}
	kept := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		excluded := false
		for _, exclude := range excludes {
			if matchesAll(row, exclude) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, row)
		}
	}
	return kept
}

func matchesAll(row map[string]any, exclude map[string]any) bool {
	for key, want := range exclude {
		got, ok := row[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row)+1)
	for key, value := range row {
		out[key] = value
	}
	return out
}

func normalizeAxes(axes []string) []string {
	out := make([]string, 0, len(axes))
	seen := map[string]struct{}{}
	for _, axis := range axes {
		axis = strings.TrimSpace(axis)
		if axis == "" {
			continue
		}
		if _, ok := seen[axis]; ok {
			continue
		}
		seen[axis] = struct{}{}
		out = append(out, axis)
	}
	return out
}
