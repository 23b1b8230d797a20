package buildconfig

import (
	"errors"
	"testing"
)

func TestParse_TravisDocument(t *testing.T) {
	doc := []byte(`
language: ruby
rvm:
  - 1.9.2
  - rbx
branches:
  only:
    - master
    - develop
env: "FOO=bar"
matrix:
  exclude:
    - rvm: rbx
      env: FOO=bar
1: numeric-key
`)
	config, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rvm, ok := config["rvm"].([]any)
	if !ok || len(rvm) != 2 || rvm[1] != "rbx" {
		t.Fatalf("unexpected rvm %#v", config["rvm"])
	}
	branches, ok := config["branches"].(map[string]any)
	if !ok {
		t.Fatalf("expected branches mapping, got %T", config["branches"])
	}
	if only, ok := branches["only"].([]any); !ok || len(only) != 2 {
		t.Fatalf("unexpected only %#v", branches["only"])
	}
	matrix := config["matrix"].(map[string]any)
	exclude := matrix["exclude"].([]any)
	if _, ok := exclude[0].(map[string]any); !ok {
		t.Fatalf("expected normalized nested mapping, got %T", exclude[0])
	}
	if config["1"] != "numeric-key" {
		t.Fatalf("expected non-string keys normalized, got %#v", config)
	}
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "   \n", "---\n", "~"} {
		config, err := Parse([]byte(input))
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if config == nil || len(config) != 0 {
			t.Fatalf("expected empty map for %q, got %#v", input, config)
		}
	}
}

func TestParse_RejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte("- master\n- develop\n"))
	if !errors.Is(err, ErrNotMapping) {
		t.Fatalf("expected not mapping error, got %v", err)
	}
	if _, err := Parse([]byte("branches: [master")); err == nil {
		t.Fatalf("expected decode error")
	}
}
