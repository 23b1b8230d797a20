package core

import (
	"fmt"
	"strings"
)

type BranchFilterConfig struct {
	// Strict rejects requests whose branches value has an unsupported shape.
	Strict bool `koanf:"strict" mapstructure:"strict"`
}

type MatrixConfig struct {
	MaxJobs int `koanf:"max_jobs" mapstructure:"max_jobs"`
}

type IngestConfig struct {
	DedupeWindowSeconds int    `koanf:"dedupe_window_seconds" mapstructure:"dedupe_window_seconds"`
	ConfigPath          string `koanf:"config_path" mapstructure:"config_path"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	BranchFilter BranchFilterConfig `koanf:"branch_filter" mapstructure:"branch_filter"`
	Matrix       MatrixConfig       `koanf:"matrix" mapstructure:"matrix"`
	Ingest       IngestConfig       `koanf:"ingest" mapstructure:"ingest"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "buildrequests",
		Matrix: MatrixConfig{
			MaxJobs: 0,
		},
		Ingest: IngestConfig{
			DedupeWindowSeconds: 600,
			ConfigPath:          ".travis.yml",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Matrix.MaxJobs < 0 {
		return fmt.Errorf("core: matrix.max_jobs must not be negative")
	}
	if c.Ingest.DedupeWindowSeconds < 0 {
		return fmt.Errorf("core: ingest.dedupe_window_seconds must not be negative")
	}
	return nil
}
