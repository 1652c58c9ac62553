// Package config provides configuration loading and management for socratic.
package config

import (
	"fmt"
	"time"
)

// Oracle backend types.
const (
	OracleTypeOpenAI = "openai"
	OracleTypeGemini = "gemini"
	OracleTypeExec   = "exec"
)

// Conflict-check failure policies.
const (
	PolicyFailClosed = "fail_closed"
	PolicyFailOpen   = "fail_open"
)

// Config is the root configuration.
type Config struct {
	Oracle   OracleConfig   `json:"oracle"   mapstructure:"oracle"   yaml:"oracle"`
	Pipeline PipelineConfig `json:"pipeline" mapstructure:"pipeline" yaml:"pipeline"`
	Quality  QualityConfig  `json:"quality"  mapstructure:"quality"  yaml:"quality"`
	Storage  StorageConfig  `json:"storage"  mapstructure:"storage"  yaml:"storage"`
}

// OracleConfig describes how to reach the language model.
type OracleConfig struct {
	Type         string        `json:"type"                    mapstructure:"type"          yaml:"type"`
	Model        string        `json:"model,omitempty"         mapstructure:"model"         yaml:"model,omitempty"`
	BaseURL      string        `json:"base_url,omitempty"      mapstructure:"base_url"      yaml:"base_url,omitempty"`
	APIKey       string        `json:"api_key,omitempty"       mapstructure:"api_key"       yaml:"api_key,omitempty"`
	APIKeyEnv    string        `json:"api_key_env,omitempty"   mapstructure:"api_key_env"   yaml:"api_key_env,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"       mapstructure:"timeout"       yaml:"timeout,omitempty"`
	Agent        string        `json:"agent,omitempty"         mapstructure:"agent"         yaml:"agent,omitempty"`
	Cmd          []string      `json:"cmd,omitempty"           mapstructure:"cmd"           yaml:"cmd,omitempty"`
	UseTTY       *bool         `json:"use_tty,omitempty"       mapstructure:"use_tty"       yaml:"use_tty,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty" mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
}

// PipelineConfig tunes the extraction pipeline.
type PipelineConfig struct {
	ConflictCheckPolicy string `json:"conflict_check_policy" mapstructure:"conflict_check_policy" yaml:"conflict_check_policy"`
	ExistingSampleSize  int    `json:"existing_sample_size"  mapstructure:"existing_sample_size"  yaml:"existing_sample_size"`
}

// QualityConfig tunes the question bias and coverage heuristics.
type QualityConfig struct {
	BiasThreshold             float64 `json:"bias_threshold"               mapstructure:"bias_threshold"               yaml:"bias_threshold"`
	CoverageThreshold         float64 `json:"coverage_threshold"           mapstructure:"coverage_threshold"           yaml:"coverage_threshold"`
	MinSpecsPerCategory       int     `json:"min_specs_per_category"       mapstructure:"min_specs_per_category"       yaml:"min_specs_per_category"`
	EnforceCoverageOnGenerate bool    `json:"enforce_coverage_on_generate" mapstructure:"enforce_coverage_on_generate" yaml:"enforce_coverage_on_generate"`
}

// StorageConfig locates the database and lock files.
type StorageConfig struct {
	Path     string `json:"path"      mapstructure:"path"      yaml:"path"`
	LocksDir string `json:"locks_dir" mapstructure:"locks_dir" yaml:"locks_dir"`
}

// Default returns the configuration written by `socratic init`.
func Default() Config {
	return Config{
		Oracle: OracleConfig{
			Type:      OracleTypeOpenAI,
			Model:     "gpt-5-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   60 * time.Second,
		},
		Pipeline: PipelineConfig{
			ConflictCheckPolicy: PolicyFailClosed,
			ExistingSampleSize:  30,
		},
		Quality: QualityConfig{
			BiasThreshold:             0.5,
			CoverageThreshold:         0.7,
			MinSpecsPerCategory:       3,
			EnforceCoverageOnGenerate: true,
		},
		Storage: StorageConfig{
			Path:     ".socratic/socratic.db",
			LocksDir: ".socratic/locks",
		},
	}
}

// Normalize fills zero values with defaults and checks cross-field constraints.
func (c *Config) Normalize() error {
	def := Default()
	if c.Oracle.Type == "" {
		c.Oracle.Type = def.Oracle.Type
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = def.Oracle.Timeout
	}
	if c.Pipeline.ConflictCheckPolicy == "" {
		c.Pipeline.ConflictCheckPolicy = def.Pipeline.ConflictCheckPolicy
	}
	if c.Pipeline.ExistingSampleSize <= 0 {
		c.Pipeline.ExistingSampleSize = def.Pipeline.ExistingSampleSize
	}
	if c.Quality.BiasThreshold <= 0 {
		c.Quality.BiasThreshold = def.Quality.BiasThreshold
	}
	if c.Quality.CoverageThreshold <= 0 {
		c.Quality.CoverageThreshold = def.Quality.CoverageThreshold
	}
	if c.Quality.MinSpecsPerCategory <= 0 {
		c.Quality.MinSpecsPerCategory = def.Quality.MinSpecsPerCategory
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.LocksDir == "" {
		c.Storage.LocksDir = def.Storage.LocksDir
	}

	switch c.Pipeline.ConflictCheckPolicy {
	case PolicyFailClosed, PolicyFailOpen:
	default:
		return fmt.Errorf("pipeline.conflict_check_policy must be %q or %q, got %q",
			PolicyFailClosed, PolicyFailOpen, c.Pipeline.ConflictCheckPolicy)
	}
	switch c.Oracle.Type {
	case OracleTypeOpenAI, OracleTypeGemini:
	case OracleTypeExec:
		if c.Oracle.Agent == "" && len(c.Oracle.Cmd) == 0 {
			return fmt.Errorf("oracle.type %q requires oracle.agent or oracle.cmd", OracleTypeExec)
		}
	default:
		return fmt.Errorf("unknown oracle.type %q", c.Oracle.Type)
	}
	return nil
}
