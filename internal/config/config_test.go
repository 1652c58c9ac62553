package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAMLWithDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeTestFile(t, path, `oracle:
  type: openai
  model: gpt-5-mini
  api_key_env: OPENAI_API_KEY
  timeout: 45s
pipeline:
  conflict_check_policy: fail_open
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, OracleTypeOpenAI, cfg.Oracle.Type)
	assert.Equal(t, 45*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, PolicyFailOpen, cfg.Pipeline.ConflictCheckPolicy)
	assert.Equal(t, 30, cfg.Pipeline.ExistingSampleSize)
	assert.InDelta(t, 0.5, cfg.Quality.BiasThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Quality.CoverageThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Quality.MinSpecsPerCategory)
	assert.Equal(t, ".socratic/socratic.db", cfg.Storage.Path)
}

func TestLoad_JSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	writeTestFile(t, path, `{"oracle":{"type":"exec","agent":"codex"},"storage":{"path":"x.db"}}`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, OracleTypeExec, cfg.Oracle.Type)
	assert.Equal(t, "codex", cfg.Oracle.Agent)
	assert.Equal(t, PolicyFailClosed, cfg.Pipeline.ConflictCheckPolicy)
	assert.Equal(t, "x.db", cfg.Storage.Path)
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeTestFile(t, path, `oracle:
  type: openai
pipeline:
  conflict_check_policy: maybe
`)

	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestValidateSettings_RejectsUnknownSection(t *testing.T) {
	t.Parallel()

	settings := map[string]any{
		"oracle":  map[string]any{"type": "openai"},
		"budgets": map[string]any{"max_iterations": 5},
	}
	if err := ValidateSettings(settings); err == nil {
		t.Fatal("ValidateSettings returned nil error, want error")
	}
}

func TestValidateSettings_RequiresOracle(t *testing.T) {
	t.Parallel()

	if err := ValidateSettings(map[string]any{}); err == nil {
		t.Fatal("ValidateSettings returned nil error, want error")
	}
}

func TestNormalize_ExecRequiresAgentOrCmd(t *testing.T) {
	t.Parallel()

	cfg := Config{Oracle: OracleConfig{Type: OracleTypeExec}}
	if err := cfg.Normalize(); err == nil {
		t.Fatal("Normalize returned nil error, want error")
	}

	cfg = Config{Oracle: OracleConfig{Type: OracleTypeExec, Cmd: []string{"my-agent"}}}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, PolicyFailClosed, cfg.Pipeline.ConflictCheckPolicy)
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEncodeYAML_RoundTrips(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Oracle.Timeout = 90 * time.Second
	data, err := EncodeYAML(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 90s")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeTestFile(t, path, string(data))
	loaded, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1m", formatDuration(time.Minute))
	assert.Equal(t, "2h", formatDuration(2*time.Hour))
	assert.Equal(t, "1500ms", formatDuration(1500*time.Millisecond))
}
