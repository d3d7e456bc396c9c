package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_CLOUD_PROJECT", "GOOGLE_CLOUD_LOCATION", "GOOGLE_GENAI_USE_VERTEXAI"} {
		t.Setenv(k, "")
	}
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultAppName, cfg.AppName)
	assert.Equal(t, DefaultAgentName, cfg.AgentName)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, "127.0.0.1:9200", cfg.Listen)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.Quota)
	assert.Equal(t, 120, cfg.HTTPRequestsPerMinute)
	assert.Equal(t, "us-central1", cfg.Google.Location)
	assert.False(t, cfg.Google.UseVertexAI)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `model: gemini-2.5-pro
listen: 0.0.0.0:8080
verbose: true
rateLimit:
  window: 30s
  quota: 5
maxToolRounds: 2
httpRequestsPerMinute: -1
google:
  project: file-project
  location: europe-west4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "evalbuilder.yml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, "0.0.0.0:8080", cfg.Listen)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.Quota)
	assert.Equal(t, 2, cfg.MaxToolRounds)
	assert.Equal(t, -1, cfg.HTTPRequestsPerMinute)
	assert.Equal(t, "file-project", cfg.Google.Project)
	assert.Equal(t, "europe-west4", cfg.Google.Location)
}

func TestLoad_YAMLExtension(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "evalbuilder.yaml"), []byte("appName: custom\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.AppName)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "evalbuilder.yml"),
		[]byte("google:\n  project: file-project\n  apiKey: file-key\n"), 0o644))

	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "env-project")
	t.Setenv("GOOGLE_GENAI_USE_VERTEXAI", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Google.APIKey)
	assert.Equal(t, "env-project", cfg.Google.Project)
	assert.True(t, cfg.Google.UseVertexAI)

	g := cfg.Gemini()
	assert.True(t, g.UseVertexAI)
	assert.Equal(t, "env-project", g.Project)
	assert.Equal(t, "us-central1", g.Location)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "evalbuilder.yml"), []byte("rateLimit: [\n"), 0o644))
	_, err := Load(dir)
	assert.ErrorContains(t, err, "config: parse")

	t.Setenv("GOOGLE_GENAI_USE_VERTEXAI", "maybe")
	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "GOOGLE_GENAI_USE_VERTEXAI")
}

func TestOrchestratorConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	logger := zap.NewNop()
	oc := cfg.Orchestrator(logger)
	assert.Equal(t, orchestrator.Config{
		Model:         orchestrator.DefaultModel,
		RateWindow:    orchestrator.DefaultRateWindow,
		RateQuota:     orchestrator.DefaultRateQuota,
		MaxToolRounds: orchestrator.DefaultMaxToolRounds,
		Logger:        logger,
	}, oc)
}
