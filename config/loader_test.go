package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Workflow.MaxSteps)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.MaxDuration)
	assert.True(t, cfg.Workflow.RetryFailedSteps)
	assert.Equal(t, 0.7, cfg.Handoff.HandoffThreshold)
	assert.True(t, cfg.Handoff.PreserveContext)
	assert.False(t, cfg.Handoff.EnableAutoHandoffs)
	assert.Equal(t, 10, cfg.Snapshot.Capacity)
	assert.Equal(t, time.Minute, cfg.Snapshot.ConflictWindow)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workflow:
  max_steps: 12
  max_duration: 90s
handoff:
  handoff_threshold: 0.55
log:
  level: debug
redis:
  enabled: true
  addr: redis.internal:6379
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Workflow.MaxSteps)
	assert.Equal(t, 90*time.Second, cfg.Workflow.MaxDuration)
	assert.Equal(t, 0.55, cfg.Handoff.HandoffThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Snapshot.Capacity)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Workflow.MaxSteps)
}

func TestLoad_EnvOverridesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  max_steps: 12\n"), 0o600))

	t.Setenv("AGENTCOORD_WORKFLOW_MAX_STEPS", "7")
	t.Setenv("AGENTCOORD_WORKFLOW_RETRY_DELAY", "1500ms")
	t.Setenv("AGENTCOORD_HANDOFF_ENABLE_AUTO_HANDOFFS", "true")
	t.Setenv("AGENTCOORD_LOG_OUTPUT_PATHS", "stdout, /var/log/agentcoord.log")
	t.Setenv("AGENTCOORD_TELEMETRY_SAMPLE_RATE", "0.25")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Workflow.MaxSteps, "env beats file")
	assert.Equal(t, 1500*time.Millisecond, cfg.Workflow.RetryDelay)
	assert.True(t, cfg.Handoff.EnableAutoHandoffs)
	assert.Equal(t, []string{"stdout", "/var/log/agentcoord.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_WORKFLOW_MAX_STEPS", "3")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workflow.MaxSteps)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max steps", func(c *Config) { c.Workflow.MaxSteps = 0 }},
		{"zero max duration", func(c *Config) { c.Workflow.MaxDuration = 0 }},
		{"threshold above one", func(c *Config) { c.Handoff.HandoffThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.Handoff.HandoffThreshold = -0.1 }},
		{"zero snapshot capacity", func(c *Config) { c.Snapshot.Capacity = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTCOORD_WORKFLOW_MAX_STEPS", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
}

func TestLoad_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.Workflow.DefaultModel == "" {
			return assert.AnError
		}
		return nil
	}).Load()
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow: [broken"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}
