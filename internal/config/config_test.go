package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Mission.QuestionCount)
	assert.Equal(t, []int{5, 10}, cfg.Mission.RiskIndexes)
	assert.Equal(t, 9, cfg.Mission.TeamIndex)
	assert.Equal(t, 3, cfg.Mission.LivesStart)
	assert.Equal(t, 5, cfg.Mission.MaxTotalLives)
	assert.Equal(t, 750, cfg.Mission.TeamThresholdPermille)
	assert.Equal(t, 2, cfg.Risk.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Risk.Cooldown)
	assert.Equal(t, 5*time.Second, cfg.Engine.QueryTimeout)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Mission, cfg.Mission)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junod.yaml")
	content := `
server:
  addr: ":9999"
mission:
  question_count: 12
  risk_indexes: [6, 12]
  team_index: 11
risk:
  cooldown: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 12, cfg.Mission.QuestionCount)
	assert.Equal(t, []int{6, 12}, cfg.Mission.RiskIndexes)
	assert.Equal(t, 2*time.Minute, cfg.Risk.Cooldown)
	// Untouched sections keep defaults.
	assert.Equal(t, 3, cfg.Mission.LivesStart)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0644))

	t.Setenv("JUNO_ADDR", ":7777")
	t.Setenv("JUNO_TEAM_THRESHOLD", "500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, 500, cfg.Mission.TeamThresholdPermille)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "junod.yaml")
	want := DefaultConfig()
	want.Server.Addr = ":8081"
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.Server.Addr, got.Server.Addr)
	assert.Equal(t, want.Mission, got.Mission)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero question count", func(c *Config) { c.Mission.QuestionCount = 0 }},
		{"risk index out of range", func(c *Config) { c.Mission.RiskIndexes = []int{11} }},
		{"team index out of range", func(c *Config) { c.Mission.TeamIndex = 0 }},
		{"threshold over permille", func(c *Config) { c.Mission.TeamThresholdPermille = 1500 }},
		{"total lives below regular", func(c *Config) { c.Mission.MaxTotalLives = 2 }},
		{"no retry attempts", func(c *Config) { c.Engine.RetryAttempts = 0 }},
		{"no risk attempts", func(c *Config) { c.Risk.MaxAttempts = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
