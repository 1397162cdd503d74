package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewManager().Load()
	require.NoError(t, err)

	assert.Equal(t, "ssh", cfg.Client)
	assert.Equal(t, "{}", cfg.Placeholder)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Equal(t, "text", cfg.Output)
	assert.Equal(t, "host", cfg.Order)
	assert.Equal(t, "auto", cfg.ShowCodes)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Dups)
	assert.False(t, cfg.NoWait)
	assert.Equal(t, 0, cfg.Pick)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ALLSSH_USER", "deploy")
	t.Setenv("ALLSSH_TIMEOUT", "30s")
	t.Setenv("ALLSSH_SHOW_CODES", "always")

	cfg, err := NewManager().Load()
	require.NoError(t, err)

	assert.Equal(t, "deploy", cfg.User)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "always", cfg.ShowCodes)
}

func TestLoadEnvInvalidValueRejected(t *testing.T) {
	t.Setenv("ALLSSH_OUTPUT", "xml")

	_, err := NewManager().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func validConfig() *Config {
	return &Config{
		Client:      "ssh",
		Placeholder: "{}",
		Output:      "text",
		Order:       "host",
		ShowCodes:   "auto",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

func TestValidate(t *testing.T) {
	m := &ViperManager{}

	require.NoError(t, m.Validate(validConfig()))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout must be non-negative"},
		{"negative pick", func(c *Config) { c.Pick = -1 }, "pick must be non-negative"},
		{"empty client", func(c *Config) { c.Client = "" }, "client binary cannot be empty"},
		{"bad output", func(c *Config) { c.Output = "yaml" }, "invalid output format"},
		{"bad order", func(c *Config) { c.Order = "random" }, "invalid order"},
		{"bad show-codes", func(c *Config) { c.ShowCodes = "sometimes" }, "invalid show-codes"},
		{"bad log level", func(c *Config) { c.LogLevel = "debug" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := m.Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadNoWaitDefaultsToCompletionOrder(t *testing.T) {
	t.Setenv("ALLSSH_NO_WAIT", "true")

	cfg, err := NewManager().Load()
	require.NoError(t, err)
	assert.True(t, cfg.NoWait)
	assert.Equal(t, "completion", cfg.Order)
}

func TestLoadNoWaitWithExplicitHostOrderRejected(t *testing.T) {
	t.Setenv("ALLSSH_NO_WAIT", "true")
	t.Setenv("ALLSSH_ORDER", "host")

	_, err := NewManager().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-wait")
}

func TestValidateNoWaitNeedsCompletionOrder(t *testing.T) {
	m := &ViperManager{}

	cfg := validConfig()
	cfg.NoWait = true
	err := m.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-wait")

	cfg.Order = "completion"
	assert.NoError(t, m.Validate(cfg))
}

func TestGroupsPathPrecedence(t *testing.T) {
	t.Setenv("ALLSSH_GROUPS", "")
	t.Setenv("HOME", t.TempDir())

	cfg := validConfig()

	cfg.Groups = "/tmp/groups.yml"
	assert.Equal(t, "/tmp/groups.yml", GroupsPath(cfg))

	cfg.Groups = ""
	t.Setenv("ALLSSH_GROUPS", "/srv/hosts")
	assert.Equal(t, "/srv/hosts", GroupsPath(cfg))

	t.Setenv("ALLSSH_GROUPS", "")
	assert.True(t, strings.HasSuffix(GroupsPath(cfg), filepath.Join(".config", "allssh", "groups")))
}
