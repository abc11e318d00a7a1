// internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Minute, cfg.Browser.Freshness)
	assert.Equal(t, 15*time.Second, cfg.Browser.HeaderWaitTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.Upstream.DefaultModel)
	assert.Equal(t, 3, cfg.Challenge.MaxAttempts)
	assert.Equal(t, 107.0, cfg.Challenge.CellPitch)
	assert.Equal(t, 600*time.Millisecond, cfg.Challenge.ClickSettle)
	assert.Equal(t, "https://duckduckgo.com/duckchat/v1/chat", cfg.Target.APIEndpoint)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("valid defaults pass", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Server.Port = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("missing api endpoint", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Target.APIEndpoint = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target.api_endpoint is required")
	})

	t.Run("non-positive attempt budget", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Challenge.MaxAttempts = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "challenge.max_attempts must be a positive integer")
	})

	t.Run("non-positive freshness window", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.Freshness = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.freshness must be a positive duration")
	})

	t.Run("non-positive header wait", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.HeaderWaitTimeout = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.header_wait_timeout must be a positive duration")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("yaml values override defaults", func(t *testing.T) {
		yamlBytes := []byte(`
server:
  port: 9090
challenge:
  max_attempts: 5
  retry_settle: 4s
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5, cfg.Challenge.MaxAttempts)
		assert.Equal(t, 4*time.Second, cfg.Challenge.RetrySettle)
		// A default value survives alongside the overrides.
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("validation failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("challenge.max_attempts", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("solver key from environment", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		t.Setenv("CHATRELAY_SOLVER_API_KEY", "test-key-123")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "test-key-123", cfg.Solver.APIKey)
	})

	t.Run("gemini key fallback", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		t.Setenv("CHATRELAY_SOLVER_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gemini-key-456")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "gemini-key-456", cfg.Solver.APIKey)
	})
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/chatrelay.log
browser:
  freshness: 5m
  args: ["--no-sandbox"]
target:
  chat_url: "https://example.test/chat"
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "/var/log/chatrelay.log", cfg.Logger.LogFile)
	assert.Equal(t, 5*time.Minute, cfg.Browser.Freshness)
	assert.Equal(t, []string{"--no-sandbox"}, cfg.Browser.Args)
	assert.Equal(t, "https://example.test/chat", cfg.Target.ChatURL)
}
