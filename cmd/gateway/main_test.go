package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

const validConfig = `
server:
  address: "127.0.0.1:0"
services:
  - name: quests
    url: http://quests:3002
    prefix: /api/quests
observability:
  logging:
    level: warn
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		setEnv   bool
		expected string
	}{
		{name: "returns default when env not set", expected: "default-value"},
		{name: "returns env value when set", envValue: "env-value", setEnv: true, expected: "env-value"},
		{name: "returns default when env is empty string", envValue: "", setEnv: true, expected: "default-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const key = "TEST_GATEWAY_GETENV"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			} else {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}

			assert.Equal(t, tt.expected, getEnvOrDefault(key, "default-value"))
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("GATEWAY_CONFIG_PATH", "")
		t.Setenv("GATEWAY_LOG_LEVEL", "")

		f := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil)
		assert.Equal(t, "configs/gateway.yaml", f.configPath)
		assert.Equal(t, ".env", f.envPath)
		assert.Empty(t, f.logLevel)
		assert.False(t, f.showVersion)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("GATEWAY_CONFIG_PATH", "/etc/gateway.yaml")
		t.Setenv("GATEWAY_LOG_LEVEL", "debug")

		f := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil)
		assert.Equal(t, "/etc/gateway.yaml", f.configPath)
		assert.Equal(t, "debug", f.logLevel)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("GATEWAY_CONFIG_PATH", "/etc/gateway.yaml")

		f := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError),
			[]string{"-config", "local.yaml", "-log-format", "console", "-version"})
		assert.Equal(t, "local.yaml", f.configPath)
		assert.Equal(t, "console", f.logFormat)
		assert.True(t, f.showVersion)
	})
}

func TestPrintVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "gateway version dev")
	assert.Contains(t, buf.String(), "Git commit: unknown")
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
		assert.NoError(t, loadEnvFile(""))
	})

	t.Run("loads variables without overriding", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path,
			[]byte("TEST_GATEWAY_DOTENV_NEW=from-file\nTEST_GATEWAY_DOTENV_SET=from-file\n"), 0o600))
		t.Setenv("TEST_GATEWAY_DOTENV_SET", "from-env")
		t.Setenv("TEST_GATEWAY_DOTENV_NEW", "")
		os.Unsetenv("TEST_GATEWAY_DOTENV_NEW")

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "from-file", os.Getenv("TEST_GATEWAY_DOTENV_NEW"))
		assert.Equal(t, "from-env", os.Getenv("TEST_GATEWAY_DOTENV_SET"))
	})
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		cfg, err := loadAndValidateConfig(writeConfig(t, validConfig))
		require.NoError(t, err)
		require.Len(t, cfg.Services, 1)
		assert.Equal(t, config.DefaultHealthPath, cfg.Services[0].HealthPath)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := loadAndValidateConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load configuration")
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := loadAndValidateConfig(writeConfig(t, "server:\n  address: \":3000\"\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestInitLogger(t *testing.T) {
	t.Parallel()

	cfg := &config.GatewayConfig{}
	config.ApplyDefaults(cfg)

	logger, err := initLogger(cliFlags{logLevel: "debug"}, cfg)
	require.NoError(t, err)
	assert.Implements(t, (*observability.LevelSetter)(nil), logger)

	_, err = initLogger(cliFlags{logLevel: "loud"}, cfg)
	assert.Error(t, err)
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestBreakerConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.GatewayConfig{}
	config.ApplyDefaults(cfg)

	bc := breakerConfig(cfg.CircuitBreaker)
	require.NoError(t, bc.Validate())
	assert.Equal(t, config.DefaultBreakerTimeout, bc.Timeout)
	assert.Equal(t, config.DefaultErrorThreshold, bc.ErrorThresholdPercentage)
	assert.Equal(t, config.DefaultVolumeThreshold, bc.VolumeThreshold)
	assert.Equal(t, 30*time.Second, bc.ResetTimeout)
}
