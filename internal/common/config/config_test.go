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
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "meta", cfg.Namespace)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr())
	assert.Equal(t, "/usr/bin/chromedriver", cfg.Driver.BinaryPath)
	assert.Equal(t, "localhost", cfg.Driver.Host)
	assert.Equal(t, 4444, cfg.Driver.Port)
	assert.Equal(t, 30*time.Second, cfg.Driver.ReadyTimeoutDuration())
	assert.Equal(t, 5*time.Second, cfg.Driver.StopTimeoutDuration())
	assert.Equal(t, 90*time.Second, cfg.Server.SessionTimeoutDuration())
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "driverd", cfg.Tracing.ServiceName)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_Flags(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load([]string{"-n", "crawler", "--jaeger-enabled=false", "--jaeger-service-name", "nav"})
	require.NoError(t, err)

	assert.Equal(t, "crawler", cfg.Namespace)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "nav", cfg.Tracing.ServiceName)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JAEGER_ENABLED", "false")
	t.Setenv("JAEGER_SERVICE_NAME", "from-env")
	t.Setenv("DRIVERD_DRIVER_PORT", "9515")
	t.Setenv("DRIVERD_DRIVER_BINARY_PATH", "/opt/chromedriver")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "from-env", cfg.Tracing.ServiceName)
	assert.Equal(t, 9515, cfg.Driver.Port)
	assert.Equal(t, "/opt/chromedriver", cfg.Driver.BinaryPath)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JAEGER_SERVICE_NAME", "from-env")

	cfg, err := Load([]string{"--jaeger-service-name=from-flag"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Tracing.ServiceName)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	content := []byte("namespace: jobs\ndriver:\n  port: 9999\n  readyTimeout: 0\nserver:\n  port: 3100\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	cfg, err := Load([]string{"--config", dir})
	require.NoError(t, err)

	assert.Equal(t, "jobs", cfg.Namespace)
	assert.Equal(t, 9999, cfg.Driver.Port)
	assert.Zero(t, cfg.Driver.ReadyTimeoutDuration())
	assert.Equal(t, 3100, cfg.Server.Port)
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"--bogus"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 3000},
			Driver:  DriverConfig{BinaryPath: "/usr/bin/chromedriver", Port: 4444, StopTimeout: 5},
			Tracing: TracingConfig{Enabled: true, ServiceName: "driverd"},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad server port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "missing binary", mutate: func(c *Config) { c.Driver.BinaryPath = "" }, wantErr: "driver.binaryPath"},
		{name: "port clash", mutate: func(c *Config) { c.Driver.Port = 3000 }, wantErr: "must differ"},
		{name: "zero stop timeout", mutate: func(c *Config) { c.Driver.StopTimeout = 0 }, wantErr: "driver.stopTimeout"},
		{name: "tracing without name", mutate: func(c *Config) { c.Tracing.ServiceName = "" }, wantErr: "tracing.serviceName"},
		{name: "tracing disabled without name", mutate: func(c *Config) { c.Tracing.Enabled = false; c.Tracing.ServiceName = "" }},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
