package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, time.Minute, cfg.Tasks.MinDuration)
	assert.Equal(t, time.Duration(0), cfg.Gateway.Timeout)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.False(t, cfg.Mirror.Enabled())
	assert.False(t, cfg.Production())
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TASK_MIN_DURATION", "5m")
	t.Setenv("PYTHON_EXE", "  /opt/py/bin/python  ")
	t.Setenv("GATEWAY_TIMEOUT", "not-a-duration")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_API_KEY", "key")
	t.Setenv("CLOUDINARY_API_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.Equal(t, 5*time.Minute, cfg.Tasks.MinDuration)
	assert.Equal(t, "/opt/py/bin/python", cfg.Gateway.PythonExe)
	assert.Equal(t, time.Duration(0), cfg.Gateway.Timeout)
	assert.True(t, cfg.Mirror.Enabled())
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
