package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, "Sciqus", cfg.GetApp().Name)
	assert.Equal(t, ":8572", cfg.GetServer().Addr)
	assert.Equal(t, "http://localhost:8080/api", cfg.GetBackend().BaseURL)
	assert.Equal(t, 15*time.Second, cfg.GetBackend().GetTimeout())
	assert.Equal(t, DriverMemory, cfg.GetStorage().Driver)

	auth := cfg.GetAuth()
	assert.Equal(t, "/login", auth.GetLoginRoute())
	assert.Equal(t, "/dashboard", auth.GetRejectedRouteDefault())
	assert.Equal(t, "portal_client", auth.GetClientCookieName())
	assert.True(t, auth.GetInactiveGuard())
	assert.False(t, auth.GetSyncVerify())
	assert.Equal(t, 10*time.Second, auth.GetVerifyTimeout())
	assert.Equal(t, time.Hour, auth.GetSweepIdle())
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, "portal.yml", `
app:
  name: Sciqus LMS
backend:
  base_url: http://lms.internal/api
storage:
  driver: sqlite
`)

	t.Setenv("PORTAL_BACKEND__BASE_URL", "http://override/api")
	t.Setenv("PORTAL_AUTH__SYNC_VERIFY", "true")

	cfg, err := Load(WithFile(path), WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, "Sciqus LMS", cfg.App.Name)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "http://override/api", cfg.Backend.BaseURL)
	assert.True(t, cfg.Auth.GetSyncVerify())
}

func TestLoadJSONFile(t *testing.T) {
	path := writeFile(t, "portal.json", `{"server":{"addr":":9000"}}`)

	cfg, err := Load(WithFile(path), WithEnvFile(""))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env.local", "PORTAL_APP__NAME=FromDotenv\n")
	t.Cleanup(func() { os.Unsetenv("PORTAL_APP__NAME") })

	cfg, err := Load(WithEnvFile(path))
	require.NoError(t, err)
	assert.Equal(t, "FromDotenv", cfg.App.Name)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		setupFn func(t *testing.T) []Option
	}{
		{
			name: "unsupported file",
			setupFn: func(t *testing.T) []Option {
				return []Option{WithFile(writeFile(t, "portal.ini", "a=b"))}
			},
		},
		{
			name: "missing file",
			setupFn: func(t *testing.T) []Option {
				return []Option{WithFile(filepath.Join(t.TempDir(), "nope.yml"))}
			},
		},
		{
			name: "bad duration",
			setupFn: func(t *testing.T) []Option {
				t.Setenv("PORTAL_AUTH__VERIFY_TIMEOUT", "soon")
				return nil
			},
		},
		{
			name: "unknown driver",
			setupFn: func(t *testing.T) []Option {
				t.Setenv("PORTAL_STORAGE__DRIVER", "mongo")
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append(tt.setupFn(t), WithEnvFile(""))
			_, err := Load(opts...)
			assert.Error(t, err)
		})
	}
}
