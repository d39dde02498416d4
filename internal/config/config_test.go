package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSessionConfig_Defaults(t *testing.T) {
	cfg := GetSessionConfig()

	assert.Equal(t, 30*time.Minute, cfg.Window)
	assert.Equal(t, 10*time.Second, cfg.JoinTimeout)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.True(t, cfg.SweepEnabled)
	assert.Equal(t, 20.0, cfg.MessagesPerSecond)
	assert.Equal(t, 40, cfg.MessageBurst)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.NotNil(t, cfg.Location)
}

func TestGetSessionConfig_FromEnv(t *testing.T) {
	t.Setenv("SESSION_WINDOW", "45m")
	t.Setenv("JOIN_TIMEOUT", "3s")
	t.Setenv("SESSION_TIMEZONE", "Europe/Oslo")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("SIGNAL_RATE_PER_SECOND", "5.5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := GetSessionConfig()

	assert.Equal(t, 45*time.Minute, cfg.Window)
	assert.Equal(t, 3*time.Second, cfg.JoinTimeout)
	assert.Equal(t, "Europe/Oslo", cfg.Location.String())
	assert.False(t, cfg.SweepEnabled)
	assert.Equal(t, 5.5, cfg.MessagesPerSecond)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestGetSessionConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_WINDOW", "thirty minutes")
	t.Setenv("SESSION_TIMEZONE", "Mars/Olympus")
	t.Setenv("SIGNAL_RATE_PER_SECOND", "-1")

	cfg := GetSessionConfig()

	assert.Equal(t, 30*time.Minute, cfg.Window)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, 20.0, cfg.MessagesPerSecond)
}

func TestGetStoreConfig(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_HOST", "valkey")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_APPOINTMENT_TTL_HOURS", "2")

	cfg := GetStoreConfig()

	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "valkey", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "telecoord:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 2*time.Hour, cfg.Redis.AppointmentTTL)
}

func TestGetAuthConfig(t *testing.T) {
	cfg := GetAuthConfig()
	assert.Equal(t, AuthModeNone, cfg.Mode)
	assert.Equal(t, "azuread", cfg.IdentityProvider)

	t.Setenv("AUTH_MODE", "Introspection")
	t.Setenv("TOKEN_INTROSPECTION_ENDPOINT", "http://texas/introspect")
	t.Setenv("TOKEN_IDENTITY_PROVIDER", "idporten")

	cfg = GetAuthConfig()
	assert.Equal(t, AuthModeIntrospection, cfg.Mode)
	assert.Equal(t, "http://texas/introspect", cfg.IntrospectionEndpoint)
	assert.Equal(t, "idporten", cfg.IdentityProvider)
}

func TestAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AuthConfig
		wantErr bool
	}{
		{name: "none", config: AuthConfig{Mode: AuthModeNone}},
		{name: "jwt with secret", config: AuthConfig{Mode: AuthModeJWT, JWTSecret: "s3cret"}},
		{name: "jwt without secret", config: AuthConfig{Mode: AuthModeJWT}, wantErr: true},
		{name: "introspection with endpoint", config: AuthConfig{Mode: AuthModeIntrospection, IntrospectionEndpoint: "http://idp/introspect"}},
		{name: "introspection without endpoint", config: AuthConfig{Mode: AuthModeIntrospection}, wantErr: true},
		{name: "unknown mode", config: AuthConfig{Mode: "magic"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telecoord.yaml")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET: from-file\nAUTH_MODE: jwt\n"), 0o600))

	require.NoError(t, LoadFile(path))

	cfg := GetAuthConfig()
	assert.Equal(t, AuthModeJWT, cfg.Mode)
	assert.Equal(t, "from-file", cfg.JWTSecret)

	// Environment overrides the file
	t.Setenv("JWT_SECRET", "from-env")
	assert.Equal(t, "from-env", GetAuthConfig().JWTSecret)

	assert.Error(t, LoadFile(filepath.Join(dir, "missing.yaml")))
	assert.NoError(t, LoadFile(""))
}
