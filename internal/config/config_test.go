package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret-0123456789")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret-0123456789")
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "/api/v1", cfg.Server.APIPrefix)
	assert.False(t, cfg.Server.TrustProxy)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/eventhub.db", cfg.Database.Path)
	assert.Equal(t, "code_connect", cfg.Database.MongoDatabase)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 240*time.Hour, cfg.Auth.RefreshTTL)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, "/uploads", cfg.Upload.URLPrefix)
	assert.Equal(t, 5, cfg.RateLimit.LoginPer15Minutes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_Overrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "MONGO")
	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "5m")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("LOGIN_ATTEMPTS_PER_15M", "0")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.False(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 0, cfg.RateLimit.LoginPer15Minutes)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Server.TrustProxy)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing secrets", map[string]string{"ACCESS_TOKEN_SECRET": "", "REFRESH_TOKEN_SECRET": ""}, "ACCESS_TOKEN_SECRET is required"},
		{"same secrets", map[string]string{"REFRESH_TOKEN_SECRET": "access-secret-0123456789"}, "must differ"},
		{"bad port", map[string]string{"PORT": "eighty"}, "PORT"},
		{"bad duration", map[string]string{"REFRESH_TOKEN_EXPIRY": "ten days"}, "REFRESH_TOKEN_EXPIRY"},
		{"unknown driver", map[string]string{"DB_DRIVER": "postgres"}, "DB_DRIVER"},
		{"mongo without url", map[string]string{"DB_DRIVER": "mongo"}, "MONGODB_URL is required"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSecrets(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
