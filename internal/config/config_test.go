package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost/space")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENT_BASE_URL", "https://pay.example.com/")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsProduction)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.DBAutoMigrate)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, time.UTC, cfg.Timezone)
	assert.Equal(t, "https://pay.example.com", cfg.PaymentBaseURL)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, 15*time.Minute, cfg.PendingTTL)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Equal(t, 10, cfg.BookingRateLimit)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TIMEZONE", "Asia/Seoul")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("PENDING_TTL", "30m")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction)
	assert.Equal(t, "Asia/Seoul", cfg.Timezone.String())
	assert.Equal(t, 3*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, 30*time.Minute, cfg.PendingTTL)
	assert.False(t, cfg.DBAutoMigrate)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing DB_DSN", env: map[string]string{"DB_DSN": ""}},
		{name: "missing JWT_SECRET", env: map[string]string{"JWT_SECRET": ""}},
		{name: "missing gateway", env: map[string]string{"PAYMENT_BASE_URL": ""}},
		{name: "bad bcrypt cost", env: map[string]string{"BCRYPT_COST": "high"}},
		{name: "bad timeout", env: map[string]string{"PAYMENT_TIMEOUT": "soon"}},
		{name: "zero timeout", env: map[string]string{"PAYMENT_TIMEOUT": "0s"}},
		{name: "bad timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
