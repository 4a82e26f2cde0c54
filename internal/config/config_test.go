package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "sqlite://:memory:")
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("WEBHOOK_SECRET", "whsec_test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4001, cfg.Port)
	assert.Equal(t, "mock", cfg.Gateway)
	assert.True(t, decimal.RequireFromString("9.99").Equal(cfg.PlanAmount))
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 3, cfg.MaxFailedPayments)
	assert.Equal(t, 7*24*time.Hour, cfg.TrialPeriod)
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("PLAN_AMOUNT", "12.50")
	t.Setenv("PLAN_CURRENCY", "EUR")
	t.Setenv("MAX_FAILED_PAYMENTS", "5")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ADMIN_PASSWORD", "s3cret-admin")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "12.5", cfg.PlanAmount.String())
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, 5, cfg.MaxFailedPayments)
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "s3cret-admin", cfg.AdminPassword)
}

func TestLoad_AdminPasswordDefaultsOnlyOutsideProduction(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "admin123", cfg.AdminPassword)

	t.Setenv("APP_ENV", "production")
	_, err = Load()
	assert.ErrorContains(t, err, "ADMIN_PASSWORD")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"missing jwt secret", "JWT_SECRET", ""},
		{"missing database", "DATABASE_URL", ""},
		{"short encryption key", "ENCRYPTION_KEY", "short"},
		{"missing webhook secret", "WEBHOOK_SECRET", ""},
		{"unknown gateway", "PAYMENT_GATEWAY", "paypal"},
		{"stripe without keys", "PAYMENT_GATEWAY", "stripe"},
		{"zero amount", "PLAN_AMOUNT", "0"},
		{"bad amount", "PLAN_AMOUNT", "ten"},
		{"bad port", "PORT", "http"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetDurationEnv_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")
	assert.Equal(t, time.Minute, getDurationEnv("SWEEP_INTERVAL", time.Minute))
}
