package runtimeconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savegress/license-runtime/session"
)

func TestFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("SG_BASE_URL", "https://license.example.com")
	t.Setenv("SG_API_KEY", "sk_live_123")
	t.Setenv("SG_PRODUCT_SLUG", "acme-app")
	t.Setenv("SG_AUTO_VALIDATE_INTERVAL", "1h")
	t.Setenv("SG_MAX_RETRIES", "5")
	t.Setenv("SG_ENABLE_TELEMETRY", "true")
	t.Setenv("SG_OFFLINE_FALLBACK", "always")

	cfg, err := FromEnv("SG_")
	require.NoError(t, err)

	assert.Equal(t, "https://license.example.com", cfg.BaseURL)
	assert.Equal(t, "sk_live_123", cfg.APIKey)
	assert.Equal(t, "acme-app", cfg.ProductSlug)
	assert.Equal(t, time.Hour, cfg.AutoValidateInterval)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.EnableTelemetry)
	assert.Equal(t, session.FallbackAlways, cfg.OfflineFallback)
}

func TestFromEnvLeavesUnsetFieldsAtDefault(t *testing.T) {
	cfg, err := FromEnv("SG_UNUSED_PREFIX_")
	require.NoError(t, err)

	def := session.DefaultConfig()
	assert.Equal(t, def.MaxOfflineDays, cfg.MaxOfflineDays)
	assert.Equal(t, def.HeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, def.SDKName, cfg.SDKName)
}

func TestFromEnvRejectsInvalidFallbackMode(t *testing.T) {
	t.Setenv("SG2_OFFLINE_FALLBACK", "sometimes")
	_, err := FromEnv("SG2_")
	assert.Error(t, err)
}

func TestFromEnvRejectsInvalidDuration(t *testing.T) {
	t.Setenv("SG3_MAX_CLOCK_SKEW", "not-a-duration")
	_, err := FromEnv("SG3_")
	assert.Error(t, err)
}
