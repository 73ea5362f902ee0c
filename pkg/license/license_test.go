package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savegress/license-runtime/cachestore"
	"github.com/savegress/license-runtime/session"
)

func newTestGate(t *testing.T, planKey string, entitlements []string) *Gate {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cfg := session.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = "test-key"
	cfg.ProductSlug = "p"
	cfg.Store = cachestore.NewMemoryStore()
	cfg.AutoInit = false

	core, err := session.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Dispose() })

	var active []map[string]any
	for _, key := range entitlements {
		active = append(active, map[string]any{"key": key})
	}
	raw, _ := json.Marshal(map[string]any{
		"key": "K", "status": "active", "plan_key": planKey,
		"activated_at": time.Now(),
		"validation": map[string]any{
			"valid": true, "checked_at": time.Now(), "active_entitlements": active,
		},
		"active_entitlements": active,
	})
	require.NoError(t, cfg.Store.Set(context.Background(), "savegress.license", raw))

	return NewGate(core)
}

func TestGateTierDerivedFromPlanKey(t *testing.T) {
	gate := newTestGate(t, "enterprise", nil)
	assert.Equal(t, TierEnterprise, gate.Tier())
}

func TestGateTierFallsBackToCommunityWithNoLicense(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:0"
	cfg.APIKey = "k"
	cfg.ProductSlug = "p"
	cfg.Store = cachestore.NewMemoryStore()
	cfg.AutoInit = false
	core, err := session.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Dispose() })

	gate := NewGate(core)
	assert.Equal(t, TierCommunity, gate.Tier())
}

func TestGateHasFeatureAlwaysTrueForCommunityFeatures(t *testing.T) {
	gate := newTestGate(t, "community", nil)
	assert.True(t, gate.HasFeature(FeaturePostgreSQL))
	assert.False(t, gate.HasFeature(FeatureCompression))
}

func TestGateRequireFeatureSucceedsWhenEntitled(t *testing.T) {
	gate := newTestGate(t, "pro", []string{string(FeatureCompression)})
	assert.NoError(t, gate.RequireFeature(FeatureCompression))
}

func TestGateRequireFeatureFailsWithUpgradePrompt(t *testing.T) {
	gate := newTestGate(t, "community", nil)
	err := gate.RequireFeature(FeatureHA)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeatureNotLicensed)
	assert.Contains(t, err.Error(), "Enterprise")
}

func TestGateTierClampedToMaxTierAllowed(t *testing.T) {
	gate := newTestGate(t, "enterprise", nil)
	assert.Equal(t, MaxTierAllowed, gate.Tier())
}

func TestGateHasFeatureRejectsFeatureNotCompiledIntoThisEdition(t *testing.T) {
	gate := newTestGate(t, "enterprise", []string{"not_a_real_feature"})
	assert.False(t, gate.HasFeature(Feature("not_a_real_feature")))
}

func TestFeatureGateTierHelpers(t *testing.T) {
	gate := newTestGate(t, "pro", nil)
	fg := NewFeatureGate(gate)
	assert.True(t, fg.IsPro())
	assert.False(t, fg.IsEnterprise())
}

func TestEnforcerFlagsLimitExceeded(t *testing.T) {
	gate := newTestGate(t, "community", nil)

	var exceeded []string
	enf := NewEnforcer(EnforcerConfig{
		Gate: gate,
		OnLimitExceeded: func(limitType string, current, max int64) {
			exceeded = append(exceeded, limitType)
		},
	})
	enf.SetSources(5)
	enf.performChecks()

	assert.Contains(t, exceeded, "sources")
}

func TestCheckSourceAllowedRejectsUnlicensedFeature(t *testing.T) {
	gate := newTestGate(t, "community", nil)
	enf := NewEnforcer(EnforcerConfig{Gate: gate})

	err := enf.CheckSourceAllowed("oracle")
	assert.ErrorIs(t, err, ErrFeatureNotLicensed)
}

func TestCheckSourceAllowedRejectsOverLimit(t *testing.T) {
	gate := newTestGate(t, "community", nil)
	enf := NewEnforcer(EnforcerConfig{Gate: gate})
	enf.SetSources(1)

	err := enf.CheckSourceAllowed("postgresql")
	assert.ErrorIs(t, err, ErrLimitExceeded)
}
