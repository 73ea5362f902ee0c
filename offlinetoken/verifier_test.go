package offlinetoken

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savegress/license-runtime/licensemodel"
)

func signToken(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, canonical string, keyID string) *licensemodel.OfflineToken {
	t.Helper()
	sig := ed25519.Sign(priv, []byte(canonical))
	return &licensemodel.OfflineToken{
		Signature: licensemodel.TokenSignature{
			Algorithm: "ed25519",
			KeyID:     keyID,
			Value:     base64.RawURLEncoding.EncodeToString(sig),
		},
		Canonical: canonical,
	}
}

func lookupFromKey(pub ed25519.PublicKey, keyID string) LookupPublicKey {
	return func(id string) (licensemodel.PublicKey, bool, error) {
		if id != keyID {
			return licensemodel.PublicKey{}, false, nil
		}
		return licensemodel.PublicKey{
			KeyID:     keyID,
			Algorithm: "ed25519",
			PublicKey: base64.StdEncoding.EncodeToString(pub),
			Status:    "active",
		}, true, nil
	}
}

// S2 — Offline signature verification.
func TestVerifyOfflineSignatureSuccess(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Now()
	canonical := `{"license_key":"K","exp":` + strconv.FormatInt(now.Add(time.Hour).Unix(), 10) + `,"nbf":` + strconv.FormatInt(now.Add(-time.Minute).Unix(), 10) + `,"kid":"kid1"}`

	token := signToken(t, pub, priv, canonical, "kid1")
	token.Token = licensemodel.OfflineTokenBody{
		LicenseKey: "K",
		ExpiresAt:  now.Add(time.Hour).Unix(),
		NotBefore:  now.Add(-time.Minute).Unix(),
		KeyID:      "kid1",
	}

	lic := &licensemodel.License{Key: "K", ActivatedAt: now.Add(-24 * time.Hour)}

	result := Verify(token, lic, now, licensemodel.ClockAnchor{}, Policy{MaxClockSkew: 5 * time.Minute}, lookupFromKey(pub, "kid1"))

	assert.True(t, result.Valid)
	assert.True(t, result.Offline)
}

// S3 — Signature tampering: canonical string altered after signing.
func TestVerifyOfflineSignatureTamperedCanonical(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Now()
	canonical := `{"license_key":"K","exp":` + strconv.FormatInt(now.Add(time.Hour).Unix(), 10) + `}`
	token := signToken(t, pub, priv, canonical, "kid1")
	token.Token = licensemodel.OfflineTokenBody{LicenseKey: "K", ExpiresAt: now.Add(time.Hour).Unix(), KeyID: "kid1"}

	// Tamper: "K" -> "X" in the signed blob, as S3 specifies.
	token.Canonical = `{"license_key":"X","exp":` + strconv.FormatInt(now.Add(time.Hour).Unix(), 10) + `}`

	lic := &licensemodel.License{Key: "K", ActivatedAt: now}

	result := Verify(token, lic, now, licensemodel.ClockAnchor{}, Policy{}, lookupFromKey(pub, "kid1"))

	assert.False(t, result.Valid)
	assert.True(t, result.Offline)
	assert.Equal(t, "signature_invalid", result.ReasonCode)
}

// S4 — Clock rollback.
func TestVerifyClockTamperDetected(t *testing.T) {
	now := time.Now()
	token := &licensemodel.OfflineToken{
		Token:     licensemodel.OfflineTokenBody{LicenseKey: "K", KeyID: "kid1"},
		Canonical: `{"license_key":"K"}`,
	}
	lic := &licensemodel.License{Key: "K", ActivatedAt: now}

	anchor := licensemodel.ClockAnchor{LastSeenUnix: now.Unix()}
	rolledBack := now.Add(-7 * 24 * time.Hour)

	result := Verify(token, lic, rolledBack, anchor, Policy{MaxClockSkew: 300 * time.Second}, nil)

	assert.False(t, result.Valid)
	assert.Equal(t, "clock_tamper", result.ReasonCode)
}

// S7 — Grace-period expiry.
func TestVerifyGracePeriodExpired(t *testing.T) {
	now := time.Now()
	lastValidated := now.Add(-10 * 24 * time.Hour)
	token := &licensemodel.OfflineToken{
		Token:     licensemodel.OfflineTokenBody{LicenseKey: "K", KeyID: "kid1"},
		Canonical: `{"license_key":"K"}`,
	}
	lic := &licensemodel.License{Key: "K", ActivatedAt: now.Add(-30 * 24 * time.Hour), LastValidated: &lastValidated}

	result := Verify(token, lic, now, licensemodel.ClockAnchor{}, Policy{MaxOfflineDays: 7}, nil)

	assert.False(t, result.Valid)
	assert.Equal(t, "grace_period_expired", result.ReasonCode)
}

func TestVerifyNoOfflineToken(t *testing.T) {
	result := Verify(nil, &licensemodel.License{Key: "K"}, time.Now(), licensemodel.ClockAnchor{}, Policy{}, nil)
	assert.False(t, result.Valid)
	assert.Equal(t, "no_offline_token", result.ReasonCode)
}

func TestVerifyNoLicense(t *testing.T) {
	token := &licensemodel.OfflineToken{Token: licensemodel.OfflineTokenBody{LicenseKey: "K"}}
	result := Verify(token, nil, time.Now(), licensemodel.ClockAnchor{}, Policy{}, nil)
	assert.False(t, result.Valid)
	assert.Equal(t, "no_license", result.ReasonCode)
}

func TestVerifyLicenseMismatch(t *testing.T) {
	token := &licensemodel.OfflineToken{Token: licensemodel.OfflineTokenBody{LicenseKey: "OTHER"}}
	lic := &licensemodel.License{Key: "K"}
	result := Verify(token, lic, time.Now(), licensemodel.ClockAnchor{}, Policy{}, nil)
	assert.False(t, result.Valid)
	assert.Equal(t, "license_mismatch", result.ReasonCode)
}

func TestVerifyNotYetValid(t *testing.T) {
	now := time.Now()
	token := &licensemodel.OfflineToken{
		Token:     licensemodel.OfflineTokenBody{LicenseKey: "K", NotBefore: now.Add(time.Hour).Unix()},
		Canonical: `{}`,
	}
	lic := &licensemodel.License{Key: "K"}
	result := Verify(token, lic, now, licensemodel.ClockAnchor{}, Policy{}, nil)
	assert.False(t, result.Valid)
	assert.Equal(t, "not_yet_valid", result.ReasonCode)
}

func TestVerifySkipsSignatureWhenNoKeyPinned(t *testing.T) {
	now := time.Now()
	token := &licensemodel.OfflineToken{
		Token:     licensemodel.OfflineTokenBody{LicenseKey: "K", KeyID: "missing-kid"},
		Canonical: `{"license_key":"K"}`,
	}
	lic := &licensemodel.License{Key: "K"}

	lookup := func(id string) (licensemodel.PublicKey, bool, error) {
		return licensemodel.PublicKey{}, false, nil
	}

	result := Verify(token, lic, now, licensemodel.ClockAnchor{}, Policy{}, lookup)
	assert.True(t, result.Valid, "missing pinned key should skip crypto check, not fail verification")
}

func TestVerifyDropsEntitlementsWithEmptyKey(t *testing.T) {
	now := time.Now()
	token := &licensemodel.OfflineToken{
		Token: licensemodel.OfflineTokenBody{
			LicenseKey: "K",
			Entitlements: []licensemodel.OfflineEntitlement{
				{Key: "pro-features"},
				{Key: ""},
			},
		},
		Canonical: `{"license_key":"K"}`,
	}
	lic := &licensemodel.License{Key: "K"}

	result := Verify(token, lic, now, licensemodel.ClockAnchor{}, Policy{}, nil)
	require.True(t, result.Valid)
	require.Len(t, result.ActiveEntitlements, 1)
	assert.Equal(t, "pro-features", result.ActiveEntitlements[0].Key)
}
