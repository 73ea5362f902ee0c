// Package offlinetoken implements the offline verification algorithm: an
// Ed25519 signature check over a server-issued canonical JSON blob, plus
// the non-cryptographic expiry/binding/clock checks that make validation
// possible without a network round-trip (spec §4.5). It is grounded on the
// teacher's pkg/license.VerifyLicense/parseAndVerify (Ed25519 verify over a
// signed blob) but diverges from it in one deliberate way: the teacher
// re-marshals its own struct to get the bytes it verifies, while this
// verifier treats the server-supplied canonical string as an opaque,
// already-encoded blob and never re-encodes it — re-deriving the bytes
// would silently break verification on any key-order or whitespace drift.
package offlinetoken

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/savegress/license-runtime/licenseerrors"
	"github.com/savegress/license-runtime/licensemodel"
)

// Policy bundles the tunables the verifier needs beyond the token and
// license themselves.
type Policy struct {
	// MaxOfflineDays bounds how long a token with no explicit expiry may be
	// trusted, measured from the license's last successful validation (or
	// activation if it was never validated). Zero disables the grace-period
	// check entirely.
	MaxOfflineDays int
	// MaxClockSkew bounds how far now_unix may sit behind a previously
	// recorded last_seen_unix before it is treated as clock tampering.
	MaxClockSkew time.Duration
}

// LookupPublicKey resolves a pinned public key by key_id. ok=false means
// no key is pinned (a cache-warmup gap, not a forgery signal); verification
// then proceeds skipping the cryptographic check per spec §4.5 step 6.
type LookupPublicKey func(keyID string) (licensemodel.PublicKey, bool, error)

// Verify runs the seven-step offline verification algorithm in spec-mandated
// order: the first failing check determines the result's ReasonCode. now
// and anchor are passed in (rather than read from global state) so callers
// control the wall clock and the last-seen-unix comparison point explicitly.
func Verify(token *licensemodel.OfflineToken, lic *licensemodel.License, now time.Time, anchor licensemodel.ClockAnchor, policy Policy, lookupKey LookupPublicKey) licensemodel.ValidationResult {
	fail := func(reasonCode string) licensemodel.ValidationResult {
		return licensemodel.ValidationResult{
			Valid:      false,
			Offline:    true,
			ReasonCode: reasonCode,
			CheckedAt:  now,
		}
	}

	// Step 1: presence.
	if token == nil {
		return fail(string(licenseerrors.CryptoErrNoOfflineToken))
	}
	if lic == nil {
		return fail(string(licenseerrors.CryptoErrNoLicense))
	}

	// Step 2: binding.
	if !constantTimeEqual(token.Token.LicenseKey, lic.Key) {
		return fail(string(licenseerrors.CryptoErrLicenseMismatch))
	}

	nowUnix := now.Unix()

	// Step 3: expiry, or grace period when exp is absent.
	if token.Token.ExpiresAt > 0 {
		if token.Token.ExpiresAt < nowUnix {
			return fail(string(licenseerrors.CryptoErrExpired))
		}
	} else if policy.MaxOfflineDays > 0 {
		reference := lic.ActivatedAt
		if lic.LastValidated != nil {
			reference = *lic.LastValidated
		}
		age := now.Sub(reference)
		if age > time.Duration(policy.MaxOfflineDays)*24*time.Hour {
			return fail(string(licenseerrors.CryptoErrGracePeriodExpired))
		}
	}

	// Step 4: not-yet-valid.
	if token.Token.NotBefore > 0 && token.Token.NotBefore > nowUnix {
		return fail(string(licenseerrors.CryptoErrNotYetValid))
	}

	// Step 5: clock-tamper.
	if anchor.LastSeenUnix > 0 {
		skewSeconds := int64(policy.MaxClockSkew / time.Second)
		if nowUnix+skewSeconds < anchor.LastSeenUnix {
			return fail(string(licenseerrors.CryptoErrClockTamper))
		}
	}

	// Step 6: signature.
	keyID := token.Token.KeyID
	if keyID == "" {
		keyID = token.Signature.KeyID
	}

	if lookupKey != nil && keyID != "" {
		pub, ok, err := lookupKey(keyID)
		if err != nil {
			return fail(string(licenseerrors.CryptoErrVerificationError))
		}
		if ok {
			if reasonCode := verifySignature(token, pub); reasonCode != "" {
				return fail(reasonCode)
			}
		}
		// No pinned key: proceed without cryptographic proof (step 6, "skip").
	}

	// Step 7: commit.
	entitlements := make([]licensemodel.Entitlement, 0, len(token.Token.Entitlements))
	for _, e := range token.Token.Entitlements {
		if e.Key == "" {
			continue
		}
		ent := licensemodel.Entitlement{Key: e.Key}
		if e.ExpiresAt > 0 {
			t := time.Unix(e.ExpiresAt, 0).UTC()
			ent.ExpiresAt = &t
		}
		entitlements = append(entitlements, ent)
	}

	return licensemodel.ValidationResult{
		Valid:              true,
		Offline:            true,
		ActiveEntitlements: entitlements,
		CheckedAt:          now,
	}
}

// verifySignature decodes the signature and public key and checks the
// Ed25519 signature over token.Canonical verbatim. It returns the reason
// code for a failure, or "" on success.
func verifySignature(token *licensemodel.OfflineToken, pub licensemodel.PublicKey) string {
	sigBytes, err := base64.RawURLEncoding.DecodeString(token.Signature.Value)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return string(licenseerrors.CryptoErrInvalidSignature)
	}

	pubBytes, err := base64.StdEncoding.DecodeString(pub.PublicKey)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return string(licenseerrors.CryptoErrInvalidKey)
	}

	// The canonical string is used exactly as received: it is the
	// server-signed blob, not something this verifier is allowed to
	// reconstruct from token.Token.
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), []byte(token.Canonical), sigBytes) {
		return string(licenseerrors.CryptoErrSignatureInvalid)
	}

	return ""
}

// constantTimeEqual compares two opaque strings without leaking timing
// information about where they first differ (spec invariant 6).
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NextLastSeen computes the ClockAnchor update for a successful
// verification: last_seen_unix strictly increases or is preserved, never
// goes backward (spec invariant 5).
func NextLastSeen(anchor licensemodel.ClockAnchor, now time.Time) licensemodel.ClockAnchor {
	nowUnix := now.Unix()
	if nowUnix > anchor.LastSeenUnix {
		return licensemodel.ClockAnchor{LastSeenUnix: nowUnix}
	}
	return anchor
}

// validatePublicKeyShape is a defensive guard used by callers that pin a
// PublicKey into the cache for the first time (spec §3: "32 bytes after
// decoding").
func validatePublicKeyShape(pub licensemodel.PublicKey) error {
	raw, err := base64.StdEncoding.DecodeString(pub.PublicKey)
	if err != nil {
		return fmt.Errorf("offlinetoken: decode public key %s: %w", pub.KeyID, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("offlinetoken: public key %s has %d bytes, want %d", pub.KeyID, len(raw), ed25519.PublicKeySize)
	}
	return nil
}

// ValidatePublicKey is the exported form of validatePublicKeyShape, used by
// the Session Core before pinning a newly fetched signing key.
func ValidatePublicKey(pub licensemodel.PublicKey) error {
	return validatePublicKeyShape(pub)
}
