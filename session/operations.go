package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/savegress/license-runtime/cachestore"
	"github.com/savegress/license-runtime/eventbus"
	"github.com/savegress/license-runtime/licenseerrors"
	"github.com/savegress/license-runtime/licensemodel"
	"github.com/savegress/license-runtime/offlinetoken"
	"github.com/savegress/license-runtime/telemetry"
)

// ActivateOptions customizes a single Activate call.
type ActivateOptions struct {
	DeviceName string
	Metadata   map[string]any
}

// deactivateSuccessEquivalentCodes are reason codes an HTTP 422 response
// carries when the server considers the license already gone — treated as
// a successful deactivation, still clearing local state (spec §4.1).
var deactivateSuccessEquivalentCodes = map[string]bool{
	"revoked":             true,
	"already_deactivated": true,
	"not_active":          true,
	"not_found":           true,
	"suspended":           true,
	"expired":             true,
}

func (c *Core) telemetryMap() map[string]any {
	if !c.cfg.EnableTelemetry {
		return nil
	}
	env := telemetry.Collect(telemetry.Options{
		SDKName:    c.cfg.SDKName,
		SDKVersion: c.cfg.SDKVersion,
		Platform:   c.cfg.Platform,
		AppVersion: c.cfg.AppVersion,
		AppBuild:   c.cfg.AppBuild,
	})
	return env.ToMap()
}

// Activate binds licenseKey to this Core's device, exactly once per
// key+device (spec §4.1). On success the cache records a provisional
// optimistic validation and both scheduler cycles start; a background
// task then fetches the offline token and signing key.
func (c *Core) Activate(ctx context.Context, licenseKey string, opts ActivateOptions) (*licensemodel.License, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}

	c.bus.Emit(eventbus.TopicActivationStart, licenseKey)

	resp, err := c.adapter.Activate(ctx, licenseKey, c.deviceID, opts.DeviceName, opts.Metadata)
	if err != nil {
		c.bus.Emit(eventbus.TopicActivationError, err)
		return nil, err
	}

	lic := resp.License
	lic.Key = licenseKey
	lic.DeviceID = c.deviceID
	lic.ActivatedAt = time.Now()
	lic.UpdateValidation(licensemodel.ValidationResult{
		Valid:      true,
		Optimistic: true,
		CheckedAt:  time.Now(),
	})

	if err := c.saveLicense(ctx, &lic); err != nil {
		c.bus.Emit(eventbus.TopicActivationError, err)
		return nil, err
	}

	c.mu.Lock()
	c.currentKey = licenseKey
	c.mu.Unlock()

	c.sched.StartAll()
	c.bus.Emit(eventbus.TopicActivationOK, &lic)

	c.goBackground(func(ctx context.Context) {
		c.fetchOfflineCapability(ctx, licenseKey)
	})

	return &lic, nil
}

// fetchOfflineCapability fetches and pins the signing key plus the offline
// token for licenseKey, emitting the offline-license:* topics (spec §4.7).
// Failures here are logged and swallowed: they never fail Activate itself.
func (c *Core) fetchOfflineCapability(ctx context.Context, licenseKey string) {
	c.bus.Emit(eventbus.TopicOfflineLicenseFetching, licenseKey)

	token, err := c.adapter.FetchOfflineToken(ctx, licenseKey, c.deviceID)
	if err != nil {
		c.bus.Emit(eventbus.TopicOfflineLicenseFetchErr, err)
		return
	}

	keyID := token.Token.KeyID
	if keyID == "" {
		keyID = token.Signature.KeyID
	}
	if keyID != "" {
		if _, pinned, _ := c.lookupPublicKey(keyID); !pinned {
			signingKey, err := c.adapter.FetchSigningKey(ctx, keyID)
			if err == nil {
				_ = c.pinPublicKey(ctx, licensemodel.PublicKey{
					KeyID:     signingKey.KeyID,
					Algorithm: signingKey.Algorithm,
					PublicKey: signingKey.PublicKey,
					Status:    signingKey.Status,
				})
			}
		}
	}

	if err := c.saveOfflineToken(ctx, token); err != nil {
		c.bus.Emit(eventbus.TopicOfflineLicenseFetchErr, err)
		return
	}

	c.bus.Emit(eventbus.TopicOfflineLicenseFetched, token)
	c.bus.Emit(eventbus.TopicOfflineLicenseReady, token)
}

// ValidateOptions customizes a single Validate call.
type ValidateOptions struct{}

// Validate contacts the license service; on success it updates the cache
// with the returned verdict and entitlements. On network/server failure it
// falls back to the Offline Verifier according to the configured
// OfflineFallbackMode (spec §4.1, §4.4).
func (c *Core) Validate(ctx context.Context, licenseKey string, _ ValidateOptions) (licensemodel.ValidationResult, error) {
	if err := c.checkDisposed(); err != nil {
		return licensemodel.ValidationResult{}, err
	}

	c.bus.Emit(eventbus.TopicValidationStart, licenseKey)

	resp, err := c.adapter.Validate(ctx, licenseKey, c.deviceID, c.telemetryMap())
	if err != nil {
		if errors.Is(err, licenseerrors.ErrCancelled) {
			return licensemodel.ValidationResult{}, err
		}
		return c.handleValidateFailure(ctx, licenseKey, err)
	}

	result := licensemodel.ValidationResult{
		Valid:      resp.Valid,
		Offline:    false,
		Reason:     resp.Message,
		ReasonCode: resp.Code,
		CheckedAt:  time.Now(),
	}
	if resp.License != nil {
		result.ActiveEntitlements = resp.License.ActiveEntitlements
	}

	if err := c.commitValidation(ctx, licenseKey, result, resp.License); err != nil {
		return result, err
	}

	if result.Valid {
		c.bus.Emit(eventbus.TopicValidationOK, &result)
	} else {
		c.bus.Emit(eventbus.TopicValidationFailed, &result)
	}
	return result, nil
}

// handleValidateFailure applies the OfflineFallbackMode policy to a failed
// online validation attempt (spec §4.4).
func (c *Core) handleValidateFailure(ctx context.Context, licenseKey string, apiErr error) (licensemodel.ValidationResult, error) {
	shouldFallBack := false
	switch c.cfg.OfflineFallback {
	case FallbackAlways:
		shouldFallBack = true
	case FallbackNetworkOnly:
		var ae *licenseerrors.APIError
		if errors.As(apiErr, &ae) {
			shouldFallBack = ae.IsNetwork() || ae.IsServer()
		}
	case FallbackDisabled:
		shouldFallBack = false
	}

	if !shouldFallBack {
		c.bus.Emit(eventbus.TopicValidationError, apiErr)
		return licensemodel.ValidationResult{}, apiErr
	}

	result := c.verifyOffline(licenseKey)
	if result.Valid {
		c.bus.Emit(eventbus.TopicValidationOfflineSuccess, &result)
	} else {
		c.bus.Emit(eventbus.TopicValidationOfflineFailed, &result)
	}
	return result, nil
}

// verifyOffline runs the Offline Verifier against the cached token and
// license, committing a successful verdict's clock anchor.
func (c *Core) verifyOffline(licenseKey string) licensemodel.ValidationResult {
	lic := c.GetCurrentLicense()
	token, _ := c.loadOfflineToken()
	anchor := c.loadClockAnchor()

	result := offlinetoken.Verify(token, lic, time.Now(), anchor, offlinetoken.Policy{
		MaxOfflineDays: c.cfg.MaxOfflineDays,
		MaxClockSkew:   c.cfg.MaxClockSkew,
	}, c.lookupPublicKey)

	if result.Valid {
		if lic != nil {
			lic.UpdateValidation(result)
			_ = c.saveLicense(context.Background(), lic)
		}
		next := offlinetoken.NextLastSeen(anchor, result.CheckedAt)
		_ = c.saveClockAnchor(context.Background(), next)
	}
	// A failed offline verification does not touch last_seen (spec
	// invariant 5) and does not overwrite the cached license's validation.

	return result
}

// commitValidation persists a successful-or-failed online verdict, merging
// any server-returned license fields, and advances the clock anchor.
func (c *Core) commitValidation(ctx context.Context, licenseKey string, result licensemodel.ValidationResult, serverLicense *licensemodel.License) error {
	lic := c.GetCurrentLicense()
	if lic == nil {
		lic = &licensemodel.License{Key: licenseKey, DeviceID: c.deviceID, ActivatedAt: time.Now()}
	}
	if serverLicense != nil {
		serverLicense.Key = licenseKey
		serverLicense.DeviceID = c.deviceID
		if serverLicense.ActivatedAt.IsZero() {
			serverLicense.ActivatedAt = lic.ActivatedAt
		}
		lic = serverLicense
	}
	lic.UpdateValidation(result)

	if err := c.saveLicense(ctx, lic); err != nil {
		return err
	}
	if result.Valid {
		anchor := c.loadClockAnchor()
		next := offlinetoken.NextLastSeen(anchor, result.CheckedAt)
		return c.saveClockAnchor(ctx, next)
	}
	return nil
}

// isDeactivateSuccessEquivalent reports whether apiErr represents a server
// response that should be treated as a successful deactivation (spec
// §4.1's "already gone" table).
func isDeactivateSuccessEquivalent(apiErr error) bool {
	var ae *licenseerrors.APIError
	if !errors.As(apiErr, &ae) {
		return false
	}
	if ae.StatusCode == 404 || ae.StatusCode == 410 {
		return true
	}
	if ae.StatusCode != 422 {
		return false
	}
	if deactivateSuccessEquivalentCodes[strings.ToLower(ae.Code)] {
		return true
	}
	lowerMsg := strings.ToLower(ae.Message)
	for code := range deactivateSuccessEquivalentCodes {
		if strings.Contains(lowerMsg, code) {
			return true
		}
	}
	return false
}

// Deactivate requires a cached license; on success, or on a server response
// equivalent to "already gone", it clears the cached license and offline
// token and stops both cycles (spec §4.1, §8 invariant 3).
func (c *Core) Deactivate(ctx context.Context) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}

	lic := c.GetCurrentLicense()
	if lic == nil {
		return licenseerrors.ErrNoLicense
	}

	c.bus.Emit(eventbus.TopicDeactivationStart, lic.Key)

	_, err := c.adapter.Deactivate(ctx, lic.Key, c.deviceID)
	if err != nil && !isDeactivateSuccessEquivalent(err) {
		c.bus.Emit(eventbus.TopicDeactivationError, err)
		return err
	}

	c.clearLocalState(ctx)
	c.bus.Emit(eventbus.TopicDeactivationOK, lic.Key)
	return nil
}

// clearLocalState removes the cached license and offline token and stops
// both scheduler cycles, the common tail of Deactivate/Reset/Purge.
func (c *Core) clearLocalState(ctx context.Context) {
	_ = c.store.Delete(ctx, c.key(cachestore.KeyLicense))
	_ = c.store.Delete(ctx, c.key(cachestore.KeyOfflineToken))
	c.sched.StopAll()

	c.mu.Lock()
	c.currentKey = ""
	c.mu.Unlock()
}

// Heartbeat is a no-op if no license is cached; otherwise it posts a
// heartbeat with the device id, independent of the validation cycle (spec
// §4.1, §4.6).
func (c *Core) Heartbeat(ctx context.Context) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}

	lic := c.GetCurrentLicense()
	if lic == nil {
		return nil
	}

	_, err := c.adapter.Heartbeat(ctx, lic.Key, c.deviceID, c.telemetryMap())
	if err != nil {
		c.bus.Emit(eventbus.TopicHeartbeatError, err)
		return err
	}
	c.bus.Emit(eventbus.TopicHeartbeatOK, nil)
	return nil
}

// Reset clears local state and stops both cycles; emits sdk:reset.
func (c *Core) Reset() {
	c.clearLocalState(context.Background())
	c.bus.Emit(eventbus.TopicSDKReset, nil)
}

// PurgeCachedLicense clears local state and stops both cycles, intended for
// logout/revocation notifications rather than a generic reset. Calling it
// twice in a row is equivalent to calling it once (spec §8 round-trip law).
func (c *Core) PurgeCachedLicense() {
	c.clearLocalState(context.Background())
}

// runAutoValidationCycle is the Scheduler's validate-cycle callback: it
// captures the current key snapshot, no-ops if empty, validates, and then
// issues one best-effort heartbeat (spec §4.1 "Auto-validation cycle"). On
// a valid=false verdict the cycle stops and the key snapshot is cleared.
func (c *Core) runAutoValidationCycle() {
	c.mu.RLock()
	key := c.currentKey
	c.mu.RUnlock()
	if key == "" {
		return
	}

	ctx, cancel := context.WithTimeout(c.bgCtx, 30*time.Second)
	defer cancel()

	result, err := c.Validate(ctx, key, ValidateOptions{})
	if err != nil {
		c.bus.Emit(eventbus.TopicValidationAutoFailed, err)
		return
	}
	c.bus.Emit(eventbus.TopicAutoValidationCycle, &result)

	if !result.Valid {
		c.mu.Lock()
		c.currentKey = ""
		c.mu.Unlock()
		// Stop runs off this goroutine: this callback executes on the
		// Validate cycle's own run loop, and Cycle.Stop blocks until that
		// loop exits, which would deadlock the cycle against itself.
		c.goBackground(func(ctx context.Context) {
			c.sched.Validate.Stop()
		})
		c.bus.Emit(eventbus.TopicAutoValidationStopped, &result)
		return
	}

	_ = c.Heartbeat(ctx)
}

// runHeartbeatCycle is the Scheduler's heartbeat-cycle callback.
func (c *Core) runHeartbeatCycle() {
	c.mu.RLock()
	key := c.currentKey
	c.mu.RUnlock()
	if key == "" {
		return
	}

	ctx, cancel := context.WithTimeout(c.bgCtx, 30*time.Second)
	defer cancel()
	_ = c.Heartbeat(ctx)
}
