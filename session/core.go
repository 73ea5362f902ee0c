package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/savegress/license-runtime/apiadapter"
	"github.com/savegress/license-runtime/cachestore"
	"github.com/savegress/license-runtime/deviceid"
	"github.com/savegress/license-runtime/eventbus"
	"github.com/savegress/license-runtime/licenseerrors"
	"github.com/savegress/license-runtime/licensemodel"
	"github.com/savegress/license-runtime/offlinetoken"
	"github.com/savegress/license-runtime/scheduler"
)

// Status is the Session Core's derived state, a pure function of cache
// contents (spec §4.1 "States of the Session Core").
type Status string

const (
	StatusInactive       Status = "inactive"
	StatusPending        Status = "pending"
	StatusActive         Status = "active"
	StatusOfflineValid   Status = "offline_valid"
	StatusInvalid        Status = "invalid"
	StatusOfflineInvalid Status = "offline_invalid"
)

// ErrDisposed is returned by Activate, Validate, Deactivate and Heartbeat
// once Dispose has been called.
var ErrDisposed = fmt.Errorf("session: core has been disposed")

// Core is the Session Core. One Core manages exactly one (license_key,
// device_id) pair at a time; activating a different key replaces it.
type Core struct {
	mu sync.RWMutex

	cfg      Config
	store    cachestore.Store
	adapter  *apiadapter.Adapter
	bus      *eventbus.Bus
	sched    *scheduler.Scheduler
	deviceID string

	disposed   bool
	currentKey string

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs a Core. If cfg.AutoInit is true and a license is already
// cached, it is loaded, both cycles are started, and one background
// validation is kicked off (spec §4.1 "Initialization").
func New(cfg Config) (*Core, error) {
	if cfg.Store == nil {
		return nil, licenseerrors.NewConfigurationError(licenseerrors.ConfigErrInvalidConfiguration, "session: Store is required")
	}
	if cfg.APIKey == "" {
		return nil, licenseerrors.NewConfigurationError(licenseerrors.ConfigErrMissingAPIKey, "session: APIKey is required")
	}

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = deviceid.DeriveWithFallback()
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	c := &Core{
		cfg:      cfg,
		store:    cfg.Store,
		bus:      eventbus.New(nil),
		deviceID: deviceID,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	c.adapter = apiadapter.New(cfg.apiAdapterConfig(c.onNetworkStatusChange))
	c.sched = scheduler.New(cfg.AutoValidateInterval, c.runAutoValidationCycle, cfg.HeartbeatInterval, c.runHeartbeatCycle)

	if cfg.AutoInit {
		c.initialize(bgCtx)
	}

	return c, nil
}

// Events returns the Core's event bus for subscription.
func (c *Core) Events() *eventbus.Bus {
	return c.bus
}

func (c *Core) initialize(ctx context.Context) {
	lic, ok := c.loadCachedLicense()
	if !ok {
		return
	}

	c.mu.Lock()
	c.currentKey = lic.Key
	c.mu.Unlock()

	c.bus.Emit(eventbus.TopicLicenseLoaded, lic)
	c.sched.StartAll()

	c.goBackground(func(ctx context.Context) {
		result, err := c.Validate(ctx, lic.Key, ValidateOptions{})
		if err != nil {
			var apiErr *licenseerrors.APIError
			if asErr, ok := err.(*licenseerrors.APIError); ok {
				apiErr = asErr
			}
			if apiErr != nil && (apiErr.StatusCode == 401 || apiErr.StatusCode == 501) {
				c.bus.Emit(eventbus.TopicValidationAuthFailed, err)
				return
			}
		}
		_ = result
	})
}

func (c *Core) goBackground(fn func(ctx context.Context)) {
	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()
		fn(c.bgCtx)
	}()
}

// onNetworkStatusChange reacts to the API Adapter's online/offline
// inference (spec §4.1, §5: "After network:online, scheduler restart MUST
// observe the new state — no lost wakeups"). Going offline stops the
// heartbeat cycle, since pinging a server the adapter already knows is
// unreachable is pointless; the validate cycle keeps running so a later
// successful attempt is what actually detects recovery. Coming back online
// restarts both cycles when a cached license still exists — StartAll is
// idempotent, so this is safe even if the validate cycle never stopped.
// Both are done off the calling goroutine: this callback can fire from
// inside a cycle's own run loop (a heartbeat or validate attempt failing
// or succeeding), and Cycle.Stop blocks until that loop exits, which would
// deadlock the cycle against itself if called inline.
func (c *Core) onNetworkStatusChange(online bool) {
	if !online {
		c.bus.Emit(eventbus.TopicNetworkOffline, nil)
		c.goBackground(func(ctx context.Context) {
			c.sched.Heartbeat.Stop()
		})
		return
	}

	c.bus.Emit(eventbus.TopicNetworkOnline, nil)
	c.goBackground(func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		if _, ok := c.loadCachedLicense(); ok {
			c.sched.StartAll()
		}
	})
}

func (c *Core) key(suffix string) string {
	return c.cfg.StoragePrefix + suffix
}

// checkDisposed returns ErrDisposed if Dispose has already run.
func (c *Core) checkDisposed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disposed {
		return ErrDisposed
	}
	return nil
}

// loadCachedLicense reads and decodes the cached license, if any.
func (c *Core) loadCachedLicense() (*licensemodel.License, bool) {
	raw, ok, err := c.store.Get(context.Background(), c.key(cachestore.KeyLicense))
	if err != nil || !ok {
		return nil, false
	}
	var lic licensemodel.License
	if err := json.Unmarshal(raw, &lic); err != nil {
		return nil, false
	}
	return &lic, true
}

func (c *Core) saveLicense(ctx context.Context, lic *licensemodel.License) error {
	raw, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("session: marshal license: %w", err)
	}
	return c.store.Set(ctx, c.key(cachestore.KeyLicense), raw)
}

func (c *Core) loadOfflineToken() (*licensemodel.OfflineToken, bool) {
	raw, ok, err := c.store.Get(context.Background(), c.key(cachestore.KeyOfflineToken))
	if err != nil || !ok {
		return nil, false
	}
	var token licensemodel.OfflineToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, false
	}
	return &token, true
}

func (c *Core) saveOfflineToken(ctx context.Context, token *licensemodel.OfflineToken) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("session: marshal offline token: %w", err)
	}
	return c.store.Set(ctx, c.key(cachestore.KeyOfflineToken), raw)
}

func (c *Core) loadClockAnchor() licensemodel.ClockAnchor {
	raw, ok, err := c.store.Get(context.Background(), c.key(cachestore.KeyLastSeen))
	if err != nil || !ok {
		return licensemodel.ClockAnchor{}
	}
	var anchor licensemodel.ClockAnchor
	if err := json.Unmarshal(raw, &anchor); err != nil {
		return licensemodel.ClockAnchor{}
	}
	return anchor
}

func (c *Core) saveClockAnchor(ctx context.Context, anchor licensemodel.ClockAnchor) error {
	raw, err := json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("session: marshal clock anchor: %w", err)
	}
	return c.store.Set(ctx, c.key(cachestore.KeyLastSeen), raw)
}

func (c *Core) lookupPublicKey(keyID string) (licensemodel.PublicKey, bool, error) {
	raw, ok, err := c.store.Get(context.Background(), c.key(cachestore.PublicKeyKey(keyID)))
	if err != nil {
		return licensemodel.PublicKey{}, false, err
	}
	if !ok {
		return licensemodel.PublicKey{}, false, nil
	}
	var pub licensemodel.PublicKey
	if err := json.Unmarshal(raw, &pub); err != nil {
		return licensemodel.PublicKey{}, false, err
	}
	return pub, true, nil
}

// pinPublicKey stores pub under its key_id unless one is already pinned
// there (spec §3: "never silently overwritten").
func (c *Core) pinPublicKey(ctx context.Context, pub licensemodel.PublicKey) error {
	if _, ok, _ := c.lookupPublicKey(pub.KeyID); ok {
		return nil
	}
	if err := offlinetoken.ValidatePublicKey(pub); err != nil {
		return err
	}
	raw, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("session: marshal public key: %w", err)
	}
	return c.store.Set(ctx, c.key(cachestore.PublicKeyKey(pub.KeyID)), raw)
}

// GetStatus derives the Core's current state purely from cache contents
// (spec §4.1 states table); it performs no I/O beyond the cache read.
func (c *Core) GetStatus() Status {
	lic, ok := c.loadCachedLicense()
	if !ok {
		return StatusInactive
	}
	if lic.Validation == nil {
		return StatusPending
	}
	switch {
	case lic.Validation.Valid && !lic.Validation.Offline:
		return StatusActive
	case lic.Validation.Valid && lic.Validation.Offline:
		return StatusOfflineValid
	case !lic.Validation.Valid && !lic.Validation.Offline:
		return StatusInvalid
	default:
		return StatusOfflineInvalid
	}
}

// GetCurrentLicense returns the cached license, or nil if none is cached.
func (c *Core) GetCurrentLicense() *licensemodel.License {
	lic, ok := c.loadCachedLicense()
	if !ok {
		return nil
	}
	return lic
}

// EntitlementStatus is the verdict of CheckEntitlement.
type EntitlementStatus struct {
	Key        string
	Active     bool
	ReasonCode string
}

// CheckEntitlement reports whether key names a currently active,
// non-expired entitlement in the last successful validation. Per spec
// §7, an entitlement check with no successful validation never reports
// active — it reports a reason code instead (spec invariant: "the core
// never silently degrades entitlement state").
func (c *Core) CheckEntitlement(key string) EntitlementStatus {
	lic, ok := c.loadCachedLicense()
	if !ok {
		return EntitlementStatus{Key: key, Active: false, ReasonCode: "no_license"}
	}
	if lic.Validation == nil || !lic.Validation.Valid {
		return EntitlementStatus{Key: key, Active: false, ReasonCode: "not_found"}
	}
	if lic.HasEntitlement(key, time.Now()) {
		return EntitlementStatus{Key: key, Active: true}
	}
	return EntitlementStatus{Key: key, Active: false, ReasonCode: "not_found"}
}

// HasEntitlement is the boolean convenience form of CheckEntitlement.
func (c *Core) HasEntitlement(key string) bool {
	return c.CheckEntitlement(key).Active
}

// TestAuth pings the health endpoint using the configured credentials.
func (c *Core) TestAuth(ctx context.Context) bool {
	c.bus.Emit(eventbus.TopicAuthTestStart, nil)
	ok, err := c.adapter.Health(ctx)
	if err != nil || !ok {
		c.bus.Emit(eventbus.TopicAuthTestError, err)
		return false
	}
	c.bus.Emit(eventbus.TopicAuthTestOK, nil)
	return true
}

// Dispose stops both timers, cancels in-flight background tasks, emits
// sdk:destroyed, and clears event-bus subscribers. It is idempotent: a
// second call is a no-op and does not re-emit sdk:destroyed (spec §5's
// round-trip law "double-dispose emits sdk:destroyed at most once").
func (c *Core) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.mu.Unlock()

	c.sched.StopAll()
	c.bgCancel()
	c.bgWG.Wait()

	c.bus.Emit(eventbus.TopicSDKDestroyed, nil)
	c.bus.ClearAll()
	return nil
}
