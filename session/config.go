// Package session implements the Session Core: the state machine that owns
// activate/validate/deactivate/heartbeat for one license key, persists its
// state to a Cache Store, drives the validate/heartbeat background cycles,
// and emits events for every transition. It composes every other package in
// this module (cachestore, apiadapter, offlinetoken, eventbus, scheduler,
// telemetry, deviceid) the way the teacher's pkg/license.Manager composes
// LicenseClient/TelemetryClient/hardware-ID helpers into one facade, but
// generalizes the teacher's single-key-loaded-at-construction model into
// full activate/validate/deactivate lifecycle management.
package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/license-runtime/apiadapter"
	"github.com/savegress/license-runtime/cachestore"
)

// OfflineFallbackMode controls when a failed online validation falls back
// to the Offline Verifier (spec §4.4).
type OfflineFallbackMode string

const (
	// FallbackDisabled propagates network failures instead of falling back.
	FallbackDisabled OfflineFallbackMode = "disabled"
	// FallbackNetworkOnly falls back only on NetworkError/ServerError.
	FallbackNetworkOnly OfflineFallbackMode = "network_only"
	// FallbackAlways falls back on any validation error.
	FallbackAlways OfflineFallbackMode = "always"
)

// Config configures a Core. Mirrors the teacher's ManagerConfig shape
// (server URL, grace period, check interval, telemetry toggle) generalized
// to the spec's full activate/validate/deactivate/heartbeat surface.
type Config struct {
	// BaseURL, APIKey, ProductSlug address the license service.
	BaseURL     string
	APIKey      string
	ProductSlug string

	// Store persists session state across restarts. Required.
	Store cachestore.Store
	// StoragePrefix namespaces every cache key this Core writes (spec §4.2).
	StoragePrefix string

	// DeviceID overrides the default host-derived identifier. Empty means
	// deviceid.DeriveWithFallback() is used.
	DeviceID string

	// AutoValidateInterval drives the periodic re-validation cycle; zero
	// disables it.
	AutoValidateInterval time.Duration
	// HeartbeatInterval drives the periodic heartbeat cycle; zero disables
	// it. DefaultConfig sets it to 5 minutes; New applies no default of its
	// own.
	HeartbeatInterval time.Duration

	// OfflineFallback selects when the Offline Verifier is consulted after
	// a failed online validation.
	OfflineFallback OfflineFallbackMode
	// MaxOfflineDays bounds the grace period for tokens with no explicit
	// expiry (spec §4.5 step 3). Zero disables the check.
	MaxOfflineDays int
	// MaxClockSkew bounds the clock-tamper check (spec §4.5 step 5).
	MaxClockSkew time.Duration

	// MaxRetries and RetryDelay configure the API Adapter's retry policy.
	MaxRetries int
	RetryDelay time.Duration

	// EnableTelemetry attaches a telemetry envelope to outgoing requests.
	EnableTelemetry bool
	SDKName         string
	SDKVersion      string
	Platform        string
	AppVersion      string
	AppBuild        string

	// AutoInit loads any cached license and starts background cycles as
	// part of New, per spec §4.1 "Initialization".
	AutoInit bool

	Logger zerolog.Logger
}

// DefaultConfig mirrors the teacher's DefaultConfig: sane production
// defaults for a host application that just wants activation to work.
func DefaultConfig() Config {
	return Config{
		StoragePrefix:        "savegress.",
		AutoValidateInterval: 24 * time.Hour,
		HeartbeatInterval:    5 * time.Minute,
		OfflineFallback:      FallbackNetworkOnly,
		MaxOfflineDays:       7,
		MaxClockSkew:         5 * time.Minute,
		MaxRetries:           2,
		RetryDelay:           500 * time.Millisecond,
		SDKName:              "savegress-go",
		SDKVersion:           "1.0.0",
		Platform:             "go-runtime",
		AutoInit:             true,
	}
}

func (c Config) apiAdapterConfig(onNetworkStatusChange func(bool)) apiadapter.Config {
	return apiadapter.Config{
		BaseURL:               c.BaseURL,
		APIKey:                c.APIKey,
		ProductSlug:           c.ProductSlug,
		MaxRetries:            c.MaxRetries,
		RetryDelay:            c.RetryDelay,
		Logger:                c.Logger,
		OnNetworkStatusChange: onNetworkStatusChange,
	}
}
