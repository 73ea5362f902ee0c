// Package runtimeconfig loads a session.Config from environment variables,
// the way the teacher's internal/config.Load builds its Config from
// getEnv-wrapped os.Getenv calls. It is the host-application convenience
// path: construct a session.Config by hand, or call FromEnv and override
// what you need.
package runtimeconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/savegress/license-runtime/session"
)

// FromEnv builds a session.Config from environment variables prefixed with
// prefix (e.g. "SAVEGRESS_"), layered on top of session.DefaultConfig so
// unset variables keep their defaults. Store, Logger and DeviceID are never
// read from the environment — the caller always sets those explicitly.
func FromEnv(prefix string) (session.Config, error) {
	cfg := session.DefaultConfig()

	cfg.BaseURL = getEnv(prefix, "BASE_URL", cfg.BaseURL)
	cfg.APIKey = getEnv(prefix, "API_KEY", cfg.APIKey)
	cfg.ProductSlug = getEnv(prefix, "PRODUCT_SLUG", cfg.ProductSlug)
	cfg.StoragePrefix = getEnv(prefix, "STORAGE_PREFIX", cfg.StoragePrefix)
	cfg.SDKName = getEnv(prefix, "SDK_NAME", cfg.SDKName)
	cfg.SDKVersion = getEnv(prefix, "SDK_VERSION", cfg.SDKVersion)
	cfg.Platform = getEnv(prefix, "PLATFORM", cfg.Platform)
	cfg.AppVersion = getEnv(prefix, "APP_VERSION", cfg.AppVersion)
	cfg.AppBuild = getEnv(prefix, "APP_BUILD", cfg.AppBuild)

	if v, ok := os.LookupEnv(prefix + "OFFLINE_FALLBACK"); ok {
		mode, err := parseFallbackMode(v)
		if err != nil {
			return cfg, err
		}
		cfg.OfflineFallback = mode
	}

	var err error
	if cfg.AutoValidateInterval, err = getDuration(prefix, "AUTO_VALIDATE_INTERVAL", cfg.AutoValidateInterval); err != nil {
		return cfg, err
	}
	if cfg.HeartbeatInterval, err = getDuration(prefix, "HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return cfg, err
	}
	if cfg.MaxClockSkew, err = getDuration(prefix, "MAX_CLOCK_SKEW", cfg.MaxClockSkew); err != nil {
		return cfg, err
	}
	if cfg.RetryDelay, err = getDuration(prefix, "RETRY_DELAY", cfg.RetryDelay); err != nil {
		return cfg, err
	}
	if cfg.MaxOfflineDays, err = getInt(prefix, "MAX_OFFLINE_DAYS", cfg.MaxOfflineDays); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = getInt(prefix, "MAX_RETRIES", cfg.MaxRetries); err != nil {
		return cfg, err
	}
	if cfg.EnableTelemetry, err = getBool(prefix, "ENABLE_TELEMETRY", cfg.EnableTelemetry); err != nil {
		return cfg, err
	}
	if cfg.AutoInit, err = getBool(prefix, "AUTO_INIT", cfg.AutoInit); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func parseFallbackMode(v string) (session.OfflineFallbackMode, error) {
	switch session.OfflineFallbackMode(v) {
	case session.FallbackDisabled, session.FallbackNetworkOnly, session.FallbackAlways:
		return session.OfflineFallbackMode(v), nil
	default:
		return "", fmt.Errorf("runtimeconfig: invalid OFFLINE_FALLBACK value %q", v)
	}
}

func getEnv(prefix, key, defaultValue string) string {
	if value := os.Getenv(prefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(prefix, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(prefix + key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("runtimeconfig: invalid %s%s value %q: %w", prefix, key, raw, err)
	}
	return d, nil
}

func getInt(prefix, key string, defaultValue int) (int, error) {
	raw, ok := os.LookupEnv(prefix + key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("runtimeconfig: invalid %s%s value %q: %w", prefix, key, raw, err)
	}
	return n, nil
}

func getBool(prefix, key string, defaultValue bool) (bool, error) {
	raw, ok := os.LookupEnv(prefix + key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("runtimeconfig: invalid %s%s value %q: %w", prefix, key, raw, err)
	}
	return b, nil
}
