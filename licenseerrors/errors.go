// Package licenseerrors defines the error taxonomy shared by every
// component of the license runtime: API transport failures, cache-level
// license errors, configuration mistakes, and offline-token crypto
// failures. Each kind is a distinct type so callers can type-switch or use
// errors.As, while still satisfying the plain error interface for logging.
package licenseerrors

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when an in-flight async operation is cancelled
// via its context before completing. It never mutates cache state.
var ErrCancelled = errors.New("license runtime: operation cancelled")

// APIError represents a failure talking to the license service. Status
// follows the same three-way split the adapter uses to decide retries:
// 0 means the request never reached the server (network failure), 4xx is
// a client error, 5xx is a server error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("license api: status %d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("license api: status %d: %s", e.StatusCode, e.Message)
}

// IsNetwork reports whether the request never reached the server.
func (e *APIError) IsNetwork() bool { return e.StatusCode == 0 }

// IsClient reports whether the server rejected the request (4xx).
func (e *APIError) IsClient() bool { return e.StatusCode >= 400 && e.StatusCode < 500 }

// IsServer reports whether the server failed to process the request (5xx).
func (e *APIError) IsServer() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// IsRetryable reports whether the adapter's retry policy should retry this
// error: network failures, and the specific transient statuses in spec
// §4.3 (408, 429, 502, 503, 504).
func (e *APIError) IsRetryable() bool {
	if e.IsNetwork() {
		return true
	}
	switch e.StatusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func NewNetworkError(message string) *APIError {
	return &APIError{StatusCode: 0, Message: message}
}

// LicenseErrorKind enumerates the cache/session-level license failures.
type LicenseErrorKind string

const (
	LicenseErrNoLicense      LicenseErrorKind = "no_license"
	LicenseErrInvalidLicense LicenseErrorKind = "invalid_license"
	LicenseErrExpired        LicenseErrorKind = "expired"
	LicenseErrRevoked        LicenseErrorKind = "revoked"
)

// LicenseError reports a problem with the cached license itself, distinct
// from a failure to reach the license service.
type LicenseError struct {
	Kind    LicenseErrorKind
	Message string
}

func (e *LicenseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("license: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("license: %s", e.Kind)
}

func NewLicenseError(kind LicenseErrorKind, message string) *LicenseError {
	return &LicenseError{Kind: kind, Message: message}
}

// Convenience sentinels for errors.Is comparisons against a kind alone.
var (
	ErrNoLicense      = &LicenseError{Kind: LicenseErrNoLicense}
	ErrInvalidLicense = &LicenseError{Kind: LicenseErrInvalidLicense}
	ErrLicenseExpired = &LicenseError{Kind: LicenseErrExpired}
	ErrLicenseRevoked = &LicenseError{Kind: LicenseErrRevoked}
)

// Is allows errors.Is(err, licenseerrors.ErrNoLicense) to match any
// LicenseError with the same Kind, regardless of Message.
func (e *LicenseError) Is(target error) bool {
	t, ok := target.(*LicenseError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// ConfigurationErrorKind enumerates configuration mistakes detected at
// construction time.
type ConfigurationErrorKind string

const (
	ConfigErrMissingAPIKey        ConfigurationErrorKind = "missing_api_key"
	ConfigErrInvalidConfiguration ConfigurationErrorKind = "invalid_configuration"
)

type ConfigurationError struct {
	Kind    ConfigurationErrorKind
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("license configuration: %s: %s", e.Kind, e.Message)
}

func NewConfigurationError(kind ConfigurationErrorKind, message string) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Message: message}
}

// CryptoErrorKind enumerates offline-token verification failures, used as
// the ReasonCode on a failed offline ValidationResult (spec §4.5).
type CryptoErrorKind string

const (
	CryptoErrInvalidKey         CryptoErrorKind = "invalid_key"
	CryptoErrInvalidSignature   CryptoErrorKind = "invalid_signature"
	CryptoErrSignatureInvalid   CryptoErrorKind = "signature_invalid"
	CryptoErrNoPublicKey        CryptoErrorKind = "no_public_key"
	CryptoErrClockTamper        CryptoErrorKind = "clock_tamper"
	CryptoErrVerificationError  CryptoErrorKind = "verification_error"
	CryptoErrNoOfflineToken     CryptoErrorKind = "no_offline_token"
	CryptoErrNoLicense          CryptoErrorKind = "no_license"
	CryptoErrLicenseMismatch    CryptoErrorKind = "license_mismatch"
	CryptoErrExpired            CryptoErrorKind = "expired"
	CryptoErrGracePeriodExpired CryptoErrorKind = "grace_period_expired"
	CryptoErrNotYetValid        CryptoErrorKind = "not_yet_valid"
)

type CryptoError struct {
	Kind    CryptoErrorKind
	Message string
}

func (e *CryptoError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("offline token: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("offline token: %s", e.Kind)
}

func NewCryptoError(kind CryptoErrorKind, message string) *CryptoError {
	return &CryptoError{Kind: kind, Message: message}
}
