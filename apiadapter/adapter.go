// Package apiadapter implements the HTTP transport the Session Core talks
// to: URL construction, auth headers, JSON encode/decode, retry with
// exponential backoff, error classification, and network-status inference
// (spec §4.3). It is grounded on the teacher's pkg/license.LicenseClient
// (one http.Client, JSON bodies, per-call context timeout) but generalizes
// its fixed one-shot calls into a single retrying Do that every endpoint
// method shares, and replaces its ad hoc error strings with the typed
// licenseerrors.APIError taxonomy.
package apiadapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/savegress/license-runtime/licenseerrors"
	"github.com/savegress/license-runtime/licensemodel"
)

// Config configures an Adapter.
type Config struct {
	BaseURL          string
	APIKey           string
	ProductSlug      string
	MaxRetries       int
	RetryDelay       time.Duration
	RequestTimeout   time.Duration
	HTTPClient       *http.Client
	Logger           zerolog.Logger
	// OnNetworkStatusChange is invoked whenever online/offline inference
	// flips, per spec §4.3. May be nil.
	OnNetworkStatusChange func(online bool)
}

// Adapter is the HTTP transport to the license service.
type Adapter struct {
	baseURL     string
	apiKey      string
	productSlug string
	maxRetries  int
	retryDelay  time.Duration
	httpClient  *http.Client
	logger      zerolog.Logger
	onNetwork   func(online bool)
	lastOnline  *bool
}

// New constructs an Adapter from cfg, applying defaults the way the
// teacher's NewLicenseClient applies a default client timeout.
func New(cfg Config) *Adapter {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Adapter{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		productSlug: cfg.ProductSlug,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		httpClient:  httpClient,
		logger:      cfg.Logger,
		onNetwork:   cfg.OnNetworkStatusChange,
	}
}

// licensePath builds the /products/{slug}/licenses/{key}/{action} path.
func (a *Adapter) licensePath(licenseKey, action string) string {
	return fmt.Sprintf("/products/%s/licenses/%s/%s", a.productSlug, licenseKey, action)
}

// ActivateResponse mirrors the activate endpoint's response shape.
type ActivateResponse struct {
	Object  string               `json:"object"`
	License licensemodel.License `json:"license"`
}

// Activate calls POST .../activate. Each call carries a fresh idempotency
// key so a retried attempt within the same call never double-activates a
// seat on the server side.
func (a *Adapter) Activate(ctx context.Context, licenseKey, deviceID, deviceName string, metadata map[string]any) (*ActivateResponse, error) {
	body := map[string]any{"device_id": deviceID}
	if deviceName != "" {
		body["device_name"] = deviceName
	}
	if metadata != nil {
		body["metadata"] = metadata
	}

	var out ActivateResponse
	if err := a.doIdempotent(ctx, http.MethodPost, a.licensePath(licenseKey, "activate"), uuid.NewString(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateResponse mirrors the validate endpoint's response shape.
type ValidateResponse struct {
	Object   string                `json:"object"`
	Valid    bool                  `json:"valid"`
	Code     string                `json:"code,omitempty"`
	Message  string                `json:"message,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
	License  *licensemodel.License `json:"license,omitempty"`
}

// Validate calls POST .../validate.
func (a *Adapter) Validate(ctx context.Context, licenseKey, deviceID string, telemetry map[string]any) (*ValidateResponse, error) {
	body := map[string]any{"device_id": deviceID}
	if telemetry != nil {
		body["telemetry"] = telemetry
	}

	var out ValidateResponse
	if err := a.do(ctx, http.MethodPost, a.licensePath(licenseKey, "validate"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeactivateResponse mirrors the deactivate endpoint's response shape.
type DeactivateResponse struct {
	Object        string `json:"object"`
	ActivationID  string `json:"activation_id,omitempty"`
	DeactivatedAt string `json:"deactivated_at"`
}

// Deactivate calls POST .../deactivate.
func (a *Adapter) Deactivate(ctx context.Context, licenseKey, deviceID string) (*DeactivateResponse, error) {
	body := map[string]any{"device_id": deviceID}

	var out DeactivateResponse
	err := a.do(ctx, http.MethodPost, a.licensePath(licenseKey, "deactivate"), body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// HeartbeatResponse mirrors the heartbeat endpoint's response shape.
type HeartbeatResponse struct {
	Object     string `json:"object"`
	ReceivedAt string `json:"received_at"`
}

// Heartbeat calls POST .../heartbeat.
func (a *Adapter) Heartbeat(ctx context.Context, licenseKey, deviceID string, telemetry map[string]any) (*HeartbeatResponse, error) {
	body := map[string]any{"device_id": deviceID}
	if telemetry != nil {
		body["telemetry"] = telemetry
	}

	var out HeartbeatResponse
	if err := a.do(ctx, http.MethodPost, a.licensePath(licenseKey, "heartbeat"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchOfflineToken calls POST .../offline_token.
func (a *Adapter) FetchOfflineToken(ctx context.Context, licenseKey, deviceID string) (*licensemodel.OfflineToken, error) {
	body := map[string]any{"device_id": deviceID}

	var out licensemodel.OfflineToken
	if err := a.do(ctx, http.MethodPost, a.licensePath(licenseKey, "offline_token"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SigningKeyResponse mirrors GET /signing_keys/{key_id}.
type SigningKeyResponse struct {
	Object    string `json:"object"`
	KeyID     string `json:"key_id"`
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
	Status    string `json:"status"`
}

// FetchSigningKey calls GET /signing_keys/{key_id}.
func (a *Adapter) FetchSigningKey(ctx context.Context, keyID string) (*SigningKeyResponse, error) {
	var out SigningKeyResponse
	if err := a.do(ctx, http.MethodGet, "/signing_keys/"+keyID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls GET /health and reports whether the service is reachable
// and returned a success status, for test_auth().
func (a *Adapter) Health(ctx context.Context) (bool, error) {
	err := a.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		var apiErr *licenseerrors.APIError
		if ok := asAPIError(err, &apiErr); ok && !apiErr.IsNetwork() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func asAPIError(err error, target **licenseerrors.APIError) bool {
	apiErr, ok := err.(*licenseerrors.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}
