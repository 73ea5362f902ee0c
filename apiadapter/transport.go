package apiadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/savegress/license-runtime/licenseerrors"
)

// errorBody is the 4xx/5xx error envelope shape spec §6 describes:
// {"error":{"code","message"}} or top-level error/reason_code.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	TopLevelError string `json:"error_string,omitempty"`
	ReasonCode    string `json:"reason_code"`
	Message       string `json:"message"`
}

// do sends one logical request, retrying according to the adapter's retry
// policy: attempts = 1 + max_retries, retried iff the failure is retryable
// (network, 408, 429, 502, 503, 504), backoff = retry_delay * 2^attempt.
// A final success flips network status online; a final NetworkError flips
// it offline; any other outcome leaves network status untouched (spec §4.3).
func (a *Adapter) do(ctx context.Context, method, path string, reqBody any, out any) error {
	return a.doIdempotent(ctx, method, path, "", reqBody, out)
}

// doIdempotent is do with an optional Idempotency-Key header attached, so a
// retried attempt (or a client-side retry after a dropped response) is safe
// to replay against the license service.
func (a *Adapter) doIdempotent(ctx context.Context, method, path, idempotencyKey string, reqBody any, out any) error {
	var bodyBytes []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("apiadapter: marshal request: %w", err)
		}
		bodyBytes = b
	}

	attempts := 1 + a.maxRetries
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := a.retryDelay * time.Duration(1<<uint(attempt))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return licenseerrors.ErrCancelled
			case <-timer.C:
			}
		}

		err := a.attempt(ctx, method, path, idempotencyKey, bodyBytes, out)
		if err == nil {
			a.setOnline(true)
			return nil
		}

		lastErr = err

		if errors.Is(err, licenseerrors.ErrCancelled) {
			return err
		}

		var apiErr *licenseerrors.APIError
		if errors.As(err, &apiErr) {
			if !apiErr.IsRetryable() {
				return err
			}
			continue
		}

		// Non-APIError (e.g. malformed body / decode error): not retryable.
		return err
	}

	var apiErr *licenseerrors.APIError
	if errors.As(lastErr, &apiErr) && apiErr.IsNetwork() {
		a.setOnline(false)
	}
	return lastErr
}

func (a *Adapter) setOnline(online bool) {
	if a.lastOnline != nil && *a.lastOnline == online {
		return
	}
	v := online
	a.lastOnline = &v
	if a.onNetwork != nil {
		a.onNetwork(online)
	}
}

func (a *Adapter) attempt(ctx context.Context, method, path, idempotencyKey string, bodyBytes []byte, out any) error {
	url := a.baseURL + path

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("apiadapter: build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return licenseerrors.ErrCancelled
		}
		return licenseerrors.NewNetworkError(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return licenseerrors.NewNetworkError(fmt.Sprintf("read response body: %v", err))
	}

	if resp.StatusCode >= 400 {
		return classifyErrorResponse(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &licenseerrors.APIError{
			StatusCode: resp.StatusCode,
			Code:       "decoding_error",
			Message:    err.Error(),
			Body:       raw,
		}
	}
	return nil
}

// classifyErrorResponse maps a 4xx/5xx HTTP response to a typed APIError,
// per spec §4.3's error mapping table.
func classifyErrorResponse(status int, raw []byte) *licenseerrors.APIError {
	apiErr := &licenseerrors.APIError{StatusCode: status, Body: raw}

	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != nil:
			apiErr.Code = body.Error.Code
			apiErr.Message = body.Error.Message
		case body.ReasonCode != "":
			apiErr.Code = body.ReasonCode
			apiErr.Message = body.Message
		default:
			apiErr.Message = body.Message
		}
	} else {
		// A top-level "error" string does not fit the nested object shape
		// above; surface it as the message, with reason_code as the code.
		var flat struct {
			Error      string `json:"error"`
			ReasonCode string `json:"reason_code"`
		}
		if json.Unmarshal(raw, &flat) == nil {
			apiErr.Code = flat.ReasonCode
			apiErr.Message = flat.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	return apiErr
}
