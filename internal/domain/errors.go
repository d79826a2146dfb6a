package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCode is the closed set of failure kinds surfaced by adapters and the
// pipeline. Raw transport or provider errors are classified at the adapter
// boundary and never leak upward unclassified.
type ErrorCode string

const (
	ErrorCodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrorCodeQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"
	ErrorCodeContentFiltered      ErrorCode = "CONTENT_FILTERED"
	ErrorCodeModelNotFound        ErrorCode = "MODEL_NOT_FOUND"
	ErrorCodeNetworkError         ErrorCode = "NETWORK_ERROR"
	ErrorCodeTimeout              ErrorCode = "TIMEOUT"
	ErrorCodeValidationError      ErrorCode = "VALIDATION_ERROR"
	ErrorCodeFeatureNotSupported  ErrorCode = "FEATURE_NOT_SUPPORTED"
	ErrorCodeUnknown              ErrorCode = "UNKNOWN"
)

// Error is the typed error carried through the orchestration layer.
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Status    int            `json:"status,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Err       error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithProvider stamps the provider identity onto the error.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewError creates a typed error with the retry flag implied by its code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: retryableByCode(code),
	}
}

// NewValidationError creates a fail-fast validation error.
func NewValidationError(message string) *Error {
	return NewError(ErrorCodeValidationError, message)
}

// NewFeatureNotSupportedError reports a capability gap for a provider.
func NewFeatureNotSupportedError(provider string, capability Capability) *Error {
	e := NewError(ErrorCodeFeatureNotSupported,
		fmt.Sprintf("provider %s does not support %s", provider, capability))
	e.Provider = provider
	e.Details = map[string]any{"capability": string(capability)}
	return e
}

// retryableByCode encodes the taxonomy's retry policy.
func retryableByCode(code ErrorCode) bool {
	switch code {
	case ErrorCodeRateLimitExceeded, ErrorCodeNetworkError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// Classify maps an arbitrary failure into the taxonomy. Errors that are
// already typed pass through with the provider stamped on. Context and
// transport failures map to Timeout/NetworkError; anything else becomes
// Unknown, retryable only when the raw status is a 5xx class code.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		if typed.Provider == "" {
			typed.Provider = provider
		}
		return typed
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return classified(ErrorCodeTimeout, provider, err, 0)
	case errors.Is(err, context.Canceled):
		e := classified(ErrorCodeNetworkError, provider, err, 0)
		e.Retryable = false // caller abandoned the operation
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return classified(ErrorCodeTimeout, provider, err, 0)
		}
		return classified(ErrorCodeNetworkError, provider, err, 0)
	}

	return classified(ErrorCodeUnknown, provider, err, 0)
}

// ClassifyStatus maps an HTTP status code to the taxonomy using generic
// provider conventions. Adapters refine this with provider-specific error
// codes (e.g. disambiguating 429 into rate-limit vs quota).
func ClassifyStatus(provider string, status int, err error) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return classified(ErrorCodeAuthenticationFailed, provider, err, status)
	case status == http.StatusNotFound:
		return classified(ErrorCodeModelNotFound, provider, err, status)
	case status == http.StatusTooManyRequests:
		return classified(ErrorCodeRateLimitExceeded, provider, err, status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return classified(ErrorCodeTimeout, provider, err, status)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return classified(ErrorCodeValidationError, provider, err, status)
	case status >= 500:
		return classified(ErrorCodeNetworkError, provider, err, status)
	default:
		e := classified(ErrorCodeUnknown, provider, err, status)
		e.Retryable = status >= 500
		return e
	}
}

func classified(code ErrorCode, provider string, err error, status int) *Error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:      code,
		Message:   msg,
		Status:    status,
		Provider:  provider,
		Retryable: retryableByCode(code),
		Err:       err,
	}
}

// IsRetryable reports whether a classified error may be retried.
func IsRetryable(err error) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Retryable
	}
	return false
}

// CodeOf extracts the taxonomy code, or Unknown for untyped errors.
func CodeOf(err error) ErrorCode {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return ErrorCodeUnknown
}
