// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// GeocodingError represents a provider failure.
type GeocodingError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown unknown error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit rate limit reached.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded quota exceeded or access denied.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout connection timeout.
	ErrorTypeTimeout
	// ErrorTypeNotFound location not found.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest invalid request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError network error.
	ErrorTypeNetworkError
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeQuotaExceeded:
		return "quota_exceeded"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeNetworkError:
		return "network"
	default:
		return "unknown"
	}
}

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// IsRateLimitError reports whether err is caused by a rate limit.
func IsRateLimitError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether err is caused by an exhausted quota.
func IsQuotaExceededError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeQuotaExceeded
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsNotFoundError reports whether the provider knows no such place.
func IsNotFoundError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeNotFound
	}

	return false
}

// IsTransient reports whether retrying the same query later may succeed.
// Transient failures are never cached.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidResponse) {
		return false
	}

	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type != ErrorTypeNotFound && geoErr.Type != ErrorTypeInvalidRequest
	}

	return true
}

// ClassifyHTTPError maps an HTTP status into a geocoding error.
func ClassifyHTTPError(statusCode int, provider string) *GeocodingError {
	switch statusCode {
	case http.StatusTooManyRequests: // 429
		return &GeocodingError{
			Type:    ErrorTypeRateLimit,
			Message: provider + ": rate limit reached",
		}
	case http.StatusForbidden, http.StatusUnauthorized:
		return &GeocodingError{
			Type:    ErrorTypeQuotaExceeded,
			Message: provider + ": quota exceeded or access denied",
		}
	case http.StatusBadRequest: // 400
		return &GeocodingError{
			Type:    ErrorTypeInvalidRequest,
			Message: provider + ": invalid request",
		}
	case http.StatusNotFound: // 404
		return &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: provider + ": location not found",
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &GeocodingError{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("%s: service unavailable (status %d)", provider, statusCode),
		}
	default:
		return &GeocodingError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("%s: HTTP error %d", provider, statusCode),
		}
	}
}

// ClassifyTransportError wraps a failed round trip.
func ClassifyTransportError(err error, provider string) *GeocodingError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &GeocodingError{Type: ErrorTypeTimeout, Message: provider + ": request timed out", Err: err}
	}

	return &GeocodingError{Type: ErrorTypeNetworkError, Message: provider + ": request failed", Err: err}
}
