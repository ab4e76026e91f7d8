package platform

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var (
	ErrPlatformNotConfigured   = errors.New("platform: not configured")
	ErrPlatformUnavailable     = errors.New("platform: temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("platform: request failed")
	ErrPlatformInvalidResponse = errors.New("platform: invalid response")
	ErrPlatformRateLimited     = errors.New("platform: rate limited")
	ErrRecordNotFound          = errors.New("platform: record not found")
)

// Code identifies one of the two systems of record.
type Code string

const (
	// CodeShopify is the e-commerce storefront.
	CodeShopify Code = "SHOPIFY"
	// CodeNetSuite is the ERP back office.
	CodeNetSuite Code = "NETSUITE"
)

// IsValid returns true if the platform code is valid
func (c Code) IsValid() bool {
	switch c {
	case CodeShopify, CodeNetSuite:
		return true
	default:
		return false
	}
}

// String returns the string representation of Code
func (c Code) String() string {
	return string(c)
}

// Counterpart returns the opposite platform.
func (c Code) Counterpart() Code {
	if c == CodeShopify {
		return CodeNetSuite
	}
	return CodeShopify
}

// APIError is an error returned by a platform REST call. It carries enough
// detail for the error taxonomy: transient, rate-limited, or permanent.
type APIError struct {
	Platform   Code
	StatusCode int
	Message    string
	// RetryAfter is the server-provided wait, zero when the server sent none.
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("platform %s: status %d: %s", e.Platform, e.StatusCode, e.Message)
}

// rate-limit language some platforms put in 200-level or 5xx bodies
var rateLimitPhrases = []string{"rate limit", "throttle", "quota"}

// IsRateLimited reports whether an error must be handled by the rate gate's
// backoff path rather than generic transient retry.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode == 420 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// IsTransient reports whether an error is worth a generic retry: timeouts,
// connection resets, and 5xx gateway-style failures. Rate-limit errors are
// deliberately excluded; they belong to the gate.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "econnreset")
}

// IsRetryable reports whether the batch runner may retry the operation.
// Both transient and rate-limited failures qualify; everything else is
// permanent and surfaced immediately.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsRateLimited(err)
}

// RetryAfter extracts the server-provided wait from an error, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}
