package shared

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrStateMismatch   = fmt.Errorf("state mismatch")
	ErrAuthFailed      = fmt.Errorf("authentication failed")
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrRefreshFailed   = fmt.Errorf("token refresh failed")
	ErrLogoutFailed    = fmt.Errorf("logout failed")
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrTimeout         = fmt.Errorf("operation timed out")

	// API and service errors
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrUpstream           = fmt.Errorf("upstream request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Playback errors
	ErrDeviceUnavailable = fmt.Errorf("no playback device available")
	ErrMissingSeeds      = fmt.Errorf("please select at least 1 song to start playing")
	ErrSeedLimit         = fmt.Errorf("you can only select up to %d songs", MaxSeeds)
	ErrDuplicateSeed     = fmt.Errorf("this song has already been added")
	ErrNoRecommendation  = fmt.Errorf("no recommendation available")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// MaxSeeds is the upper bound on seed tracks accepted by the recommendations endpoint.
const MaxSeeds = 5

// RateLimitError is returned when the upstream service responds with 429.
//
// RetryAfter carries the delay the server asked for; zero when it sent none.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v: retry after %v", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// UpstreamError is a non-2xx response from the remote service.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", ErrUpstream, e.Status)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrUpstream, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// ParseRetryAfter reads a Retry-After header value, which is either delay seconds or an HTTP date.
//
// Returns 0 for empty or malformed values and for dates in the past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
