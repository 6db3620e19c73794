package ratelimit

import (
	"errors"
	"strings"
)

// ErrRateLimited is the sentinel for rate limiting detected in rendered page
// content rather than in an error. Its message matches the marker set, so
// wrapping it makes an error retryable.
var ErrRateLimited = errors.New("rate limit detected")

// rateLimitMarkers are the fixed signals, in error text or rendered page
// text, that identify server-side rate limiting.
var rateLimitMarkers = []string{
	"rate limit",
	"rate-limit",
	"too many requests",
	"429",
	"try again later",
	"temporarily restricted",
	"unusual activity",
}

// IsRateLimited classifies a signal (an error message or a scan of rendered
// page text) as rate limiting. Matching is case-insensitive substring search
// against a fixed marker set.
func IsRateLimited(signal string) bool {
	if signal == "" {
		return false
	}
	lowered := strings.ToLower(signal)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
