package unifi

import (
	"fmt"
	"time"
)

// AuthError reports a login attempt the controller rejected outright.
type AuthError struct {
	Status     int
	StatusText string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("controller login failed: %s", e.StatusText)
}

// APIError reports a data endpoint that answered with a non-success status
// after authentication succeeded.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
}

// TimeoutError reports a network call that exceeded its configured bound.
// Kept distinct from other transport errors so callers can alert differently
// on a slow controller versus an unreachable one.
type TimeoutError struct {
	Target string
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.Target, e.Limit)
}
