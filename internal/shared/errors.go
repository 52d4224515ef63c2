package shared

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// SafeError marks errors whose message may be shown to end users.
type SafeError interface {
	error
	Safe() bool
}

// UserSafeMessage returns a message fit for flashes and form errors.
// Domain sentinels are surfaced, anything else collapses to a generic text.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe SafeError
	if errors.As(err, &safe) && safe.Safe() {
		return safe.Error()
	}
	msg := err.Error()
	for _, marker := range []string{"pgx", "pgconn", "SQLSTATE", "dial tcp", "redis"} {
		if strings.Contains(msg, marker) {
			return "Something went wrong, please try again"
		}
	}
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx+2 < len(msg) {
		msg = msg[idx+2:]
	}
	if msg == "" {
		return "Something went wrong, please try again"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
