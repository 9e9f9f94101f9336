package techmate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when an operation requires a live session
	// and none exists, or when the server rejects the credentials even after
	// the one-shot refresh.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is returned by Login when the server rejects the
	// username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired is returned when the refresh token itself is rejected;
	// the session has already been torn down when callers see it.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken is returned when a 401 arrives and no refresh token is
	// held, so silent recovery is impossible.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrApprovalPending is returned when the server denies an instructor
	// action because the account's approval flag is not yet set.
	ErrApprovalPending = errors.New("instructor approval pending")
	// ErrForbidden is returned for authorization failures other than the
	// pending-approval case.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClientClosed is returned after Close has released the client.
	ErrClientClosed = errors.New("client closed")
	// ErrRequestRejected is returned when the circuit breaker is open and the
	// request was never dispatched.
	ErrRequestRejected = errors.New("request rejected by circuit breaker")
)

// APIError is a non-2xx server response. For validation failures the server
// replies with per-field message lists (Django REST style); those are kept in
// Fields so form UIs can show them inline.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "api error"
	}
	if len(e.Fields) == 0 {
		if e.Message != "" {
			return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "api error: status %d:", e.StatusCode)
	for _, name := range names {
		fmt.Fprintf(&b, " %s: %s;", name, strings.Join(e.Fields[name], ", "))
	}
	return strings.TrimSuffix(b.String(), ";")
}

// FieldErrors returns the messages for one form field, or nil.
func (e *APIError) FieldErrors(field string) []string {
	if e == nil {
		return nil
	}
	return e.Fields[field]
}

// Is maps status classes onto the package sentinels so callers can branch
// with errors.Is without inspecting status codes.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == 401
	case ErrForbidden:
		return e.StatusCode == 403
	case ErrNotFound:
		return e.StatusCode == 404
	default:
		return false
	}
}

// ValidationError is a client-side input rejection produced before any
// network call. Field names follow the JSON wire names.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid input"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}
