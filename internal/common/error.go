// Package common defines shared sentinel errors and small utilities used
// across the planner's layers. Callers should use errors.Is to match the
// sentinel values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")

	// Session preconditions.
	ErrNotSignedIn     = errors.New("not signed in")
	ErrNoActiveSession = errors.New("no active planning session")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
