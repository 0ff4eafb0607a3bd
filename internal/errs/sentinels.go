// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across collaborator/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates there is no usable authenticated session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., duplicate chat id).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotConfigured indicates a collaborator is missing required settings (credentials, endpoints).
	ErrNotConfigured = errors.New("not configured")

	// ErrPermissionDenied indicates the user or device refused access (e.g., location).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotConnected indicates the realtime channel is not established.
	ErrNotConnected = errors.New("not connected")
)
