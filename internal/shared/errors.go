package shared

import "errors"

// Lookup and login failures shared by the auth and users packages.
var (
	ErrNotFound           = errors.New("shared: record not found")
	ErrInvalidCredentials = errors.New("shared: invalid credentials")
	ErrAccountInactive    = errors.New("shared: account inactive")
)

// CSRF failures; both map to CSRF_INVALID at the HTTP edge.
var (
	ErrCSRFTokenMissing  = errors.New("shared: csrf token missing")
	ErrCSRFTokenMismatch = errors.New("shared: csrf token mismatch")
)
