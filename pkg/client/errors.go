package client

import "errors"

var (
	// ErrDaemonNotRunning is returned when the daemon socket is missing or
	// nobody listens on it.
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the socket is not accessible to the
	// calling user.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when the daemon answers 404, usually because it
	// is older than the client.
	ErrNotFound = errors.New("404 not found")
)
