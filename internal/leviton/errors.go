package leviton

import "errors"

// Error taxonomy for the Leviton cloud service.
// Use errors.Is() to classify failures in calling code:
//
//	if errors.Is(err, leviton.ErrAuth) {
//	    // fatal: surface a re-authentication requirement
//	}
var (
	// ErrAuth is returned when the service rejects the session or the
	// credentials. Never retried internally; callers must trigger re-auth.
	ErrAuth = errors.New("leviton: authentication failed")

	// ErrConnection is returned for transport-level failures (network,
	// timeouts, 5xx responses). Recoverable by the caller's retry policy.
	ErrConnection = errors.New("leviton: connection failed")

	// ErrSocketClosed is returned when writing to a disconnected socket.
	ErrSocketClosed = errors.New("leviton: socket closed")
)
