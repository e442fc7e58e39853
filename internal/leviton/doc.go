// Package leviton is the transport layer for the Leviton cloud service:
// an authenticated REST client for topology and control calls, and a
// push-channel socket for live device notifications.
//
// Sessions are lazy. The first request logs in with the configured
// credentials; later requests reuse the token until it nears expiry or
// the service rejects it, in which case the client re-authenticates once
// and retries. Callers classify failures with errors.Is against ErrAuth
// (credentials rejected, never retried internally) and ErrConnection
// (transport trouble, retryable).
//
// The package deliberately knows nothing about sync policy. Bandwidth
// toggling cadence, reconnect backoff, and staleness detection live in
// internal/livesync; this package only provides the calls they are built
// from.
package leviton
