package realtime

import "errors"

// Failure taxonomy for a connection attempt. Callers branch with
// [errors.Is]; every error returned by [Broker.Acquire] and
// [Session.Connect] wraps exactly one of these (or
// [transport.ErrHandshakeFailed] / [audio.ErrPermissionDenied] from the
// collaborating packages).
var (
	// ErrUnauthenticated means the credential broker rejected the caller's
	// own authentication. Retryable only after the caller re-authenticates.
	ErrUnauthenticated = errors.New("realtime: unauthenticated")

	// ErrBackend means the credential broker answered but could not mint a
	// credential. Retryable.
	ErrBackend = errors.New("realtime: credential backend error")

	// ErrNetwork means the credential broker was unreachable. Retryable.
	ErrNetwork = errors.New("realtime: network error")

	// ErrCredentialExpired means the credential's expiry passed before the
	// handshake completed. The attempt is dead; never retry with the same
	// credential.
	ErrCredentialExpired = errors.New("realtime: credential expired")

	// ErrTransport means the live transport failed after connect.
	// The caller must re-acquire a fresh credential and reconnect.
	ErrTransport = errors.New("realtime: transport error")

	// ErrSessionActive is returned by Connect when the session is already
	// connecting or connected.
	ErrSessionActive = errors.New("realtime: session already active")

	// ErrSessionClosed is returned by Connect after Close.
	ErrSessionClosed = errors.New("realtime: session closed")
)
