package realtime

import "errors"

var (
	// ErrChannelNotFound is returned by send operations against a channel
	// key with no active descriptor. This indicates a programming error in
	// the calling layer, never a transient condition.
	ErrChannelNotFound = errors.New("realtime: channel not joined")

	// ErrNotConnected is returned when an operation requires a live
	// physical connection and there is none. Sends while disconnected fail
	// explicitly; they are never queued and never panic.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrUnreachable marks a transient transport failure. The supervisor
	// retries these through its reconnect loop.
	ErrUnreachable = errors.New("realtime: backend unreachable")

	// ErrUnauthorized marks a probe that reached the backend but had its
	// credential rejected. Never retried by the reconnect loop; the auth
	// collaborator must refresh or re-issue the credential.
	ErrUnauthorized = errors.New("realtime: credential rejected")

	// ErrAttemptsExceeded is surfaced after the reconnect loop gives up.
	// An explicit ForceReconnect is required to resume.
	ErrAttemptsExceeded = errors.New("realtime: reconnect attempts exceeded")
)
