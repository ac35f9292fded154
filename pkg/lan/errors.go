package lan

import "errors"

// Session and engine errors (Spec Section 7).
var (
	// ErrSessionFull is logged when accept is refused because client_limit
	// has been reached.
	ErrSessionFull = errors.New("lan: session limit reached")

	// ErrSessionClosed indicates an operation on an already-closed session.
	ErrSessionClosed = errors.New("lan: session closed")

	// ErrReKeyNotAllowed is returned when TYPE3 arrives on a session that
	// already has a session key (Spec Section 3.3: "at most one concurrent
	// session key per session").
	ErrReKeyNotAllowed = errors.New("lan: re-keying an already-keyed session is not allowed")

	// ErrHMACMismatch is returned when the TYPE5 HMAC fails verification.
	ErrHMACMismatch = errors.New("lan: hmac verification failed")

	// ErrSequenceReplay indicates an inbound SEQUENCE did not exceed seq_in.
	ErrSequenceReplay = errors.New("lan: sequence replay")

	// ErrSessionKeyMissing indicates a non-handshake opcode arrived before
	// the session key was established, beyond the configured slack.
	ErrSessionKeyMissing = errors.New("lan: session key missing")

	// ErrAlreadyStarted is returned when Start is called on a running engine.
	ErrAlreadyStarted = errors.New("lan: engine already started")

	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("lan: engine closed")
)
