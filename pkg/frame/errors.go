package frame

import "errors"

// LPv35 codec errors (Spec Section 7: FrameFormat / FrameAuth / FrameSize).
var (
	// ErrFrameFormat covers bad HEAD/TAIL constants, a LENGTH field that
	// doesn't match the buffer, or a buffer shorter than MinSize.
	ErrFrameFormat = errors.New("frame: malformed LPv35 frame")

	// ErrFrameAuth covers an AES-128-GCM authentication tag mismatch.
	ErrFrameAuth = errors.New("frame: authentication failed")

	// ErrFrameSize covers a LENGTH field exceeding MaxCiphertextLen.
	ErrFrameSize = errors.New("frame: frame exceeds maximum size")

	// ErrInvalidKey is returned when a key of the wrong length is supplied.
	ErrInvalidKey = errors.New("frame: key must be 16 bytes")
)
