package protocol

import "errors"

// Frame errors. All of them are fatal for the connection that produced them:
// once the byte stream is out of sync there is no way to find the next frame.
var (
	// ErrTruncated is returned when a declared length or count runs past the
	// end of the available bytes
	ErrTruncated = errors.New("frame: truncated")

	// ErrMalformed is returned for unknown markers and for headers violating
	// the kind/action invariant
	ErrMalformed = errors.New("frame: malformed")

	// ErrTooLarge is returned when a header or payload exceeds the configured
	// limits. It is raised as soon as the size is known, before buffering.
	ErrTooLarge = errors.New("frame: too large")
)
