package wire

import "errors"

// Protocol errors for the wire package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, wire.ErrBufferOverflow) {
//	    // fatal framing error, close the connection
//	}
var (
	// ErrBufferOverflow indicates the accumulated frame buffer exceeded
	// the configured maximum. This is a fatal framing error; the
	// connection must be closed to stop unbounded growth.
	ErrBufferOverflow = errors.New("wire: frame buffer overflow")

	// ErrInvalidJSON indicates a frame could not be decoded as UTF-8 JSON.
	// Non-fatal; the session replies with a structured error.
	ErrInvalidJSON = errors.New("wire: invalid JSON frame")

	// ErrUnknownType indicates a frame carried an unrecognised type tag.
	ErrUnknownType = errors.New("wire: unknown message type")

	// ErrInvalidMessage indicates a frame of a known type is missing a
	// required field.
	ErrInvalidMessage = errors.New("wire: invalid message")
)
