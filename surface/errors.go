package surface

import "errors"

// Sentinel errors for surface operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrNoBuffer indicates every slot of the queue is in use.
	ErrNoBuffer = errors.New("no free buffer in queue")

	// ErrNoBufferReady indicates there is nothing to acquire.
	ErrNoBufferReady = errors.New("no buffer ready for acquire")

	// ErrBufferNotFound indicates the buffer is not known to the queue.
	ErrBufferNotFound = errors.New("buffer not found in queue")

	// ErrInvalidBufferState indicates the buffer is in the wrong state for the operation.
	ErrInvalidBufferState = errors.New("invalid buffer state")

	// ErrNotConnected indicates the producer has not connected.
	ErrNotConnected = errors.New("surface not connected")

	// ErrInvalidArgument indicates a nil buffer or malformed config.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedFormat indicates a pixel format the surface cannot allocate.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
)
