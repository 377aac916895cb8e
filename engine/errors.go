package engine

import (
	"errors"

	"github.com/opd-ai/vpe/interfaces"
)

// Usage errors.
var (
	// ErrInvalidOperation indicates the call is not allowed in the current state.
	ErrInvalidOperation = errors.New("invalid operation for current state")

	// ErrInvalidValue indicates a nil or unusable surface, callback or algorithm.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidParameter indicates an output buffer index that is not render-pending.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Runtime errors.
var (
	// ErrUnknown indicates an output surface flush, transform or scaling failure.
	ErrUnknown = errors.New("output surface operation failed")

	// ErrProcessFailed wraps algorithm failures reported through OnError.
	ErrProcessFailed = errors.New("algorithm process failed")

	// ErrInitialization indicates worker, surface or algorithm setup failed.
	ErrInitialization = errors.New("initialization failed")
)

// CodeOf maps an engine error to its numeric code. Nil maps to ErrorCodeOK and
// errors outside the engine taxonomy map to ErrorCodeUnknown.
func CodeOf(err error) interfaces.ErrorCode {
	switch {
	case err == nil:
		return interfaces.ErrorCodeOK
	case errors.Is(err, ErrInvalidOperation):
		return interfaces.ErrorCodeInvalidOperation
	case errors.Is(err, ErrInvalidValue):
		return interfaces.ErrorCodeInvalidValue
	case errors.Is(err, ErrInvalidParameter):
		return interfaces.ErrorCodeInvalidParameter
	case errors.Is(err, ErrProcessFailed):
		return interfaces.ErrorCodeProcessFailed
	case errors.Is(err, ErrInitialization):
		return interfaces.ErrorCodeInitialization
	default:
		return interfaces.ErrorCodeUnknown
	}
}
