package interfaces

import (
	"fmt"

	"github.com/opd-ai/vpe/surface"
)

// AlgoState is the caller visible state reported through Callback.OnState.
type AlgoState int

const (
	AlgoStateUninitialized AlgoState = iota
	AlgoStateInitialized
	AlgoStateConfiguring
	AlgoStateConfigured
	AlgoStateStopped
	AlgoStateRunning
	AlgoStateEOS
	AlgoStateError
)

// String returns a readable state name.
func (s AlgoState) String() string {
	switch s {
	case AlgoStateUninitialized:
		return "UNINITIALIZED"
	case AlgoStateInitialized:
		return "INITIALIZED"
	case AlgoStateConfiguring:
		return "CONFIGURING"
	case AlgoStateConfigured:
		return "CONFIGURED"
	case AlgoStateStopped:
		return "STOPPED"
	case AlgoStateRunning:
		return "RUNNING"
	case AlgoStateEOS:
		return "EOS"
	case AlgoStateError:
		return "ERROR"
	default:
		return fmt.Sprintf("AlgoState(%d)", int(s))
	}
}

// ErrorCode is the numeric error taxonomy exposed to callers that need integer codes.
type ErrorCode int

const (
	ErrorCodeOK ErrorCode = iota
	ErrorCodeInvalidOperation
	ErrorCodeInvalidValue
	ErrorCodeInvalidParameter
	ErrorCodeUnknown
	ErrorCodeProcessFailed
	ErrorCodeInitialization
)

// String returns a readable code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeOK:
		return "OK"
	case ErrorCodeInvalidOperation:
		return "INVALID_OPERATION"
	case ErrorCodeInvalidValue:
		return "INVALID_VAL"
	case ErrorCodeInvalidParameter:
		return "INVALID_PARAM"
	case ErrorCodeUnknown:
		return "UNKNOWN"
	case ErrorCodeProcessFailed:
		return "PROCESS_FAILED"
	case ErrorCodeInitialization:
		return "INITIALIZATION"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Callback receives asynchronous engine events.
type Callback interface {
	// OnError reports a processing or surface failure that did not stop the engine
	OnError(err error)

	// OnState reports lifecycle transitions
	OnState(state AlgoState)

	// OnEffectChange reports the effect now applied to output frames
	OnEffectChange(effect EffectType)

	// OnOutputFormatChanged reports a new output buffer format
	OnOutputFormatChanged(format surface.PixelFormat)

	// OnOutputBufferAvailable hands an output buffer to the caller. The caller
	// must answer with ReleaseOutputBuffer or RenderOutputBufferAtTime.
	OnOutputBufferAvailable(index uint32, flag surface.BufferFlag)
}

// CallbackFuncs adapts optional functions to the Callback interface.
// Nil fields are ignored.
type CallbackFuncs struct {
	Error                 func(err error)
	State                 func(state AlgoState)
	EffectChange          func(effect EffectType)
	OutputFormatChanged   func(format surface.PixelFormat)
	OutputBufferAvailable func(index uint32, flag surface.BufferFlag)
}

var _ Callback = (*CallbackFuncs)(nil)

func (c *CallbackFuncs) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

func (c *CallbackFuncs) OnState(state AlgoState) {
	if c.State != nil {
		c.State(state)
	}
}

func (c *CallbackFuncs) OnEffectChange(effect EffectType) {
	if c.EffectChange != nil {
		c.EffectChange(effect)
	}
}

func (c *CallbackFuncs) OnOutputFormatChanged(format surface.PixelFormat) {
	if c.OutputFormatChanged != nil {
		c.OutputFormatChanged(format)
	}
}

func (c *CallbackFuncs) OnOutputBufferAvailable(index uint32, flag surface.BufferFlag) {
	if c.OutputBufferAvailable != nil {
		c.OutputBufferAvailable(index, flag)
	}
}
