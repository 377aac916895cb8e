package interfaces

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/vpe/limits"
	"github.com/opd-ai/vpe/surface"
)

// Detail levels understood by the detail enhancement feature.
const (
	DetailLevelNone = iota
	DetailLevelLow
	DetailLevelMedium
	DetailLevelHigh
)

const (
	// DefaultOutputQueueSize is the number of buffers requested from an output surface.
	DefaultOutputQueueSize = 5
	// DefaultInputQueueSize is the slot count of the input surface created by the engine.
	DefaultInputQueueSize = 4
	// DefaultTriggerTimeout bounds how long the worker sleeps without a trigger.
	DefaultTriggerTimeout = 200 * time.Second
)

// ErrInvalidConfig is wrapped by every VideoConfig validation failure.
var ErrInvalidConfig = errors.New("invalid video config")

// VideoConfig holds configuration for an engine instance and its feature.
type VideoConfig struct {
	// OutputQueueSize is the queue depth set on every output surface
	OutputQueueSize int

	// InputQueueSize is the slot count of the input surface
	InputQueueSize int

	// TriggerTimeout is the worker's idle wake-up interval
	TriggerTimeout time.Duration

	// StartEnabled selects processing (true) or bypass (false) at startup
	StartEnabled bool

	// ScalingMode is applied to every output buffer
	ScalingMode surface.ScalingMode

	// InputUsage is OR-ed into every input surface request
	InputUsage uint64

	// DetailLevel selects the sharpening strength of detail enhancement
	DetailLevel int

	// ComputeWorkers sizes the feature compute pool; zero means one per CPU
	ComputeWorkers int
}

// DefaultVideoConfig returns the configuration used when nothing is overridden.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		OutputQueueSize: DefaultOutputQueueSize,
		InputQueueSize:  DefaultInputQueueSize,
		TriggerTimeout:  DefaultTriggerTimeout,
		StartEnabled:    true,
		ScalingMode:     surface.ScalingModeScaleToWindow,
		InputUsage:      surface.UsageCPURead | surface.UsageCPUWrite | surface.UsageVideoDecode,
		DetailLevel:     DetailLevelMedium,
	}
}

// Validate checks every field against its allowed range.
func (c VideoConfig) Validate() error {
	if err := limits.ValidateQueueSize(c.OutputQueueSize); err != nil {
		return fmt.Errorf("%w: output queue: %v", ErrInvalidConfig, err)
	}
	if err := limits.ValidateQueueSize(c.InputQueueSize); err != nil {
		return fmt.Errorf("%w: input queue: %v", ErrInvalidConfig, err)
	}
	if c.TriggerTimeout <= 0 {
		return fmt.Errorf("%w: trigger timeout %v must be positive", ErrInvalidConfig, c.TriggerTimeout)
	}
	if c.ScalingMode > surface.ScalingModeNoScaleCrop {
		return fmt.Errorf("%w: scaling mode %d", ErrInvalidConfig, c.ScalingMode)
	}
	if c.DetailLevel < DetailLevelNone || c.DetailLevel > DetailLevelHigh {
		return fmt.Errorf("%w: detail level %d outside [%d, %d]", ErrInvalidConfig, c.DetailLevel, DetailLevelNone, DetailLevelHigh)
	}
	if c.ComputeWorkers < 0 {
		return fmt.Errorf("%w: compute workers %d", ErrInvalidConfig, c.ComputeWorkers)
	}
	return nil
}
