package interfaces

import "github.com/opd-ai/vpe/surface"

// Algorithm is the pixel processing hook driven by the engine.
type Algorithm interface {
	// Name identifies the feature in logs and metrics
	Name() string

	// EffectType is reported through OnEffectChange while processing is enabled
	EffectType() EffectType

	// OnInitialize acquires feature resources such as a compute context
	OnInitialize() error

	// OnDeinitialize releases everything acquired in OnInitialize
	OnDeinitialize() error

	// Process writes the enhanced version of src into dst.
	// Implementations must not retain either buffer after returning.
	Process(src, dst *surface.Buffer) error

	// IsProducerSurfaceValid reports whether the feature can render into s
	IsProducerSurfaceValid(s surface.ProducerSurface) bool

	// UpdateRequestCfg adjusts the output buffer request for a new output surface
	UpdateRequestCfg(s surface.ProducerSurface, cfg *surface.BufferRequestConfig) error

	// UpdateRequestCfgFromBuffer adjusts the output buffer request to match an input frame
	UpdateRequestCfgFromBuffer(buf *surface.Buffer, cfg *surface.BufferRequestConfig) error
}

// EffectType identifies the enhancement currently applied to the stream.
type EffectType uint32

const (
	// EffectNone means frames pass through unmodified
	EffectNone EffectType = iota
	// EffectDetailEnhancement scales and sharpens
	EffectDetailEnhancement
	// EffectAIHDR expands luma dynamic range
	EffectAIHDR
	// EffectColorSpaceConversion converts between YUV matrices or to RGBA
	EffectColorSpaceConversion
)

// String returns a readable effect name.
func (e EffectType) String() string {
	switch e {
	case EffectNone:
		return "none"
	case EffectDetailEnhancement:
		return "detail-enhancement"
	case EffectAIHDR:
		return "aihdr"
	case EffectColorSpaceConversion:
		return "colorspace-conversion"
	default:
		return "unknown"
	}
}

// ParseEffectType maps a feature name back to its EffectType.
func ParseEffectType(name string) (EffectType, bool) {
	for _, e := range []EffectType{EffectNone, EffectDetailEnhancement, EffectAIHDR, EffectColorSpaceConversion} {
		if e.String() == name {
			return e, true
		}
	}
	return EffectNone, false
}
