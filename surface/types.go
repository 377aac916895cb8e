package surface

import (
	"fmt"
	"time"
)

// BufferFlag carries per-buffer stream signalling.
type BufferFlag uint32

const (
	// BufferFlagNone marks an ordinary frame
	BufferFlagNone BufferFlag = iota
	// BufferFlagEOS marks the end of the stream
	BufferFlagEOS
)

// String returns a readable flag name.
func (f BufferFlag) String() string {
	switch f {
	case BufferFlagNone:
		return "NONE"
	case BufferFlagEOS:
		return "EOS"
	default:
		return fmt.Sprintf("BufferFlag(%d)", uint32(f))
	}
}

// PixelFormat identifies the memory layout of a buffer.
type PixelFormat uint32

const (
	// PixelFormatUnknown means the format has not been negotiated
	PixelFormatUnknown PixelFormat = iota
	// PixelFormatI420 is planar YUV 4:2:0 (Y plane, then U, then V)
	PixelFormatI420
	// PixelFormatRGBA8888 is packed 8-bit RGBA
	PixelFormatRGBA8888
)

// String returns a readable format name.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatUnknown:
		return "UNKNOWN"
	case PixelFormatI420:
		return "I420"
	case PixelFormatRGBA8888:
		return "RGBA8888"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint32(f))
	}
}

// ColorSpace identifies the YUV matrix coefficients of a buffer.
type ColorSpace uint32

const (
	// ColorSpaceUnknown means no color space metadata is attached
	ColorSpaceUnknown ColorSpace = iota
	// ColorSpaceBT601 is SD video (limited range)
	ColorSpaceBT601
	// ColorSpaceBT709 is HD video (limited range)
	ColorSpaceBT709
	// ColorSpaceBT2020 is UHD/HDR video (limited range)
	ColorSpaceBT2020
)

// String returns a readable color space name.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceUnknown:
		return "UNKNOWN"
	case ColorSpaceBT601:
		return "BT601"
	case ColorSpaceBT709:
		return "BT709"
	case ColorSpaceBT2020:
		return "BT2020"
	default:
		return fmt.Sprintf("ColorSpace(%d)", uint32(c))
	}
}

// Transform is the display rotation/flip applied to a surface.
type Transform uint32

const (
	TransformNone Transform = iota
	TransformRotate90
	TransformRotate180
	TransformRotate270
	TransformFlipH
	TransformFlipV
)

// ScalingMode controls how a buffer is fitted to the display window.
type ScalingMode uint32

const (
	ScalingModeFreeze ScalingMode = iota
	ScalingModeScaleToWindow
	ScalingModeScaleCrop
	ScalingModeNoScaleCrop
)

// Usage bits describe how a buffer will be accessed.
const (
	UsageCPURead     uint64 = 1 << 0
	UsageCPUWrite    uint64 = 1 << 1
	UsageHWRender    uint64 = 1 << 8
	UsageHWTexture   uint64 = 1 << 9
	UsageVideoDecode uint64 = 1 << 16
)

// BufferRequestConfig describes the buffers a producer requests.
// The struct is comparable; engines compare configs with ==.
type BufferRequestConfig struct {
	Width           int
	Height          int
	StrideAlignment int
	Format          PixelFormat
	ColorSpace      ColorSpace
	Usage           uint64
	Timeout         time.Duration
}

// Rect is a damage region in pixels.
type Rect struct {
	X, Y, W, H int
}

// FlushConfig carries per-flush metadata.
type FlushConfig struct {
	// Timestamp is the presentation time in microseconds
	Timestamp int64
	Damage    Rect
	Flag      BufferFlag
}
