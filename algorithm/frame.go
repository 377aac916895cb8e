package algorithm

import (
	"fmt"

	"github.com/opd-ai/vpe/limits"
	"github.com/opd-ai/vpe/surface"
)

// VideoFrame is a planar YUV 4:2:0 image.
//
// Frames built by FrameFromBuffer alias the buffer memory; writes go straight
// into the buffer.
type VideoFrame struct {
	Width   int
	Height  int
	Y       []byte // Luminance plane
	U       []byte // Chrominance U plane
	V       []byte // Chrominance V plane
	YStride int
	UStride int
	VStride int
}

// NewVideoFrame allocates a tightly packed frame.
func NewVideoFrame(width, height int) (*VideoFrame, error) {
	if err := limits.ValidateSubsampledDimensions(width, height); err != nil {
		return nil, err
	}
	uvWidth := width / 2
	uvHeight := height / 2
	return &VideoFrame{
		Width:   width,
		Height:  height,
		Y:       make([]byte, width*height),
		U:       make([]byte, uvWidth*uvHeight),
		V:       make([]byte, uvWidth*uvHeight),
		YStride: width,
		UStride: uvWidth,
		VStride: uvWidth,
	}, nil
}

// FrameFromBuffer returns a view over the planes of an I420 buffer.
func FrameFromBuffer(buf *surface.Buffer) (*VideoFrame, error) {
	if buf == nil {
		return nil, ErrNilFrame
	}
	y, u, v, yStride, uvStride, err := buf.Planes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatMismatch, err)
	}
	return &VideoFrame{
		Width:   buf.Width,
		Height:  buf.Height,
		Y:       y,
		U:       u,
		V:       v,
		YStride: yStride,
		UStride: uvStride,
		VStride: uvStride,
	}, nil
}

// SameSize reports whether two frames share their geometry.
func (f *VideoFrame) SameSize(other *VideoFrame) bool {
	return f.Width == other.Width && f.Height == other.Height
}

// CopyTo copies every plane row by row into dst, which must have the same size.
func (f *VideoFrame) CopyTo(dst *VideoFrame) error {
	if dst == nil {
		return ErrNilFrame
	}
	if !f.SameSize(dst) {
		return fmt.Errorf("%w: %dx%d into %dx%d", ErrDimensionMismatch, f.Width, f.Height, dst.Width, dst.Height)
	}
	copyPlane(dst.Y, dst.YStride, f.Y, f.YStride, f.Width, f.Height)
	copyPlane(dst.U, dst.UStride, f.U, f.UStride, f.Width/2, f.Height/2)
	copyPlane(dst.V, dst.VStride, f.V, f.VStride, f.Width/2, f.Height/2)
	return nil
}

// Clone returns a tightly packed deep copy.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Width:   f.Width,
		Height:  f.Height,
		Y:       make([]byte, f.Width*f.Height),
		U:       make([]byte, (f.Width/2)*(f.Height/2)),
		V:       make([]byte, (f.Width/2)*(f.Height/2)),
		YStride: f.Width,
		UStride: f.Width / 2,
		VStride: f.Width / 2,
	}
	_ = f.CopyTo(clone)
	return clone
}

func (f *VideoFrame) validate() error {
	uvHeight := f.Height / 2
	if len(f.Y) < (f.Height-1)*f.YStride+f.Width {
		return fmt.Errorf("%w: Y plane %d bytes", ErrShortBuffer, len(f.Y))
	}
	if len(f.U) < (uvHeight-1)*f.UStride+f.Width/2 || len(f.V) < (uvHeight-1)*f.VStride+f.Width/2 {
		return fmt.Errorf("%w: chroma planes %d/%d bytes", ErrShortBuffer, len(f.U), len(f.V))
	}
	return nil
}

func copyPlane(dst []byte, dstStride int, src []byte, srcStride, width, height int) {
	for y := 0; y < height; y++ {
		copy(dst[y*dstStride:y*dstStride+width], src[y*srcStride:y*srcStride+width])
	}
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
