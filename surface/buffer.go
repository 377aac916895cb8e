package surface

import (
	"fmt"
	"sync/atomic"

	"github.com/opd-ai/vpe/limits"
)

// seqCounter hands out sequence numbers. It starts at zero so the first buffer gets 1;
// zero is reserved for "no buffer".
var seqCounter atomic.Uint32

// Buffer is a graphics buffer shared between surfaces and the engine.
//
// Geometry and format are fixed at allocation. Data is writable by whoever
// currently owns the buffer according to the queue protocol.
type Buffer struct {
	seq        uint32
	Width      int
	Height     int
	Stride     int // luma stride (I420) or pixel stride (RGBA8888)
	Format     PixelFormat
	ColorSpace ColorSpace
	Usage      uint64
	Data       []byte
}

// NewBuffer allocates a buffer for the given request config.
//
// The stride is the width rounded up to StrideAlignment (when set). The
// returned buffer carries a fresh, process-unique sequence number.
func NewBuffer(cfg BufferRequestConfig) (*Buffer, error) {
	stride := alignUp(cfg.Width, cfg.StrideAlignment)

	var size int
	switch cfg.Format {
	case PixelFormatI420:
		if err := limits.ValidateSubsampledDimensions(cfg.Width, cfg.Height); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		size = limits.I420Size(stride, cfg.Height)
	case PixelFormatRGBA8888:
		if err := limits.ValidateDimensions(cfg.Width, cfg.Height); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		size = limits.RGBASize(stride, cfg.Height)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, cfg.Format)
	}

	if err := limits.ValidateBufferSize(size); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return &Buffer{
		seq:        seqCounter.Add(1),
		Width:      cfg.Width,
		Height:     cfg.Height,
		Stride:     stride,
		Format:     cfg.Format,
		ColorSpace: cfg.ColorSpace,
		Usage:      cfg.Usage,
		Data:       make([]byte, size),
	}, nil
}

// SeqNum returns the process-unique sequence number of the buffer.
func (b *Buffer) SeqNum() uint32 {
	if b == nil {
		return 0
	}
	return b.seq
}

// Size returns the allocation size in bytes.
func (b *Buffer) Size() int {
	return len(b.Data)
}

// Matches reports whether the buffer can satisfy a request config.
// Usage and timeout do not affect the layout and are ignored.
func (b *Buffer) Matches(cfg BufferRequestConfig) bool {
	return b.Width == cfg.Width &&
		b.Height == cfg.Height &&
		b.Format == cfg.Format &&
		b.Stride == alignUp(cfg.Width, cfg.StrideAlignment)
}

// Planes returns the Y, U and V planes of an I420 buffer with their strides.
func (b *Buffer) Planes() (y, u, v []byte, yStride, uvStride int, err error) {
	if b.Format != PixelFormatI420 {
		return nil, nil, nil, 0, 0, fmt.Errorf("%w: planes requested for %s", ErrUnsupportedFormat, b.Format)
	}

	uvStride = (b.Stride + 1) / 2
	uvHeight := (b.Height + 1) / 2
	ySize := b.Stride * b.Height
	uvSize := uvStride * uvHeight

	y = b.Data[:ySize]
	u = b.Data[ySize : ySize+uvSize]
	v = b.Data[ySize+uvSize : ySize+2*uvSize]
	return y, u, v, b.Stride, uvStride, nil
}

// String implements fmt.Stringer for log fields.
func (b *Buffer) String() string {
	if b == nil {
		return "Buffer(nil)"
	}
	return fmt.Sprintf("Buffer(seq=%d %dx%d %s)", b.seq, b.Width, b.Height, b.Format)
}

// BufferInfo couples a buffer with its stream flag and timestamp.
type BufferInfo struct {
	Buffer *Buffer
	Flag   BufferFlag
	// Timestamp is the presentation time in microseconds
	Timestamp int64
}

// SeqNum returns the sequence number of the wrapped buffer, or 0 for none.
func (i BufferInfo) SeqNum() uint32 {
	return i.Buffer.SeqNum()
}

// IsClearedSentinel reports whether the info is the "queue was cleared" marker.
func (i BufferInfo) IsClearedSentinel() bool {
	return i.Buffer == nil && i.Flag != BufferFlagEOS
}

// IsEOS reports whether the info carries the end-of-stream flag.
func (i BufferInfo) IsEOS() bool {
	return i.Flag == BufferFlagEOS
}

func alignUp(value, alignment int) int {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}
