// Package limits provides centralized buffer size limits for the engine.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MinDimension is the smallest allowed buffer width or height in pixels.
	MinDimension = 16

	// MaxDimension is the largest allowed buffer width or height in pixels (8K UHD).
	MaxDimension = 8192

	// MaxBufferBytes is the absolute maximum for a single buffer allocation.
	// This prevents memory exhaustion from malformed request configs (256MB limit)
	MaxBufferBytes = 256 * 1024 * 1024

	// MaxQueueSize is the largest number of slots a buffer queue may hold.
	MaxQueueSize = 64

	// BytesPerPixelRGBA is the size of one packed RGBA8888 pixel.
	BytesPerPixelRGBA = 4
)

var (
	// ErrDimensionTooSmall indicates a width or height below MinDimension
	ErrDimensionTooSmall = errors.New("dimension too small")

	// ErrDimensionTooLarge indicates a width or height above MaxDimension
	ErrDimensionTooLarge = errors.New("dimension too large")

	// ErrOddDimension indicates an odd width or height for a subsampled format
	ErrOddDimension = errors.New("dimension must be even")

	// ErrBufferTooLarge indicates an allocation above MaxBufferBytes
	ErrBufferTooLarge = errors.New("buffer too large")

	// ErrInvalidQueueSize indicates a queue size outside [1, MaxQueueSize]
	ErrInvalidQueueSize = errors.New("invalid queue size")
)

// ValidateDimensions validates a width and height against MinDimension and MaxDimension.
// Returns an error with context including the actual and allowed sizes.
func ValidateDimensions(width, height int) error {
	if width < MinDimension || height < MinDimension {
		return fmt.Errorf("%w: %dx%d below minimum %d", ErrDimensionTooSmall, width, height, MinDimension)
	}
	if width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds limit %d", ErrDimensionTooLarge, width, height, MaxDimension)
	}
	return nil
}

// ValidateSubsampledDimensions validates dimensions for 4:2:0 formats.
// Both width and height must pass ValidateDimensions and be even.
func ValidateSubsampledDimensions(width, height int) error {
	if err := ValidateDimensions(width, height); err != nil {
		return err
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: %dx%d", ErrOddDimension, width, height)
	}
	return nil
}

// ValidateBufferSize validates an allocation size against MaxBufferBytes.
func ValidateBufferSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size %d", ErrBufferTooLarge, size)
	}
	if size > MaxBufferBytes {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrBufferTooLarge, size, MaxBufferBytes)
	}
	return nil
}

// ValidateQueueSize validates a buffer queue depth.
func ValidateQueueSize(size int) error {
	if size < 1 || size > MaxQueueSize {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidQueueSize, size, MaxQueueSize)
	}
	return nil
}

// I420Size returns the byte size of a tightly packed I420 image with the given
// luma stride. Chroma planes use half the stride and half the height.
func I420Size(stride, height int) int {
	chromaStride := (stride + 1) / 2
	chromaHeight := (height + 1) / 2
	return stride*height + 2*chromaStride*chromaHeight
}

// RGBASize returns the byte size of a packed RGBA8888 image with the given stride in pixels.
func RGBASize(stride, height int) int {
	return stride * height * BytesPerPixelRGBA
}
