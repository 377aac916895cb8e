package algorithm

import "errors"

// Frame errors
var (
	// ErrNilFrame indicates a nil buffer or frame argument
	ErrNilFrame = errors.New("frame cannot be nil")
	// ErrFormatMismatch indicates a buffer in a pixel format the feature cannot read or write
	ErrFormatMismatch = errors.New("unsupported pixel format")
	// ErrDimensionMismatch indicates frames whose geometry does not line up
	ErrDimensionMismatch = errors.New("frame dimensions do not match")
	// ErrShortBuffer indicates a plane smaller than its declared geometry
	ErrShortBuffer = errors.New("buffer too small for geometry")
)

// Feature errors
var (
	// ErrNotInitialized indicates Process was called outside OnInitialize/OnDeinitialize
	ErrNotInitialized = errors.New("feature not initialized")
	// ErrAlreadyInitialized indicates a second OnInitialize without OnDeinitialize
	ErrAlreadyInitialized = errors.New("feature already initialized")
	// ErrInvalidLevel indicates a detail level outside the known range
	ErrInvalidLevel = errors.New("invalid detail level")
	// ErrUnsupportedConversion indicates a color space or output format pair the converter cannot produce
	ErrUnsupportedConversion = errors.New("unsupported conversion")
)
