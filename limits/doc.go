// Package limits provides centralized buffer dimension constants and validation
// functions for the video post-processing engine. This package ensures consistent
// size enforcement between surfaces, the engine and the processing features.
//
// # Size Hierarchy
//
//   - MinDimension (16 pixels): The smallest width or height a buffer may be
//     requested with. I420 buffers additionally require even dimensions so the
//     chroma planes stay aligned.
//
//   - MaxDimension (8192 pixels): The largest width or height accepted by any
//     surface. This covers 8K UHD content.
//
//   - MaxBufferBytes (256MB): The absolute maximum for a single buffer
//     allocation. This prevents memory exhaustion from bogus request configs.
//
// # Validation Functions
//
//	err := limits.ValidateDimensions(width, height)
//	if err != nil {
//	    return fmt.Errorf("request rejected: %w", err)
//	}
//
// Errors wrap [ErrDimensionTooSmall], [ErrDimensionTooLarge], [ErrOddDimension]
// or [ErrBufferTooLarge] so callers can classify them with errors.Is.
package limits
