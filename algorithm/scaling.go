package algorithm

import (
	"fmt"
)

// Scaler resizes I420 frames with bilinear interpolation.
type Scaler struct {
	compute *ComputeContext
}

// NewScaler creates a scaler. A nil compute context scales on the caller's goroutine.
func NewScaler(compute *ComputeContext) *Scaler {
	return &Scaler{compute: compute}
}

// ScaleInto resizes src into dst. Frames of equal size are copied.
func (s *Scaler) ScaleInto(src, dst *VideoFrame) error {
	if src == nil || dst == nil {
		return ErrNilFrame
	}
	if src.SameSize(dst) {
		return src.CopyTo(dst)
	}
	if err := src.validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := dst.validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	s.scalePlane(src.Y, src.Width, src.Height, src.YStride, dst.Y, dst.Width, dst.Height, dst.YStride)
	s.scalePlane(src.U, src.Width/2, src.Height/2, src.UStride, dst.U, dst.Width/2, dst.Height/2, dst.UStride)
	s.scalePlane(src.V, src.Width/2, src.Height/2, src.VStride, dst.V, dst.Width/2, dst.Height/2, dst.VStride)
	return nil
}

func (s *Scaler) scalePlane(src []byte, srcWidth, srcHeight, srcStride int,
	dst []byte, dstWidth, dstHeight, dstStride int) {

	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	rows := func(start, end int) {
		for y := start; y < end; y++ {
			srcY := float64(y) * yRatio
			y1 := int(srcY)
			y2 := y1 + 1
			if y2 >= srcHeight {
				y2 = srcHeight - 1
			}
			fy := srcY - float64(y1)

			for x := 0; x < dstWidth; x++ {
				srcX := float64(x) * xRatio
				x1 := int(srcX)
				x2 := x1 + 1
				if x2 >= srcWidth {
					x2 = srcWidth - 1
				}
				fx := srcX - float64(x1)

				p11 := float64(src[y1*srcStride+x1])
				p12 := float64(src[y1*srcStride+x2])
				p21 := float64(src[y2*srcStride+x1])
				p22 := float64(src[y2*srcStride+x2])

				top := p11*(1-fx) + p12*fx
				bottom := p21*(1-fx) + p22*fx
				dst[y*dstStride+x] = clampByte(top*(1-fy) + bottom*fy)
			}
		}
	}

	if s.compute == nil {
		rows(0, dstHeight)
		return
	}
	s.compute.ParallelRows(dstHeight, rows)
}

// IsScalingRequired reports whether the two geometries differ.
func IsScalingRequired(srcWidth, srcHeight, dstWidth, dstHeight int) bool {
	return srcWidth != dstWidth || srcHeight != dstHeight
}
