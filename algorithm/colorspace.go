package algorithm

import (
	"fmt"
	"image"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/limits"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// matrix holds the luma coefficients of a YUV color space.
type matrix struct {
	kr, kb float64
}

var matrices = map[surface.ColorSpace]matrix{
	surface.ColorSpaceBT601:  {kr: 0.299, kb: 0.114},
	surface.ColorSpaceBT709:  {kr: 0.2126, kb: 0.0722},
	surface.ColorSpaceBT2020: {kr: 0.2627, kb: 0.0593},
}

// matrixFor returns the coefficients for cs. Untagged buffers are treated as BT.601.
func matrixFor(cs surface.ColorSpace) matrix {
	if m, ok := matrices[cs]; ok {
		return m
	}
	return matrices[surface.ColorSpaceBT601]
}

// toRGB decodes one limited-range sample into RGB in [0, 255].
func (m matrix) toRGB(y, u, v byte) (r, g, b float64) {
	yn := (float64(y) - 16) / 219
	pb := (float64(u) - 128) / 224
	pr := (float64(v) - 128) / 224

	rn := yn + 2*(1-m.kr)*pr
	bn := yn + 2*(1-m.kb)*pb
	gn := (yn - m.kr*rn - m.kb*bn) / (1 - m.kr - m.kb)
	return rn * 255, gn * 255, bn * 255
}

// fromRGB encodes RGB in [0, 255] into limited-range Y, U and V.
func (m matrix) fromRGB(r, g, b float64) (y, u, v float64) {
	rn, gn, bn := r/255, g/255, b/255
	yn := m.kr*rn + (1-m.kr-m.kb)*gn + m.kb*bn
	pb := (bn - yn) / (2 * (1 - m.kb))
	pr := (rn - yn) / (2 * (1 - m.kr))
	return 16 + 219*yn, 128 + 224*pb, 128 + 224*pr
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// ColorSpaceConverter re-encodes I420 frames into another YUV matrix, or
// converts them to RGBA8888.
type ColorSpaceConverter struct {
	Base
	target surface.ColorSpace
}

var _ interfaces.Algorithm = (*ColorSpaceConverter)(nil)

// NewColorSpaceConverter creates a converter. For I420 output, target names
// the destination matrix. For RGBA8888 output, target is ignored.
func NewColorSpaceConverter(target surface.ColorSpace, output surface.PixelFormat, workers int) (*ColorSpaceConverter, error) {
	c := &ColorSpaceConverter{target: target}
	c.init(interfaces.EffectColorSpaceConversion.String(), interfaces.EffectColorSpaceConversion, workers)

	switch output {
	case surface.PixelFormatI420:
		if _, ok := matrices[target]; !ok {
			return nil, fmt.Errorf("%w: I420 to %s", ErrUnsupportedConversion, target)
		}
		c.outputColorSpace = target
	case surface.PixelFormatRGBA8888:
		c.target = surface.ColorSpaceUnknown
	default:
		return nil, fmt.Errorf("%w: output %s", ErrUnsupportedConversion, output)
	}
	c.outputFormat = output
	return c, nil
}

// OutputFormat returns the pixel format requested while processing is enabled.
func (c *ColorSpaceConverter) OutputFormat() surface.PixelFormat {
	return c.outputFormat
}

// Target returns the destination color space, or ColorSpaceUnknown for RGBA output.
func (c *ColorSpaceConverter) Target() surface.ColorSpace {
	return c.target
}

// Process converts src into dst according to dst's pixel format.
func (c *ColorSpaceConverter) Process(src, dst *surface.Buffer) error {
	compute, scaler, err := c.tools()
	if err != nil {
		return err
	}
	in, err := inputFrame(src)
	if err != nil {
		return err
	}
	if dst == nil {
		return ErrNilFrame
	}
	fitted, err := c.fit(scaler, in, dst.Width, dst.Height)
	if err != nil {
		return err
	}

	switch dst.Format {
	case surface.PixelFormatI420:
		out, err := FrameFromBuffer(dst)
		if err != nil {
			return err
		}
		target := c.target
		if target == surface.ColorSpaceUnknown {
			target = surface.ColorSpaceBT601
		}
		convertI420(fitted, out, matrixFor(src.ColorSpace), matrixFor(target), compute)
		dst.ColorSpace = target
	case surface.PixelFormatRGBA8888:
		if err := I420ToRGBA(fitted, src.ColorSpace, dst.Data, dst.Stride*limits.BytesPerPixelRGBA, compute); err != nil {
			return err
		}
		dst.ColorSpace = surface.ColorSpaceUnknown
	default:
		return fmt.Errorf("%w: output %s", ErrFormatMismatch, dst.Format)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ColorSpaceConverter.Process",
		"dst_seq":  dst.SeqNum(),
		"from":     src.ColorSpace,
		"format":   dst.Format,
	}).Debug("Frame converted")
	return nil
}

// convertI420 re-encodes src into dst, which must have the same size.
func convertI420(src, dst *VideoFrame, from, to matrix, compute *ComputeContext) {
	blocks := func(start, end int) {
		for cy := start; cy < end; cy++ {
			for cx := 0; cx < src.Width/2; cx++ {
				u := src.U[cy*src.UStride+cx]
				v := src.V[cy*src.VStride+cx]

				var sumU, sumV float64
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						x, y := 2*cx+dx, 2*cy+dy
						r, g, b := from.toRGB(src.Y[y*src.YStride+x], u, v)
						ny, nu, nv := to.fromRGB(clampUnit(r), clampUnit(g), clampUnit(b))
						dst.Y[y*dst.YStride+x] = clampByte(ny)
						sumU += nu
						sumV += nv
					}
				}
				dst.U[cy*dst.UStride+cx] = clampByte(sumU / 4)
				dst.V[cy*dst.VStride+cx] = clampByte(sumV / 4)
			}
		}
	}

	if compute == nil {
		blocks(0, src.Height/2)
		return
	}
	compute.ParallelRows(src.Height/2, blocks)
}

// I420ToRGBA decodes frame into packed RGBA pixels. stride is the destination
// row pitch in bytes. Alpha is opaque.
func I420ToRGBA(frame *VideoFrame, cs surface.ColorSpace, dst []byte, stride int, compute *ComputeContext) error {
	if frame == nil {
		return ErrNilFrame
	}
	if stride < frame.Width*limits.BytesPerPixelRGBA || len(dst) < (frame.Height-1)*stride+frame.Width*limits.BytesPerPixelRGBA {
		return fmt.Errorf("%w: RGBA destination %d bytes, stride %d", ErrShortBuffer, len(dst), stride)
	}
	m := matrixFor(cs)

	rows := func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < frame.Width; x++ {
				r, g, b := m.toRGB(
					frame.Y[y*frame.YStride+x],
					frame.U[(y/2)*frame.UStride+x/2],
					frame.V[(y/2)*frame.VStride+x/2],
				)
				px := dst[y*stride+x*limits.BytesPerPixelRGBA:]
				px[0] = clampByte(r)
				px[1] = clampByte(g)
				px[2] = clampByte(b)
				px[3] = 0xff
			}
		}
	}

	if compute == nil {
		rows(0, frame.Height)
	} else {
		compute.ParallelRows(frame.Height, rows)
	}
	return nil
}

// RGBAToI420 encodes img into an I420 buffer of the same size using the
// buffer's color space (BT.601 when untagged). Alpha is ignored.
func RGBAToI420(img *image.RGBA, dst *surface.Buffer) error {
	if img == nil || dst == nil {
		return ErrNilFrame
	}
	bounds := img.Bounds()
	if bounds.Dx() != dst.Width || bounds.Dy() != dst.Height {
		return fmt.Errorf("%w: image %dx%d into buffer %dx%d", ErrDimensionMismatch, bounds.Dx(), bounds.Dy(), dst.Width, dst.Height)
	}
	out, err := FrameFromBuffer(dst)
	if err != nil {
		return err
	}
	m := matrixFor(dst.ColorSpace)

	for cy := 0; cy < out.Height/2; cy++ {
		for cx := 0; cx < out.Width/2; cx++ {
			var sumU, sumV float64
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					x, y := 2*cx+dx, 2*cy+dy
					px := img.Pix[img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y):]
					ny, nu, nv := m.fromRGB(float64(px[0]), float64(px[1]), float64(px[2]))
					out.Y[y*out.YStride+x] = clampByte(ny)
					sumU += nu
					sumV += nv
				}
			}
			out.U[cy*out.UStride+cx] = clampByte(sumU / 4)
			out.V[cy*out.VStride+cx] = clampByte(sumV / 4)
		}
	}
	return nil
}
