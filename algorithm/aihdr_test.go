package algorithm

import (
	"testing"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowContrast paints a horizontal luma ramp between lo and hi.
func lowContrast(t *testing.T, lo, hi int) *surface.Buffer {
	t.Helper()
	buf := newI420(t, 32, 16, surface.ColorSpaceBT709)
	fill(t, buf, 0, 140, 120)
	frame, err := FrameFromBuffer(buf)
	require.NoError(t, err)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			frame.Y[y*frame.YStride+x] = byte(lo + (hi-lo)*x/(frame.Width-1))
		}
	}
	return buf
}

func TestMeasureLuma(t *testing.T) {
	buf := newI420(t, 32, 16, surface.ColorSpaceUnknown)
	fill(t, buf, 50, 128, 128)
	frame, err := FrameFromBuffer(buf)
	require.NoError(t, err)

	stats := MeasureLuma(frame, nil)
	assert.Equal(t, LumaStats{Low: 50, High: 50, Mean: 50}, stats)

	ramp, err := FrameFromBuffer(lowContrast(t, 100, 140))
	require.NoError(t, err)
	compute := NewComputeContext(4)
	defer compute.Close()
	stats = MeasureLuma(ramp, compute)
	assert.Equal(t, 100, stats.Low)
	assert.Equal(t, 140, stats.High)
	assert.InDelta(t, 120, stats.Mean, 1)
}

func TestAIHDRExpandsRange(t *testing.T) {
	h := NewAIHDREnhancer(2)
	assert.Equal(t, interfaces.EffectAIHDR, h.EffectType())
	initialized(t, h)

	src := lowContrast(t, 100, 140)
	dst := newI420(t, 32, 16, surface.ColorSpaceUnknown)
	require.NoError(t, h.Process(src, dst))

	assert.Equal(t, byte(lumaBlack), lumaAt(t, dst, 0, 4))
	assert.Equal(t, byte(lumaWhite), lumaAt(t, dst, 31, 4))
	assert.Equal(t, 100, h.LastStats().Low)
	assert.Equal(t, surface.ColorSpaceBT709, dst.ColorSpace)

	out, err := FrameFromBuffer(dst)
	require.NoError(t, err)
	assert.Greater(t, out.U[0], byte(140), "chroma is boosted away from neutral")
	assert.Less(t, out.V[0], byte(120))
}

func TestAIHDRFlatFrame(t *testing.T) {
	h := NewAIHDREnhancer(1)
	initialized(t, h)

	src := newI420(t, 32, 16, surface.ColorSpaceUnknown)
	fill(t, src, 77, 128, 128)
	dst := newI420(t, 64, 32, surface.ColorSpaceUnknown)
	require.NoError(t, h.Process(src, dst))

	assert.Equal(t, byte(77), lumaAt(t, dst, 10, 10), "a flat frame keeps its level")
}

func TestToneGamma(t *testing.T) {
	assert.Less(t, toneGamma(40), 1.0)
	assert.Equal(t, 1.0, toneGamma(128))
	assert.Greater(t, toneGamma(220), 1.0)
}
