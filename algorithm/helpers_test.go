package algorithm

import (
	"testing"

	"github.com/opd-ai/vpe/surface"
	"github.com/stretchr/testify/require"
)

func newI420(t *testing.T, width, height int, cs surface.ColorSpace) *surface.Buffer {
	t.Helper()
	buf, err := surface.NewBuffer(surface.BufferRequestConfig{
		Width:      width,
		Height:     height,
		Format:     surface.PixelFormatI420,
		ColorSpace: cs,
	})
	require.NoError(t, err)
	return buf
}

func newRGBA(t *testing.T, width, height int) *surface.Buffer {
	t.Helper()
	buf, err := surface.NewBuffer(surface.BufferRequestConfig{
		Width:  width,
		Height: height,
		Format: surface.PixelFormatRGBA8888,
	})
	require.NoError(t, err)
	return buf
}

// fill paints a buffer with one YUV value.
func fill(t *testing.T, buf *surface.Buffer, y, u, v byte) {
	t.Helper()
	frame, err := FrameFromBuffer(buf)
	require.NoError(t, err)
	for i := range frame.Y {
		frame.Y[i] = y
	}
	for i := range frame.U {
		frame.U[i] = u
		frame.V[i] = v
	}
}

// lumaAt reads one luma sample.
func lumaAt(t *testing.T, buf *surface.Buffer, x, y int) byte {
	t.Helper()
	frame, err := FrameFromBuffer(buf)
	require.NoError(t, err)
	return frame.Y[y*frame.YStride+x]
}

func initialized(t *testing.T, hooks interface {
	OnInitialize() error
	OnDeinitialize() error
}) {
	t.Helper()
	require.NoError(t, hooks.OnInitialize())
	t.Cleanup(func() { _ = hooks.OnDeinitialize() })
}
