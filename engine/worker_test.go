package engine

import (
	"testing"
	"time"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBypassRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.displayReleasesImmediately(h.outQ)

	require.NoError(t, h.eng.Enable())
	require.NoError(t, h.eng.Disable())

	src := h.feed(1)
	available := h.waitAvailable(1)
	assert.Equal(t, src.SeqNum(), available[0].Index, "bypass hands out the input buffer itself")
	assert.Equal(t, 0, h.algo.ProcessCount())
	assert.Equal(t, 1, h.eng.Stats().Attached)
	assert.True(t, h.outQ.Contains(src))

	// Rendering sends the input buffer to the display; its release brings it
	// back through the output surface to the decoder.
	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, true))
	require.Eventually(t, h.inputsHome, waitFor, tick)

	st := h.eng.Stats()
	assert.Equal(t, 0, st.Attached)
	assert.Equal(t, 0, st.AttachCached)
	assert.Equal(t, 0, st.FlushPending)
	assert.False(t, h.outQ.Contains(src))
	assert.Equal(t, 5, st.ProducerQueued)

	require.NoError(t, h.eng.Enable())
	h.feed(2)
	h.waitAvailable(2)
	assert.Equal(t, 1, h.algo.ProcessCount())
}

func TestBypassRecycleWithoutRender(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.eng.Disable())

	src := h.feed(1)
	available := h.waitAvailable(1)

	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, false))
	assert.True(t, h.inputsHome())
	assert.False(t, h.outQ.Contains(src))
	assert.Equal(t, 0, h.eng.Stats().Attached)
	assert.Equal(t, int32(0), h.out.flushes.Load())
}

func TestEffectChangeReportedOncePerFrame(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.displayReleasesImmediately(h.outQ)
	h.cb.SetAvailableHook(func(index uint32, _ surface.BufferFlag) {
		_ = h.eng.ReleaseOutputBuffer(index, true)
	})

	require.NoError(t, h.eng.Disable())
	require.NoError(t, h.eng.Disable())
	h.feed(1)
	h.waitAvailable(1)
	require.Eventually(t, func() bool { return len(h.cb.Effects()) == 1 }, waitFor, tick)
	assert.Equal(t, []interfaces.EffectType{interfaces.EffectNone}, h.cb.Effects())

	h.feed(2)
	h.waitAvailable(2)
	assert.Len(t, h.cb.Effects(), 1, "no transition, no event")

	require.NoError(t, h.eng.Enable())
	h.feed(3)
	h.waitAvailable(3)
	require.Eventually(t, func() bool { return len(h.cb.Effects()) == 2 }, waitFor, tick)
	assert.Equal(t, interfaces.EffectDetailEnhancement, h.cb.Effects()[1])
}

func TestEffectChangeDebounced(t *testing.T) {
	h := newHarness(t)
	h.start()

	require.NoError(t, h.eng.Disable())
	require.NoError(t, h.eng.Enable())
	h.feed(1)
	h.waitAvailable(1)

	assert.Empty(t, h.cb.Effects(), "disable then enable without a frame in between is not a change")
}

func TestOutputFormatChanged(t *testing.T) {
	h := newHarness(t)
	h.algo.SetOutputFormat(surface.PixelFormatRGBA8888)

	// Re-enabling renegotiates with the algorithm
	require.NoError(t, h.eng.Disable())
	require.NoError(t, h.eng.Enable())
	assert.Equal(t, []surface.PixelFormat{surface.PixelFormatRGBA8888}, h.cb.Formats())
	h.start()

	require.NoError(t, h.eng.Disable())
	h.feed(1)
	h.waitAvailable(1)
	require.Eventually(t, func() bool { return len(h.cb.Formats()) == 2 }, waitFor, tick)
	assert.Equal(t, surface.PixelFormatI420, h.cb.Formats()[1], "bypass follows the input format")

	require.NoError(t, h.eng.Enable())
	assert.Equal(t, []surface.PixelFormat{
		surface.PixelFormatRGBA8888,
		surface.PixelFormatI420,
		surface.PixelFormatRGBA8888,
	}, h.cb.Formats())
}

func TestBypassBufferReturnsAfterFormatChange(t *testing.T) {
	h := newHarness(t)
	h.algo.SetOutputFormat(surface.PixelFormatRGBA8888)
	require.NoError(t, h.eng.Disable())
	require.NoError(t, h.eng.Enable())
	h.start()

	require.NoError(t, h.eng.Disable())
	src := h.feed(1)
	available := h.waitAvailable(1)
	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, true))

	display := h.outQ.Consumer()
	shown, err := display.AcquireBuffer()
	require.NoError(t, err)
	require.Same(t, src, shown.Buffer)

	// The request config goes back to RGBA while the display holds the frame
	require.NoError(t, h.eng.Enable())
	require.NoError(t, display.ReleaseBuffer(src))

	require.Eventually(t, h.inputsHome, waitFor, tick)
	st := h.eng.Stats()
	assert.Equal(t, 0, st.Attached)
	assert.Equal(t, 0, st.AttachCached)
	assert.Equal(t, 0, st.FlushPending)
	assert.False(t, h.outQ.Contains(src))
	assert.Equal(t, 5, st.ProducerQueued)
}

func TestRequestSkipsReturnedBypassBuffers(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.eng.Disable())

	h.feed(1)
	h.feed(2)
	available := h.waitAvailable(2)
	for _, rec := range available {
		require.NoError(t, h.eng.ReleaseOutputBuffer(rec.Index, true))
	}

	// The display returns both input buffers while the engine is not
	// listening, so they sit free in the output surface ahead of one of its
	// own buffers.
	outProducer := h.outQ.Producer()
	display := h.outQ.Consumer()
	require.NoError(t, outProducer.UnregisterReleaseListener())
	var shown []*surface.Buffer
	for range available {
		info, err := display.AcquireBuffer()
		require.NoError(t, err)
		shown = append(shown, info.Buffer)
	}
	for _, buf := range shown {
		require.NoError(t, display.ReleaseBuffer(buf))
	}
	require.NoError(t, outProducer.RegisterReleaseListener(h.eng.onProducerBufferReleased))

	h.eng.producerMu.Lock()
	h.eng.bufferMu.Lock()
	for _, buf := range shown {
		h.eng.queues.flush.remove(buf)
	}
	own, ok := h.eng.queues.producer.pop()
	h.eng.bufferMu.Unlock()
	require.True(t, ok)
	require.NoError(t, outProducer.CancelBuffer(own.Buffer))

	got := h.eng.requestBufferLocked()
	h.eng.producerMu.Unlock()

	assert.True(t, got, "an output buffer arrives after both bypass buffers")
	require.Eventually(t, h.inputsHome, waitFor, tick)
	st := h.eng.Stats()
	assert.Equal(t, 0, st.Attached)
	assert.Equal(t, 0, st.AttachCached)
	assert.Equal(t, 3, st.ProducerQueued)
}

func TestTransformFollowsInput(t *testing.T) {
	h := newHarness(t)
	h.start()

	require.NoError(t, h.input.SetTransform(surface.TransformRotate90))
	h.feed(1)
	h.waitAvailable(1)
	assert.Equal(t, surface.TransformRotate90, h.out.Transform())

	require.NoError(t, h.input.SetTransform(surface.TransformFlipH))
	h.feed(2)
	h.waitAvailable(2)
	assert.Equal(t, surface.TransformFlipH, h.out.Transform())
}

func TestScalingModeAppliedToOutput(t *testing.T) {
	h := newHarness(t, func(cfg *interfaces.VideoConfig) {
		cfg.ScalingMode = surface.ScalingModeScaleCrop
	})
	h.start()

	h.feed(1)
	available := h.waitAvailable(1)
	mode, ok := h.out.ScalingMode(available[0].Index)
	require.True(t, ok)
	assert.Equal(t, surface.ScalingModeScaleCrop, mode)
}

func TestProcessingStallsUntilOutputReturns(t *testing.T) {
	h := newHarness(t)
	h.start()

	for i := 0; i < 4; i++ {
		h.feed(int64(i))
	}
	h.waitAvailable(4)

	// One output buffer left; the next frame takes it, the one after waits
	h.feed(4)
	h.waitAvailable(5)
	h.feed(5)
	assert.Never(t, func() bool { return h.cb.AvailableCount() > 5 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 1, h.eng.Stats().ConsumerQueued)

	available := h.cb.Available()
	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, false))
	h.waitAvailable(6)
}

func TestQueueConservation(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.displayReleasesImmediately(h.outQ)

	render := true
	h.cb.SetAvailableHook(func(index uint32, _ surface.BufferFlag) {
		_ = h.eng.ReleaseOutputBuffer(index, render)
		render = !render
	})

	const frames = 24
	for i := 0; i < frames; i++ {
		switch i {
		case 6:
			require.NoError(t, h.eng.Disable())
		case 14:
			require.NoError(t, h.eng.Enable())
		case 18:
			require.NoError(t, h.eng.Disable())
		}
		h.feed(int64(i))

		st := h.eng.Stats()
		assert.LessOrEqual(t, uint64(st.Held()), st.Acquired+st.Requested)
		assert.GreaterOrEqual(t, st.Held(), 0)
	}

	h.waitAvailable(frames)
	require.Eventually(t, func() bool {
		st := h.eng.Stats()
		return h.inputsHome() && st.ConsumerQueued == 0 && st.RenderPending == 0 && st.AttachCached == 0
	}, waitFor, tick, "every input buffer returns to the decoder")

	st := h.eng.Stats()
	assert.Equal(t, uint64(frames), st.Processed+st.Bypassed)
	assert.LessOrEqual(t, st.ProducerQueued+st.FlushPending, h.eng.Config().OutputQueueSize)
}

func TestStopFinishesOnWorker(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.feed(1)
	h.waitAvailable(1)
	require.NoError(t, h.eng.Stop())

	require.Eventually(t, func() bool {
		return h.eng.State() == StateIdle
	}, waitFor, tick)
	states := h.cb.States()
	assert.Equal(t, interfaces.AlgoStateStopped, states[len(states)-1])

	// Frames arriving while idle wait for the next start
	h.feed(2)
	assert.Never(t, func() bool { return h.cb.AvailableCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, h.eng.Start())
	h.waitAvailable(2)
}
