package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	vpetest "github.com/opd-ai/vpe/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidValue)

	cfg := interfaces.DefaultVideoConfig()
	cfg.OutputQueueSize = 0
	_, err = New(vpetest.NewSimulatedAlgorithm("sim"), WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestInitializeFailure(t *testing.T) {
	algo := vpetest.NewSimulatedAlgorithm("sim")
	algo.SetInitError(errors.New("no compute device"))

	eng, err := New(algo)
	require.NoError(t, err)

	err = eng.Initialize()
	require.ErrorIs(t, err, ErrInitialization)
	assert.Equal(t, interfaces.ErrorCodeInitialization, CodeOf(err))

	require.NoError(t, eng.Initialize())
	assert.ErrorIs(t, eng.Initialize(), ErrInvalidOperation)
	require.NoError(t, eng.Deinitialize())
}

func TestStartRequiresSetup(t *testing.T) {
	algo := vpetest.NewSimulatedAlgorithm("sim")
	eng, err := New(algo)
	require.NoError(t, err)

	assert.ErrorIs(t, eng.Start(), ErrInvalidOperation, "not initialized")

	require.NoError(t, eng.Initialize())
	t.Cleanup(func() { _ = eng.Deinitialize() })

	assert.ErrorIs(t, eng.Start(), ErrInvalidOperation, "no callback")
	require.NoError(t, eng.RegisterCallback(vpetest.NewRecordingCallback()))

	assert.ErrorIs(t, eng.Start(), ErrInvalidOperation, "no input surface")
	_, err = eng.GetInputSurface()
	require.NoError(t, err)

	assert.ErrorIs(t, eng.Start(), ErrInvalidOperation, "no output surface")
	_, out := newOutput("display")
	require.NoError(t, eng.SetOutputSurface(out))

	assert.NoError(t, eng.Start())
}

func TestStartStopStateGate(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.eng.Stop(), ErrInvalidOperation, "stop while idle")

	require.NoError(t, h.eng.Start())
	assert.ErrorIs(t, h.eng.Start(), ErrInvalidOperation, "start while running")
	assert.True(t, h.cb.HasState(interfaces.AlgoStateRunning))

	require.NoError(t, h.eng.Stop())
	require.Eventually(t, func() bool {
		return h.eng.State() == StateIdle && h.cb.HasState(interfaces.AlgoStateStopped)
	}, waitFor, tick)

	assert.ErrorIs(t, h.eng.Stop(), ErrInvalidOperation, "stop after stopped")
	assert.NoError(t, h.eng.Start(), "restart after stop")
}

func TestIdleOnlyOperations(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.eng.RegisterCallback(nil), ErrInvalidValue)

	h.start()
	assert.ErrorIs(t, h.eng.RegisterCallback(vpetest.NewRecordingCallback()), ErrInvalidOperation)
	_, err := h.eng.GetInputSurface()
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestGetInputSurfaceReturnsSameSurface(t *testing.T) {
	h := newHarness(t)
	again, err := h.eng.GetInputSurface()
	require.NoError(t, err)
	assert.Equal(t, h.input.UniqueID(), again.UniqueID())
}

func TestSetOutputSurfaceValidation(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.eng.SetOutputSurface(nil), ErrInvalidValue)

	q, _ := newOutput("wrong-role")
	assert.ErrorIs(t, h.eng.SetOutputSurface(consumerRole{Producer: q.Producer()}), ErrInvalidValue)

	h.algo.SetSurfaceValid(false)
	_, other := newOutput("rejected")
	assert.ErrorIs(t, h.eng.SetOutputSurface(other), ErrInvalidValue)
	h.algo.SetSurfaceValid(true)

	// Setting the current surface again changes nothing
	h.start()
	before := h.eng.Stats()
	require.NoError(t, h.eng.SetOutputSurface(h.out))
	assert.Equal(t, before.ProducerQueued, h.eng.Stats().ProducerQueued)
	assert.Equal(t, 5, h.outQ.Stats().Total)
}

func TestBasicPipeline(t *testing.T) {
	h := newHarness(t)
	h.start()

	src := h.feed(1000)
	available := h.waitAvailable(1)

	require.Len(t, available, 1)
	assert.Equal(t, surface.BufferFlagNone, available[0].Flag)

	calls := h.algo.ProcessCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, src.SeqNum(), calls[0].SrcSeq)
	assert.Equal(t, available[0].Index, calls[0].DstSeq)

	require.Eventually(t, h.inputsHome, waitFor, tick, "input buffer should be released after processing")

	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, true))
	assert.Equal(t, int32(1), h.out.flushes.Load())

	info, err := h.outQ.Consumer().AcquireBuffer()
	require.NoError(t, err)
	assert.Equal(t, available[0].Index, info.Buffer.SeqNum())
	assert.Equal(t, int64(1000), info.Timestamp)
	assert.Equal(t, byte(1000&0xff), info.Buffer.Data[0], "output carries the processed frame")

	st := h.eng.Stats()
	assert.Equal(t, 1, st.FlushPending)
	assert.Equal(t, 0, st.RenderPending)
	assert.Equal(t, uint64(1), st.Processed)

	// The display hands the buffer back and the engine requests it again
	require.NoError(t, h.outQ.Consumer().ReleaseBuffer(info.Buffer))
	require.Eventually(t, func() bool {
		st := h.eng.Stats()
		return st.FlushPending == 0 && st.ProducerQueued == 5
	}, waitFor, tick)
}

func TestReleaseOutputBufferNoDoubleDispatch(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.feed(1)
	available := h.waitAvailable(1)
	index := available[0].Index

	require.NoError(t, h.eng.ReleaseOutputBuffer(index, true))
	err := h.eng.ReleaseOutputBuffer(index, true)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, interfaces.ErrorCodeInvalidParameter, CodeOf(err))

	assert.ErrorIs(t, h.eng.ReleaseOutputBuffer(999999, false), ErrInvalidParameter)
	assert.ErrorIs(t, h.eng.RenderOutputBufferAtTime(999999, 5), ErrInvalidParameter)
	assert.Equal(t, int32(1), h.out.flushes.Load())
}

func TestRenderOutputBufferAtTime(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.feed(10)
	available := h.waitAvailable(1)

	require.NoError(t, h.eng.RenderOutputBufferAtTime(available[0].Index, 424242))
	info, err := h.outQ.Consumer().AcquireBuffer()
	require.NoError(t, err)
	assert.Equal(t, int64(424242), info.Timestamp)
}

func TestReleaseWithoutRenderRecycles(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.feed(1)
	available := h.waitAvailable(1)
	assert.Equal(t, 4, h.eng.Stats().ProducerQueued)

	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, false))
	assert.Equal(t, int32(0), h.out.flushes.Load())

	st := h.eng.Stats()
	assert.Equal(t, 5, st.ProducerQueued)
	assert.Equal(t, 0, st.RenderPending)
}

func TestAlgorithmFailure(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.algo.FailNext(1, nil)

	h.feed(1)
	require.Eventually(t, func() bool { return len(h.cb.Errors()) == 1 }, waitFor, tick)

	errs := h.cb.Errors()
	assert.ErrorIs(t, errs[0], ErrProcessFailed)
	assert.Equal(t, interfaces.ErrorCodeProcessFailed, CodeOf(errs[0]))
	assert.Equal(t, 0, h.cb.AvailableCount())
	require.Eventually(t, h.inputsHome, waitFor, tick, "failed input must still be released")

	st := h.eng.Stats()
	assert.Equal(t, 5, st.ProducerQueued, "destination returns to the producer queue")
	assert.Equal(t, uint64(1), st.Failed)

	// The worker keeps going and reuses the same destination buffer
	h.feed(2)
	available := h.waitAvailable(1)
	calls := h.algo.ProcessCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].DstSeq, calls[1].DstSeq)
	assert.Equal(t, calls[1].DstSeq, available[0].Index)
	assert.Len(t, h.cb.Errors(), 1)
}

func TestEOSDelivery(t *testing.T) {
	h := newHarness(t)
	h.start()

	require.NoError(t, h.eng.NotifyEos())
	available := h.waitAvailable(1)
	assert.Equal(t, surface.BufferFlagEOS, available[0].Flag)

	assert.Never(t, func() bool { return h.cb.AvailableCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 0, h.algo.ProcessCount())
	require.Eventually(t, func() bool { return h.cb.HasState(interfaces.AlgoStateEOS) }, waitFor, tick)

	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, true))
	info, err := h.outQ.Consumer().AcquireBuffer()
	require.NoError(t, err)
	assert.True(t, info.IsEOS())
}

func TestEOSFlaggedInputFrame(t *testing.T) {
	h := newHarness(t)
	h.start()

	buf, err := h.input.RequestBuffer(frameCfg)
	require.NoError(t, err)
	require.NoError(t, h.input.FlushBuffer(buf, surface.FlushConfig{Timestamp: 7, Flag: surface.BufferFlagEOS}))

	available := h.waitAvailable(1)
	assert.Equal(t, surface.BufferFlagEOS, available[0].Flag)
	assert.Equal(t, 0, h.algo.ProcessCount())
	require.Eventually(t, h.inputsHome, waitFor, tick, "EOS input buffer is released")
}

func TestNotifyEosRequiresInputSurface(t *testing.T) {
	eng, err := New(vpetest.NewSimulatedAlgorithm("sim"))
	require.NoError(t, err)
	require.NoError(t, eng.Initialize())
	t.Cleanup(func() { _ = eng.Deinitialize() })

	assert.ErrorIs(t, eng.NotifyEos(), ErrInvalidOperation)
}

func TestFlushEnabledReturnsWorkInFlight(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.feed(1)
	available := h.waitAvailable(1)

	require.NoError(t, h.eng.Flush())
	st := h.eng.Stats()
	assert.Equal(t, 0, st.RenderPending)
	assert.Equal(t, 0, st.ConsumerQueued)
	assert.Equal(t, 5, st.ProducerQueued)

	assert.ErrorIs(t, h.eng.ReleaseOutputBuffer(available[0].Index, true), ErrInvalidParameter)
	assert.True(t, h.inputsHome())
}

func TestFlushDisabledClearsEverything(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.eng.Disable())

	h.feed(1)
	h.waitAvailable(1)
	assert.Equal(t, 1, h.eng.Stats().Attached)

	require.NoError(t, h.eng.Flush())
	st := h.eng.Stats()
	assert.Equal(t, 0, st.RenderPending)
	assert.Equal(t, 0, st.Attached)
	assert.True(t, h.inputsHome(), "bypassed input buffer goes back to the decoder")

	require.Eventually(t, func() bool {
		return h.eng.Stats().ProducerQueued == 5
	}, waitFor, tick, "output buffers are primed again")
}

func TestFlushDisabledReturnsDisplayedBypassBuffer(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.eng.Disable())

	src := h.feed(1)
	available := h.waitAvailable(1)
	require.NoError(t, h.eng.ReleaseOutputBuffer(available[0].Index, true))

	display := h.outQ.Consumer()
	shown, err := display.AcquireBuffer()
	require.NoError(t, err)
	require.Same(t, src, shown.Buffer)

	// The decoder gets the frame back while it is still on screen
	require.NoError(t, h.eng.Flush())
	assert.True(t, h.inputsHome())
	assert.Equal(t, 1, h.outQ.Stats().Orphaned)

	st := h.eng.Stats()
	assert.Equal(t, 0, st.Attached)
	assert.Equal(t, 0, st.FlushPending)

	require.NoError(t, display.ReleaseBuffer(src))
	assert.Equal(t, 0, h.outQ.Stats().Orphaned)
	assert.True(t, h.inputsHome(), "the late display release does not touch the input surface")
	assert.Equal(t, 0, h.eng.Stats().AttachCached)
}

func TestDeinitializeIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.feed(1)
	h.waitAvailable(1)

	require.NoError(t, h.eng.Deinitialize())
	require.NoError(t, h.eng.Deinitialize())

	_, deinits := h.algo.Lifecycle()
	assert.Equal(t, 1, deinits)
	assert.True(t, h.inputsHome())
	assert.Equal(t, 0, h.eng.Stats().Held())

	assert.ErrorIs(t, h.eng.Start(), ErrInvalidOperation)
	assert.ErrorIs(t, h.eng.Flush(), ErrInvalidOperation)
	assert.ErrorIs(t, h.eng.ReleaseOutputBuffer(1, true), ErrInvalidParameter)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want interfaces.ErrorCode
	}{
		{nil, interfaces.ErrorCodeOK},
		{ErrInvalidOperation, interfaces.ErrorCodeInvalidOperation},
		{ErrInvalidValue, interfaces.ErrorCodeInvalidValue},
		{ErrInvalidParameter, interfaces.ErrorCodeInvalidParameter},
		{ErrUnknown, interfaces.ErrorCodeUnknown},
		{ErrProcessFailed, interfaces.ErrorCodeProcessFailed},
		{ErrInitialization, interfaces.ErrorCodeInitialization},
		{errors.New("foreign"), interfaces.ErrorCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
