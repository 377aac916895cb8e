package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/opd-ai/vpe/bufferqueue"
	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	vpetest "github.com/opd-ai/vpe/testing"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

var frameCfg = surface.BufferRequestConfig{Width: 32, Height: 16, Format: surface.PixelFormatI420}

// countingProducer counts flushes into an output surface.
type countingProducer struct {
	*bufferqueue.Producer
	flushes atomic.Int32
}

func (c *countingProducer) FlushBuffer(buf *surface.Buffer, cfg surface.FlushConfig) error {
	c.flushes.Add(1)
	return c.Producer.FlushBuffer(buf, cfg)
}

// consumerRole is a producer endpoint that claims to be a consumer.
type consumerRole struct {
	*bufferqueue.Producer
}

func (consumerRole) IsConsumer() bool { return true }

type harness struct {
	t     *testing.T
	algo  *vpetest.SimulatedAlgorithm
	cb    *vpetest.RecordingCallback
	eng   *Engine
	input surface.ProducerSurface
	inQ   *bufferqueue.Queue
	outQ  *bufferqueue.Queue
	out   *countingProducer
}

func newOutput(name string) (*bufferqueue.Queue, *countingProducer) {
	q := bufferqueue.New(name, bufferqueue.WithDefaultRequestConfig(frameCfg))
	return q, &countingProducer{Producer: q.Producer()}
}

// newHarness wires an initialized engine with callback, input and output
// surfaces. The engine is idle; call start to run it.
func newHarness(t *testing.T, mutate ...func(*interfaces.VideoConfig)) *harness {
	t.Helper()

	h := &harness{
		t:    t,
		algo: vpetest.NewSimulatedAlgorithm("sim"),
		cb:   vpetest.NewRecordingCallback(),
	}

	cfg := interfaces.DefaultVideoConfig()
	cfg.TriggerTimeout = 5 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	eng, err := New(h.algo,
		WithConfig(cfg),
		WithConsumerFactory(func(name string, cfg interfaces.VideoConfig) surface.ConsumerSurface {
			h.inQ = bufferqueue.New(name, bufferqueue.WithQueueSize(cfg.InputQueueSize))
			return h.inQ.Consumer()
		}),
	)
	require.NoError(t, err)
	require.NoError(t, eng.Initialize())
	t.Cleanup(func() { _ = eng.Deinitialize() })
	h.eng = eng

	require.NoError(t, eng.RegisterCallback(h.cb))
	h.input, err = eng.GetInputSurface()
	require.NoError(t, err)

	h.outQ, h.out = newOutput("display")
	require.NoError(t, eng.SetOutputSurface(h.out))
	return h
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.eng.Start())
	require.Eventually(h.t, func() bool {
		return h.eng.Stats().ProducerQueued == h.eng.Config().OutputQueueSize
	}, waitFor, tick, "output buffers should be primed")
}

// feed plays the decoder: it writes one frame into the input surface.
func (h *harness) feed(ts int64) *surface.Buffer {
	h.t.Helper()
	var buf *surface.Buffer
	require.Eventually(h.t, func() bool {
		var err error
		buf, err = h.input.RequestBuffer(frameCfg)
		return err == nil
	}, waitFor, tick, "input surface should have a free buffer")

	buf.Data[0] = byte(ts)
	require.NoError(h.t, h.input.FlushBuffer(buf, surface.FlushConfig{Timestamp: ts}))
	return buf
}

func (h *harness) waitAvailable(n int) []vpetest.AvailableRecord {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.cb.AvailableCount() >= n
	}, waitFor, tick, "expected %d available output buffers", n)
	return h.cb.Available()
}

// inputsHome reports whether every input buffer is back with the decoder.
func (h *harness) inputsHome() bool {
	st := h.inQ.Stats()
	return st.Acquired == 0 && st.Queued == 0
}

// displayReleasesImmediately makes the output consumer acquire and release
// every flushed buffer synchronously.
func (h *harness) displayReleasesImmediately(q *bufferqueue.Queue) {
	consumer := q.Consumer()
	require.NoError(h.t, consumer.RegisterConsumerListener(func() {
		info, err := consumer.AcquireBuffer()
		if err != nil {
			return
		}
		_ = consumer.ReleaseBuffer(info.Buffer)
	}))
}
