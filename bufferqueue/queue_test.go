package bufferqueue

import (
	"errors"
	"sync"
	"testing"

	"github.com/opd-ai/vpe/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smallCfg = surface.BufferRequestConfig{Width: 32, Height: 16, Format: surface.PixelFormatI420}

func TestRequestFlushAcquireRelease(t *testing.T) {
	q := New("test", WithQueueSize(2))
	producer := q.Producer()
	consumer := q.Consumer()

	available := 0
	require.NoError(t, consumer.RegisterConsumerListener(func() { available++ }))

	var released []*surface.Buffer
	require.NoError(t, producer.RegisterReleaseListener(func(buf *surface.Buffer) error {
		released = append(released, buf)
		return nil
	}))

	buf, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)
	require.NoError(t, producer.FlushBuffer(buf, surface.FlushConfig{Timestamp: 1234}))
	assert.Equal(t, 1, available)

	info, err := consumer.AcquireBuffer()
	require.NoError(t, err)
	assert.Same(t, buf, info.Buffer)
	assert.Equal(t, int64(1234), info.Timestamp)
	assert.Equal(t, surface.BufferFlagNone, info.Flag)

	_, err = consumer.AcquireBuffer()
	assert.ErrorIs(t, err, surface.ErrNoBufferReady)

	require.NoError(t, consumer.ReleaseBuffer(buf))
	require.Len(t, released, 1)
	assert.Same(t, buf, released[0])

	// The freed slot is reused for a matching request
	again, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)
	assert.Same(t, buf, again)
}

func TestRequestBufferExhaustion(t *testing.T) {
	q := New("test", WithQueueSize(2))
	producer := q.Producer()

	_, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)
	second, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)

	_, err = producer.RequestBuffer(smallCfg)
	assert.ErrorIs(t, err, surface.ErrNoBuffer)

	require.NoError(t, producer.CancelBuffer(second))
	again, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)
	assert.Same(t, second, again)
}

func TestRequestBufferReallocatesOnConfigChange(t *testing.T) {
	q := New("test", WithQueueSize(1))
	producer := q.Producer()

	buf, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)
	require.NoError(t, producer.CancelBuffer(buf))

	bigger := smallCfg
	bigger.Width = 64
	next, err := producer.RequestBuffer(bigger)
	require.NoError(t, err)
	assert.NotEqual(t, buf.SeqNum(), next.SeqNum())
	assert.Equal(t, 64, next.Width)
	assert.Equal(t, 1, q.Stats().Total)
}

func TestRequestBufferKeepsAttachedSlots(t *testing.T) {
	source := New("source")
	q := New("test", WithQueueSize(1))
	producer := q.Producer()

	foreign, err := source.Producer().RequestBuffer(smallCfg)
	require.NoError(t, err)
	require.NoError(t, producer.AttachBufferToQueue(foreign))
	require.NoError(t, producer.FlushBuffer(foreign, surface.FlushConfig{}))
	_, err = q.Consumer().AcquireBuffer()
	require.NoError(t, err)
	require.NoError(t, q.Consumer().ReleaseBuffer(foreign))
	require.Equal(t, 1, q.Stats().Free)

	bigger := smallCfg
	bigger.Width = 64
	_, err = producer.RequestBuffer(bigger)
	assert.ErrorIs(t, err, surface.ErrNoBuffer, "attached slots are not reallocated")
	assert.True(t, q.Contains(foreign))

	require.NoError(t, producer.DetachBufferFromQueue(foreign))
	next, err := producer.RequestBuffer(bigger)
	require.NoError(t, err)
	assert.Equal(t, 64, next.Width)
}

func TestRequestBufferUsesDefaults(t *testing.T) {
	q := New("test", WithDefaultRequestConfig(smallCfg))
	buf, err := q.Producer().RequestBuffer(surface.BufferRequestConfig{})
	require.NoError(t, err)
	assert.Equal(t, smallCfg.Width, buf.Width)
	assert.Equal(t, smallCfg.Height, buf.Height)
	assert.Equal(t, surface.PixelFormatI420, buf.Format)
}

func TestAttachDetach(t *testing.T) {
	source := New("source")
	target := New("target", WithQueueSize(1))

	buf, err := source.Producer().RequestBuffer(smallCfg)
	require.NoError(t, err)

	require.NoError(t, target.Producer().AttachBufferToQueue(buf))
	assert.True(t, target.Contains(buf))
	assert.Equal(t, 1, target.Stats().Attached)

	err = target.Producer().AttachBufferToQueue(buf)
	assert.ErrorIs(t, err, surface.ErrInvalidBufferState)

	// An attached buffer can be flushed and acquired like any other
	require.NoError(t, target.Producer().FlushBuffer(buf, surface.FlushConfig{}))
	info, err := target.Consumer().AcquireBuffer()
	require.NoError(t, err)
	assert.Same(t, buf, info.Buffer)

	err = target.Producer().DetachBufferFromQueue(buf)
	assert.ErrorIs(t, err, surface.ErrInvalidBufferState, "acquired buffers cannot be detached")

	require.NoError(t, target.Consumer().ReleaseBuffer(buf))
	require.NoError(t, target.Producer().DetachBufferFromQueue(buf))
	assert.False(t, target.Contains(buf))
}

func TestCleanCacheOrphansAcquiredBuffers(t *testing.T) {
	q := New("test", WithQueueSize(3))
	producer := q.Producer()
	consumer := q.Consumer()

	releases := 0
	require.NoError(t, producer.RegisterReleaseListener(func(*surface.Buffer) error {
		releases++
		return nil
	}))

	held, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)
	require.NoError(t, producer.FlushBuffer(held, surface.FlushConfig{}))
	_, err = consumer.AcquireBuffer()
	require.NoError(t, err)

	_, err = producer.RequestBuffer(smallCfg)
	require.NoError(t, err)

	require.NoError(t, producer.CleanCache())
	st := q.Stats()
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, 1, st.Orphaned)

	require.NoError(t, consumer.ReleaseBuffer(held))
	assert.Equal(t, 0, releases, "orphans are dropped without notification")
	assert.Equal(t, 0, q.Stats().Orphaned)
}

func TestLookupChecksIdentity(t *testing.T) {
	q := New("test")
	buf, err := q.Producer().RequestBuffer(smallCfg)
	require.NoError(t, err)

	impostor := *buf
	err = q.Producer().CancelBuffer(&impostor)
	assert.True(t, errors.Is(err, surface.ErrBufferNotFound))
}

func TestDisconnectedProducer(t *testing.T) {
	q := New("test")
	producer := q.Producer()
	buf, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)

	require.NoError(t, producer.Disconnect())
	_, err = producer.RequestBuffer(smallCfg)
	assert.ErrorIs(t, err, surface.ErrNotConnected)
	assert.ErrorIs(t, producer.FlushBuffer(buf, surface.FlushConfig{}), surface.ErrNotConnected)

	require.NoError(t, producer.Connect())
	assert.NoError(t, producer.FlushBuffer(buf, surface.FlushConfig{}))
}

func TestSetQueueSizeShrinksFreeSlots(t *testing.T) {
	q := New("test", WithQueueSize(4))
	producer := q.Producer()
	var bufs []*surface.Buffer
	for i := 0; i < 4; i++ {
		buf, err := producer.RequestBuffer(smallCfg)
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}
	for _, buf := range bufs {
		require.NoError(t, producer.CancelBuffer(buf))
	}

	require.NoError(t, producer.SetQueueSize(2))
	assert.Equal(t, 2, q.Stats().Total)
	assert.Error(t, producer.SetQueueSize(0))
}

func TestSetQueueSizeKeepsAttachedSlots(t *testing.T) {
	source := New("source")
	q := New("test", WithQueueSize(2))
	producer := q.Producer()

	own, err := producer.RequestBuffer(smallCfg)
	require.NoError(t, err)
	foreign, err := source.Producer().RequestBuffer(smallCfg)
	require.NoError(t, err)
	require.NoError(t, producer.AttachBufferToQueue(foreign))

	// The attached slot is the oldest free one
	require.NoError(t, producer.CancelBuffer(foreign))
	require.NoError(t, producer.CancelBuffer(own))

	require.NoError(t, producer.SetQueueSize(1))
	assert.True(t, q.Contains(foreign))
	assert.False(t, q.Contains(own))
	assert.Equal(t, 1, q.Stats().Total)
}

func TestEndpointsShareIdentity(t *testing.T) {
	q := New("identity")
	assert.Equal(t, q.Producer().UniqueID(), q.Consumer().UniqueID())
	assert.False(t, q.Producer().IsConsumer())
	assert.True(t, q.Consumer().IsConsumer())
	assert.Same(t, q.Producer(), q.Consumer().InputSurface())

	other := New("other")
	assert.NotEqual(t, q.Producer().UniqueID(), other.Producer().UniqueID())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New("concurrent", WithQueueSize(4))
	producer := q.Producer()
	consumer := q.Consumer()

	const frames = 200
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		sent := 0
		for sent < frames {
			buf, err := producer.RequestBuffer(smallCfg)
			if err != nil {
				continue
			}
			if err := producer.FlushBuffer(buf, surface.FlushConfig{Timestamp: int64(sent)}); err == nil {
				sent++
			}
		}
	}()

	go func() {
		defer wg.Done()
		received := 0
		for received < frames {
			info, err := consumer.AcquireBuffer()
			if err != nil {
				continue
			}
			assert.Equal(t, int64(received), info.Timestamp, "frames must arrive in order")
			received++
			assert.NoError(t, consumer.ReleaseBuffer(info.Buffer))
		}
	}()

	wg.Wait()
	st := q.Stats()
	assert.Equal(t, st.Total, st.Free)
}
