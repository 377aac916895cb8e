package bufferqueue

import (
	"fmt"

	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// Consumer is the consumer endpoint of a Queue. It implements surface.ConsumerSurface.
type Consumer struct {
	q *Queue
}

var _ surface.ConsumerSurface = (*Consumer)(nil)

// UniqueID returns the ID of the underlying queue.
func (c *Consumer) UniqueID() uint64 { return c.q.id }

// Name returns the queue name.
func (c *Consumer) Name() string { return c.q.name }

// IsConsumer always returns true.
func (c *Consumer) IsConsumer() bool { return true }

// AcquireBuffer takes the oldest queued buffer.
func (c *Consumer) AcquireBuffer() (surface.BufferInfo, error) {
	q := c.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queued) == 0 {
		return surface.BufferInfo{}, surface.ErrNoBufferReady
	}
	seq := q.queued[0]
	q.queued = q.queued[1:]

	s := q.slots[seq]
	s.state = slotAcquired
	return surface.BufferInfo{
		Buffer:    s.buf,
		Flag:      s.flush.Flag,
		Timestamp: s.flush.Timestamp,
	}, nil
}

// ReleaseBuffer returns an acquired buffer to the free list and notifies the
// release listener. Buffers orphaned by CleanCache are dropped without notification.
func (c *Consumer) ReleaseBuffer(buf *surface.Buffer) error {
	q := c.q
	q.mu.Lock()

	if buf == nil {
		q.mu.Unlock()
		return fmt.Errorf("%w: nil buffer", surface.ErrInvalidArgument)
	}
	if orphan, ok := q.orphans[buf.SeqNum()]; ok && orphan == buf {
		delete(q.orphans, buf.SeqNum())
		q.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "Consumer.ReleaseBuffer",
			"queue":    q.name,
			"seq":      buf.SeqNum(),
		}).Debug("Dropped orphaned buffer on release")
		return nil
	}

	s, err := q.lookupLocked(buf)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if s.state != slotAcquired {
		q.mu.Unlock()
		return fmt.Errorf("%w: release of %s slot", surface.ErrInvalidBufferState, s.state)
	}
	s.state = slotFree
	q.freeList = append(q.freeList, buf.SeqNum())
	listener := q.releaseListener
	q.mu.Unlock()

	if listener != nil {
		if err := listener(buf); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Consumer.ReleaseBuffer",
				"queue":    q.name,
				"seq":      buf.SeqNum(),
				"error":    err.Error(),
			}).Warn("Release listener failed")
		}
	}
	return nil
}

// RegisterConsumerListener sets the listener called after every flush.
func (c *Consumer) RegisterConsumerListener(listener surface.ConsumerListener) error {
	if listener == nil {
		return fmt.Errorf("%w: nil consumer listener", surface.ErrInvalidArgument)
	}
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	c.q.consumerListener = listener
	return nil
}

// UnregisterConsumerListener removes the consumer listener.
func (c *Consumer) UnregisterConsumerListener() error {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	c.q.consumerListener = nil
	return nil
}

// SetDefaultUsage sets usage bits OR-ed into every request.
func (c *Consumer) SetDefaultUsage(usage uint64) error {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	c.q.usage = usage
	return nil
}

// SetDefaultRequestConfig sets the geometry used for requests that leave fields zero.
func (c *Consumer) SetDefaultRequestConfig(cfg surface.BufferRequestConfig) error {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	c.q.defaultCfg = cfg
	return nil
}

// SetQueueSize changes the slot count.
func (c *Consumer) SetQueueSize(size int) error {
	return c.q.setQueueSize(size)
}

// Transform returns the transform most recently set by the producer.
func (c *Consumer) Transform() surface.Transform {
	c.q.mu.Lock()
	defer c.q.mu.Unlock()
	return c.q.transform
}

// InputSurface returns the producer endpoint of the same queue.
func (c *Consumer) InputSurface() surface.ProducerSurface {
	return c.q.producer
}
