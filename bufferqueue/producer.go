package bufferqueue

import (
	"fmt"

	"github.com/opd-ai/vpe/limits"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// Producer is the producer endpoint of a Queue. It implements surface.ProducerSurface.
type Producer struct {
	q *Queue
}

var _ surface.ProducerSurface = (*Producer)(nil)

// UniqueID returns the ID of the underlying queue.
func (p *Producer) UniqueID() uint64 { return p.q.id }

// Name returns the queue name.
func (p *Producer) Name() string { return p.q.name }

// IsConsumer always returns false.
func (p *Producer) IsConsumer() bool { return false }

// RequestBuffer hands out a free buffer matching cfg.
//
// Free slots are reused oldest first. When no free slot matches and the queue
// is below its size a new buffer is allocated; when it is full the oldest free
// slot is reallocated with the new geometry.
func (p *Producer) RequestBuffer(cfg surface.BufferRequestConfig) (*surface.Buffer, error) {
	q := p.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.connected {
		return nil, surface.ErrNotConnected
	}

	cfg = q.resolveConfigLocked(cfg)

	for i, seq := range q.freeList {
		s := q.slots[seq]
		if s.buf.Matches(cfg) {
			q.freeList = append(q.freeList[:i], q.freeList[i+1:]...)
			s.state = slotRequested
			return s.buf, nil
		}
	}

	if len(q.slots) >= q.size {
		// Reallocate the oldest free slot with the new geometry. Attached
		// buffers belong to someone else and are never reallocated.
		stale, ok := q.takeOwnedFreeLocked()
		if !ok {
			return nil, surface.ErrNoBuffer
		}
		delete(q.slots, stale)
		delete(q.scaling, stale)

		logrus.WithFields(logrus.Fields{
			"function":  "Producer.RequestBuffer",
			"queue":     q.name,
			"stale_seq": stale,
			"width":     cfg.Width,
			"height":    cfg.Height,
			"format":    cfg.Format,
		}).Debug("Reallocating free slot for new request config")
	}

	buf, err := surface.NewBuffer(cfg)
	if err != nil {
		return nil, fmt.Errorf("allocate buffer in %q: %w", q.name, err)
	}
	q.slots[buf.SeqNum()] = &slot{buf: buf, state: slotRequested}
	return buf, nil
}

// CancelBuffer returns a requested buffer to the free list.
func (p *Producer) CancelBuffer(buf *surface.Buffer) error {
	q := p.q
	q.mu.Lock()
	defer q.mu.Unlock()

	s, err := q.lookupLocked(buf)
	if err != nil {
		return err
	}
	if s.state != slotRequested {
		return fmt.Errorf("%w: cancel of %s slot", surface.ErrInvalidBufferState, s.state)
	}
	s.state = slotFree
	q.freeList = append(q.freeList, buf.SeqNum())
	return nil
}

// FlushBuffer queues a requested buffer and notifies the consumer listener.
func (p *Producer) FlushBuffer(buf *surface.Buffer, cfg surface.FlushConfig) error {
	q := p.q
	q.mu.Lock()

	if !q.connected {
		q.mu.Unlock()
		return surface.ErrNotConnected
	}
	s, err := q.lookupLocked(buf)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if s.state != slotRequested {
		q.mu.Unlock()
		return fmt.Errorf("%w: flush of %s slot", surface.ErrInvalidBufferState, s.state)
	}
	s.state = slotQueued
	s.flush = cfg
	q.queued = append(q.queued, buf.SeqNum())
	listener := q.consumerListener
	q.mu.Unlock()

	if listener != nil {
		listener()
	}
	return nil
}

// AttachBufferToQueue adds a foreign buffer in the requested state.
// Attaching may exceed the queue size; the size only bounds allocation.
func (p *Producer) AttachBufferToQueue(buf *surface.Buffer) error {
	q := p.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if buf == nil {
		return fmt.Errorf("%w: nil buffer", surface.ErrInvalidArgument)
	}
	if s, ok := q.slots[buf.SeqNum()]; ok {
		if s.buf == buf {
			return fmt.Errorf("%w: %s already in %q", surface.ErrInvalidBufferState, buf, q.name)
		}
		return fmt.Errorf("%w: sequence %d collides in %q", surface.ErrInvalidBufferState, buf.SeqNum(), q.name)
	}
	delete(q.orphans, buf.SeqNum())
	q.slots[buf.SeqNum()] = &slot{buf: buf, state: slotRequested, attached: true}
	return nil
}

// DetachBufferFromQueue removes a requested or free buffer from the queue.
func (p *Producer) DetachBufferFromQueue(buf *surface.Buffer) error {
	q := p.q
	q.mu.Lock()
	defer q.mu.Unlock()

	s, err := q.lookupLocked(buf)
	if err != nil {
		return err
	}
	switch s.state {
	case slotRequested:
	case slotFree:
		q.removeFromFreeListLocked(buf.SeqNum())
	default:
		return fmt.Errorf("%w: detach of %s slot", surface.ErrInvalidBufferState, s.state)
	}
	delete(q.slots, buf.SeqNum())
	delete(q.scaling, buf.SeqNum())
	return nil
}

// RegisterReleaseListener sets the listener called when the consumer releases a buffer.
func (p *Producer) RegisterReleaseListener(listener surface.ReleaseListener) error {
	if listener == nil {
		return fmt.Errorf("%w: nil release listener", surface.ErrInvalidArgument)
	}
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	p.q.releaseListener = listener
	return nil
}

// UnregisterReleaseListener removes the release listener.
func (p *Producer) UnregisterReleaseListener() error {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	p.q.releaseListener = nil
	return nil
}

// SetQueueSize changes the slot count. Surplus free slots are dropped.
func (p *Producer) SetQueueSize(size int) error {
	return p.q.setQueueSize(size)
}

// QueueSize returns the slot count.
func (p *Producer) QueueSize() int {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	return p.q.size
}

// Connect marks the producer connected.
func (p *Producer) Connect() error {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	p.q.connected = true
	return nil
}

// Disconnect marks the producer disconnected; requests and flushes fail until Connect.
func (p *Producer) Disconnect() error {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	p.q.connected = false
	return nil
}

// CleanCache forgets every slot except the ones the consumer holds. Those become
// orphans and are dropped silently when released.
func (p *Producer) CleanCache() error {
	q := p.q
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for seq, s := range q.slots {
		if s.state == slotAcquired {
			q.orphans[seq] = s.buf
		}
		dropped++
	}
	q.slots = make(map[uint32]*slot)
	q.scaling = make(map[uint32]surface.ScalingMode)
	q.freeList = nil
	q.queued = nil

	logrus.WithFields(logrus.Fields{
		"function": "Producer.CleanCache",
		"queue":    q.name,
		"dropped":  dropped,
		"orphans":  len(q.orphans),
	}).Debug("Buffer queue cache cleaned")
	return nil
}

// SetTransform records the display transform for the consumer.
func (p *Producer) SetTransform(transform surface.Transform) error {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	p.q.transform = transform
	return nil
}

// Transform returns the current display transform.
func (p *Producer) Transform() surface.Transform {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	return p.q.transform
}

// SetScalingMode records the scaling mode for one buffer.
func (p *Producer) SetScalingMode(seq uint32, mode surface.ScalingMode) error {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	if _, ok := p.q.slots[seq]; !ok {
		return fmt.Errorf("%w: sequence %d", surface.ErrBufferNotFound, seq)
	}
	p.q.scaling[seq] = mode
	return nil
}

// ScalingMode returns the scaling mode recorded for a buffer.
func (p *Producer) ScalingMode(seq uint32) (surface.ScalingMode, bool) {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	mode, ok := p.q.scaling[seq]
	return mode, ok
}

// DefaultRequestConfig returns the queue's default geometry.
func (p *Producer) DefaultRequestConfig() surface.BufferRequestConfig {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	return p.q.defaultCfg
}

func (q *Queue) setQueueSize(size int) error {
	if err := limits.ValidateQueueSize(size); err != nil {
		return fmt.Errorf("%w: %v", surface.ErrInvalidArgument, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.size = size
	for len(q.slots) > q.size {
		seq, ok := q.takeOwnedFreeLocked()
		if !ok {
			break
		}
		delete(q.slots, seq)
		delete(q.scaling, seq)
	}
	return nil
}

// takeOwnedFreeLocked removes the oldest free slot that was not attached from
// the free list.
func (q *Queue) takeOwnedFreeLocked() (uint32, bool) {
	for i, seq := range q.freeList {
		if q.slots[seq].attached {
			continue
		}
		q.freeList = append(q.freeList[:i], q.freeList[i+1:]...)
		return seq, true
	}
	return 0, false
}
