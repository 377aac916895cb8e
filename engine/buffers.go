package engine

import (
	"errors"
	"fmt"

	"github.com/opd-ai/vpe/metrics"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// onConsumerBufferAvailable is the input surface listener. It acquires the
// newly flushed frame into the consumer queue and wakes the worker.
func (e *Engine) onConsumerBufferAvailable() {
	e.consumerMu.Lock()
	consumer := e.consumer
	if consumer == nil {
		e.consumerMu.Unlock()
		return
	}
	info, err := consumer.AcquireBuffer()
	if err != nil {
		e.consumerMu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Engine.onConsumerBufferAvailable",
			"feature":  e.algo.Name(),
			"error":    err.Error(),
		}).Debug("Nothing to acquire from input surface")
		return
	}
	e.queues.consumer.push(info)
	e.consumerMu.Unlock()

	e.acquired.Add(1)
	e.kick()
}

// onProducerBufferReleased is the output surface release listener. The
// released buffer leaves the flush queue and a replacement is requested. A
// bypassed input buffer is detached and returned to the input surface at once,
// before a request with a different config could reallocate its slot.
func (e *Engine) onProducerBufferReleased(buf *surface.Buffer) error {
	e.producerMu.Lock()
	p := e.producer
	if p == nil {
		e.producerMu.Unlock()
		return nil
	}

	e.bufferMu.Lock()
	_, found := e.queues.flush.remove(buf)
	bypass := e.queues.takeAttached(buf)
	e.bufferMu.Unlock()
	if !found {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.onProducerBufferReleased",
			"feature":  e.algo.Name(),
			"seq":      buf.SeqNum(),
		}).Debug("Released buffer was not pending flush")
	}

	if bypass {
		if err := p.DetachBufferFromQueue(buf); err != nil {
			e.warnSurface("Engine.onProducerBufferReleased", "detach bypass buffer", err)
		}
		e.cacheForConsumer(surface.BufferInfo{Buffer: buf})
	}

	e.requestBufferLocked()
	e.producerMu.Unlock()

	e.kick()
	return nil
}

// requestBufferLocked requests one output buffer into the producer queue.
// A bypassed input buffer handed back by the output surface is detached and
// returned to the input surface instead, and one more request is made.
// producerMu must be held.
func (e *Engine) requestBufferLocked() bool {
	p := e.producer
	if p == nil {
		return false
	}
	got := false

	// Each bypass buffer handed back costs one attempt; the surface holds at
	// most QueueSize of them plus the attached ones beyond its size.
	attempts := p.QueueSize() + e.attachedCount() + 1
	for attempt := 0; attempt < attempts && !got; attempt++ {
		buf, err := p.RequestBuffer(e.requestCfg)
		if err != nil {
			if !errors.Is(err, surface.ErrNoBuffer) {
				e.warnSurface("Engine.requestBuffer", "request buffer", err)
			}
			break
		}
		e.requested.Add(1)

		e.bufferMu.Lock()
		bypass := e.queues.takeAttached(buf)
		if !bypass {
			e.queues.producer.push(surface.BufferInfo{Buffer: buf})
			got = true
		}
		e.bufferMu.Unlock()

		if bypass {
			if err := p.DetachBufferFromQueue(buf); err != nil {
				e.warnSurface("Engine.requestBuffer", "detach bypass buffer", err)
			}
			e.bufferMu.Lock()
			e.queues.attach.push(surface.BufferInfo{Buffer: buf})
			e.bufferMu.Unlock()
		}
	}

	e.drainAttachCache()
	return got
}

func (e *Engine) attachedCount() int {
	e.bufferMu.Lock()
	defer e.bufferMu.Unlock()
	return len(e.queues.attached)
}

// cacheForConsumer queues a bypass buffer for release to the input surface and
// drains the cache. bufferMu and consumerMu must not be held.
func (e *Engine) cacheForConsumer(info surface.BufferInfo) {
	e.bufferMu.Lock()
	e.queues.attach.push(info)
	e.bufferMu.Unlock()
	e.drainAttachCache()
}

// drainAttachCache returns cached bypass buffers to the input surface. Buffers
// that could not be released stay cached. bufferMu and consumerMu must not be held.
func (e *Engine) drainAttachCache() {
	e.bufferMu.Lock()
	pending := e.queues.attach.drain()
	e.bufferMu.Unlock()
	if len(pending) == 0 {
		return
	}

	failed := e.releaseToConsumer(e.consumerSurface(), pending)
	if len(failed) == 0 {
		return
	}
	e.bufferMu.Lock()
	for _, info := range failed {
		e.queues.attach.push(info)
	}
	e.bufferMu.Unlock()
}

// releaseToConsumer hands input buffers back to the input surface. It returns
// the entries worth retrying. bufferMu and consumerMu must not be held.
func (e *Engine) releaseToConsumer(consumer surface.ConsumerSurface, infos []surface.BufferInfo) []surface.BufferInfo {
	var failed []surface.BufferInfo
	for _, info := range infos {
		if info.Buffer == nil {
			continue
		}
		if consumer == nil {
			failed = append(failed, info)
			continue
		}
		if err := consumer.ReleaseBuffer(info.Buffer); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.releaseToConsumer",
				"feature":  e.algo.Name(),
				"seq":      info.SeqNum(),
				"error":    err.Error(),
			}).Warn("Failed to release buffer to input surface")
			if !errors.Is(err, surface.ErrBufferNotFound) {
				failed = append(failed, info)
			}
		}
	}
	return failed
}

// ReleaseOutputBuffer answers OnOutputBufferAvailable. With render the buffer
// is flushed to the output surface at its original timestamp; without, it is
// recycled.
func (e *Engine) ReleaseOutputBuffer(index uint32, render bool) error {
	return e.renderOutputBuffer(index, render, 0, false)
}

// RenderOutputBufferAtTime flushes an available output buffer with an explicit
// presentation timestamp in microseconds.
func (e *Engine) RenderOutputBufferAtTime(index uint32, timestamp int64) error {
	return e.renderOutputBuffer(index, true, timestamp, true)
}

func (e *Engine) renderOutputBuffer(index uint32, render bool, timestamp int64, useTimestamp bool) error {
	e.producerMu.Lock()
	p := e.producer

	e.bufferMu.Lock()
	info, ok := e.queues.takeRender(index)
	if ok && render {
		e.queues.flush.push(info)
	}
	pending := len(e.queues.render)
	e.bufferMu.Unlock()

	if !ok {
		e.producerMu.Unlock()
		return fmt.Errorf("%w: output buffer %d is not pending", ErrInvalidParameter, index)
	}
	metrics.SetRenderPending(e.algo.Name(), pending)

	if p == nil {
		if render {
			e.bufferMu.Lock()
			e.queues.flush.remove(info.Buffer)
			e.bufferMu.Unlock()
		}
		e.recycleLocked(nil, info)
		e.producerMu.Unlock()
		return fmt.Errorf("%w: no output surface for buffer %d", ErrInvalidOperation, index)
	}
	metrics.RecordRelease(e.algo.Name(), render)

	if !render {
		e.recycleLocked(p, info)
		e.producerMu.Unlock()
		e.kick()
		return nil
	}
	e.producerMu.Unlock()

	// The output surface may call back into onProducerBufferReleased
	// synchronously, so the flush happens with no engine lock held.
	if !useTimestamp {
		timestamp = info.Timestamp
	}
	flushCfg := surface.FlushConfig{
		Timestamp: timestamp,
		Damage:    surface.Rect{W: info.Buffer.Width, H: info.Buffer.Height},
		Flag:      info.Flag,
	}
	err := p.FlushBuffer(info.Buffer, flushCfg)
	if err == nil {
		return nil
	}

	e.warnSurface("Engine.renderOutputBuffer", "flush buffer", err)

	e.producerMu.Lock()
	e.bufferMu.Lock()
	_, stillPending := e.queues.flush.remove(info.Buffer)
	e.bufferMu.Unlock()
	if stillPending && e.producer == p {
		e.recycleLocked(p, info)
	}
	e.producerMu.Unlock()
	e.kick()

	return fmt.Errorf("%w: flush buffer %d: %v", ErrUnknown, index, err)
}

// recycleLocked returns an unrendered buffer to where it came from: output
// buffers to the producer queue, bypassed input buffers to the input surface.
// With no output surface, output buffers wait in the producer queue for the
// next SetOutputSurface to attach them. producerMu must be held.
func (e *Engine) recycleLocked(p surface.ProducerSurface, info surface.BufferInfo) {
	e.bufferMu.Lock()
	bypass := e.queues.takeAttached(info.Buffer)
	if !bypass {
		e.queues.producer.push(surface.BufferInfo{Buffer: info.Buffer})
	}
	e.bufferMu.Unlock()

	if !bypass {
		return
	}
	if p != nil {
		if err := p.DetachBufferFromQueue(info.Buffer); err != nil {
			e.warnSurface("Engine.recycle", "detach bypass buffer", err)
		}
	}
	e.cacheForConsumer(surface.BufferInfo{Buffer: info.Buffer})
}

// Flush drops the work in flight. It waits for the current processing step.
//
// While enabled, acquired frames go back to the input surface and render-pending
// output buffers go back to the producer queue. While disabled, the output
// surface cache is cleaned, every queue is cleared and output buffers are
// requested again.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return fmt.Errorf("%w: not initialized", ErrInvalidOperation)
	}

	e.producerMu.Lock()
	defer e.producerMu.Unlock()
	e.taskMu.Lock()
	defer e.taskMu.Unlock()

	e.consumerMu.Lock()
	consumer := e.consumer
	releases := e.queues.consumer.drain()
	e.consumerMu.Unlock()

	enabled := e.enabled.Load()
	var dropped int

	e.bufferMu.Lock()
	output, bypass := e.queues.splitBypass(e.queues.drainRender())
	releases = append(releases, e.queues.attach.drain()...)
	if enabled {
		for _, info := range output {
			e.queues.producer.push(surface.BufferInfo{Buffer: info.Buffer})
		}
	} else {
		_, flushedBypass := e.queues.splitBypass(e.queues.flush.drain())
		bypass = append(bypass, flushedBypass...)
		for _, info := range e.queues.attached {
			bypass = append(bypass, info)
		}
		e.queues.attached = make(map[uint32]surface.BufferInfo)
		dropped = e.queues.producer.len() + len(output)
		e.queues.producer.drain()
	}
	e.bufferMu.Unlock()
	metrics.SetRenderPending(e.algo.Name(), 0)

	if e.producer != nil {
		if enabled {
			for _, info := range bypass {
				if err := e.producer.DetachBufferFromQueue(info.Buffer); err != nil {
					e.warnSurface("Engine.Flush", "detach bypass buffer", err)
				}
			}
		} else if err := e.producer.CleanCache(); err != nil {
			e.warnSurface("Engine.Flush", "clean output cache", err)
		}
	}
	releases = append(releases, bypass...)
	e.releaseToConsumer(consumer, releases)

	if !enabled {
		e.consumerMu.Lock()
		e.needPrepare = true
		e.consumerMu.Unlock()
	}

	logrus.WithFields(logrus.Fields{
		"function":          "Engine.Flush",
		"feature":           e.algo.Name(),
		"enabled":           enabled,
		"released_to_input": len(releases),
		"dropped_output":    dropped,
	}).Info("Engine flushed")

	e.kick()
	return nil
}
