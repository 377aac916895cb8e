package engine

import (
	"fmt"
	"time"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/metrics"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// event is a callback invocation collected under lock and dispatched after.
type event func(cb interfaces.Callback)

func dispatch(cb interfaces.Callback, events []event) {
	if cb == nil {
		return
	}
	for _, ev := range events {
		ev(cb)
	}
}

func errorEvent(err error) event {
	return func(cb interfaces.Callback) { cb.OnError(err) }
}

func stateEvent(state interfaces.AlgoState) event {
	return func(cb interfaces.Callback) { cb.OnState(state) }
}

func availableEvent(index uint32, flag surface.BufferFlag) event {
	return func(cb interfaces.Callback) { cb.OnOutputBufferAvailable(index, flag) }
}

func formatEvent(format surface.PixelFormat) event {
	return func(cb interfaces.Callback) { cb.OnOutputFormatChanged(format) }
}

// run is the worker goroutine. It sleeps until triggered, quit, or the
// trigger timeout elapses.
func (e *Engine) run(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timeout := e.config.TriggerTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.run",
		"feature":  e.algo.Name(),
	}).Debug("Worker started")

	for {
		select {
		case <-quit:
			logrus.WithFields(logrus.Fields{
				"function": "Engine.run",
				"feature":  e.algo.Name(),
			}).Debug("Worker exiting")
			return
		case <-e.trigger:
		case <-timer.C:
			logrus.WithFields(logrus.Fields{
				"function": "Engine.run",
				"feature":  e.algo.Name(),
				"timeout":  timeout,
				"state":    e.State(),
			}).Warn("Worker woke on trigger timeout")
		}
		timer.Reset(timeout)

		e.processPass(quit)
	}
}

// processPass primes output buffers and processes pairs until either queue
// runs dry, the engine leaves the running state, or an EOS ends the pass.
func (e *Engine) processPass(quit <-chan struct{}) {
	if e.State() == StateRunning {
		e.prepareBuffers()

		for {
			select {
			case <-quit:
				return
			default:
			}
			if e.State() != StateRunning {
				break
			}

			res := e.step()
			dispatch(e.currentCallback(), res.events)
			if res.produced {
				e.emitEffectChange()
			}
			if !res.more {
				break
			}
		}
	}

	e.finishStopping()
}

// finishStopping completes a pending Stop.
func (e *Engine) finishStopping() {
	e.mu.Lock()
	if e.state != StateStopping {
		e.mu.Unlock()
		return
	}
	e.state = StateIdle
	cb := e.callback
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.finishStopping",
		"feature":  e.algo.Name(),
	}).Info("Engine stopped")

	if cb != nil {
		cb.OnState(interfaces.AlgoStateStopped)
	}
}

// prepareBuffers fills the producer queue up to the output queue size once
// after Start, a surface swap or a bypass flush.
func (e *Engine) prepareBuffers() {
	e.producerMu.Lock()
	defer e.producerMu.Unlock()

	e.consumerMu.Lock()
	need := e.needPrepare && e.producer != nil
	if need {
		e.needPrepare = false
	}
	e.consumerMu.Unlock()
	if !need {
		return
	}

	requested := 0
	for {
		e.bufferMu.Lock()
		queued := e.queues.producer.len()
		e.bufferMu.Unlock()
		if queued >= e.config.OutputQueueSize || !e.requestBufferLocked() {
			break
		}
		requested++
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Engine.prepareBuffers",
		"feature":   e.algo.Name(),
		"requested": requested,
	}).Debug("Output buffers primed")
}

// emitEffectChange reports a pending enable/disable edge after a produced frame.
func (e *Engine) emitEffectChange() {
	e.mu.Lock()
	enabled := e.enabled.Load()
	changed := e.effect.take(enabled)
	cb := e.callback
	e.mu.Unlock()

	if !changed || cb == nil {
		return
	}
	effect := interfaces.EffectNone
	if enabled {
		effect = e.algo.EffectType()
	}
	cb.OnEffectChange(effect)
}

type stepResult struct {
	events   []event
	produced bool
	more     bool
}

type pairStatus int

const (
	pairEmpty pairStatus = iota
	pairSentinel
	pairReady
)

// step processes one consumer/producer pair.
func (e *Engine) step() stepResult {
	var res stepResult

	e.producerMu.Lock()
	defer e.producerMu.Unlock()
	e.taskMu.Lock()
	defer e.taskMu.Unlock()

	p := e.producer
	if p == nil {
		return res
	}

	e.consumerMu.Lock()
	consumer := e.consumer
	backlog := e.queues.consumer.len()
	e.consumerMu.Unlock()
	if backlog == 0 || consumer == nil {
		return res
	}

	e.bufferMu.Lock()
	outputs := e.queues.producer.len()
	e.bufferMu.Unlock()
	if outputs == 0 {
		e.requestBufferLocked()
	}

	src, dst, status := e.popPair()
	switch status {
	case pairEmpty:
		return res
	case pairSentinel:
		res.more = true
		return res
	}

	if src.IsEOS() {
		return e.deliverEOSLocked(consumer, src, dst)
	}

	res.events = append(res.events, e.syncTransformLocked(p, consumer)...)

	var (
		out surface.BufferInfo
		err error
	)
	if e.enabled.Load() {
		out, err = e.processLocked(consumer, src, dst)
	} else {
		var cfgEvents []event
		out, cfgEvents, err = e.bypassLocked(p, consumer, src, dst)
		res.events = append(res.events, cfgEvents...)
	}
	res.more = true
	if err != nil {
		res.events = append(res.events, errorEvent(err))
		return res
	}

	if err := p.SetScalingMode(out.SeqNum(), e.config.ScalingMode); err != nil {
		e.warnSurface("Engine.step", "set scaling mode", err)
		res.events = append(res.events, errorEvent(fmt.Errorf("%w: scaling mode for buffer %d: %v", ErrUnknown, out.SeqNum(), err)))
	}

	e.bufferMu.Lock()
	e.queues.render[out.SeqNum()] = out
	pending := len(e.queues.render)
	e.bufferMu.Unlock()
	metrics.SetRenderPending(e.algo.Name(), pending)

	res.events = append(res.events, availableEvent(out.SeqNum(), out.Flag))
	res.produced = true
	return res
}

// popPair takes the oldest consumer and producer entries together. A cleared
// sentinel at the head of the consumer queue is dropped on its own.
func (e *Engine) popPair() (src, dst surface.BufferInfo, status pairStatus) {
	e.consumerMu.Lock()
	defer e.consumerMu.Unlock()
	e.bufferMu.Lock()
	defer e.bufferMu.Unlock()

	head, ok := e.queues.consumer.peek()
	if !ok {
		return src, dst, pairEmpty
	}
	if head.IsClearedSentinel() {
		e.queues.consumer.pop()
		return src, dst, pairSentinel
	}
	if e.queues.producer.len() == 0 {
		return src, dst, pairEmpty
	}

	src, _ = e.queues.consumer.pop()
	dst, _ = e.queues.producer.pop()
	return src, dst, pairReady
}

// deliverEOSLocked hands dst to the caller carrying the EOS flag and ends the pass.
func (e *Engine) deliverEOSLocked(consumer surface.ConsumerSurface, src, dst surface.BufferInfo) stepResult {
	if src.Buffer != nil {
		e.releaseToConsumer(consumer, []surface.BufferInfo{src})
	}

	out := surface.BufferInfo{Buffer: dst.Buffer, Flag: surface.BufferFlagEOS, Timestamp: src.Timestamp}
	e.bufferMu.Lock()
	e.queues.render[out.SeqNum()] = out
	pending := len(e.queues.render)
	e.bufferMu.Unlock()

	e.eos.Add(1)
	metrics.RecordEOS(e.algo.Name())
	metrics.SetRenderPending(e.algo.Name(), pending)

	logrus.WithFields(logrus.Fields{
		"function": "Engine.deliverEOS",
		"feature":  e.algo.Name(),
		"index":    out.SeqNum(),
	}).Info("End of stream delivered")

	return stepResult{
		events: []event{
			availableEvent(out.SeqNum(), surface.BufferFlagEOS),
			stateEvent(interfaces.AlgoStateEOS),
		},
	}
}

// processLocked runs the algorithm. The source always goes back to the input
// surface; on failure the destination returns to the head of the producer queue.
func (e *Engine) processLocked(consumer surface.ConsumerSurface, src, dst surface.BufferInfo) (surface.BufferInfo, error) {
	start := time.Now()
	err := e.algo.Process(src.Buffer, dst.Buffer)
	elapsed := time.Since(start)

	e.releaseToConsumer(consumer, []surface.BufferInfo{src})

	if err != nil {
		e.bufferMu.Lock()
		e.queues.producer.pushFront(dst)
		e.bufferMu.Unlock()

		e.failed.Add(1)
		metrics.RecordProcessFailure(e.algo.Name())
		logrus.WithFields(logrus.Fields{
			"function": "Engine.process",
			"feature":  e.algo.Name(),
			"src":      src.SeqNum(),
			"dst":      dst.SeqNum(),
			"error":    err.Error(),
		}).Warn("Algorithm failed, frame dropped")
		return surface.BufferInfo{}, fmt.Errorf("%w: %s: %v", ErrProcessFailed, e.algo.Name(), err)
	}

	e.processed.Add(1)
	metrics.RecordProcessed(e.algo.Name(), elapsed)
	return surface.BufferInfo{Buffer: dst.Buffer, Flag: src.Flag, Timestamp: src.Timestamp}, nil
}

// bypassLocked swaps dst out of the output surface and src in, so the input
// frame is displayed as is.
func (e *Engine) bypassLocked(p surface.ProducerSurface, consumer surface.ConsumerSurface, src, dst surface.BufferInfo) (surface.BufferInfo, []event, error) {
	if err := p.DetachBufferFromQueue(dst.Buffer); err != nil {
		e.bufferMu.Lock()
		e.queues.producer.pushFront(dst)
		e.bufferMu.Unlock()
		e.releaseToConsumer(consumer, []surface.BufferInfo{src})
		e.warnSurface("Engine.bypass", "detach output buffer", err)
		return surface.BufferInfo{}, nil, fmt.Errorf("%w: detach buffer %d: %v", ErrUnknown, dst.SeqNum(), err)
	}

	if err := p.AttachBufferToQueue(src.Buffer); err != nil {
		if reErr := p.AttachBufferToQueue(dst.Buffer); reErr == nil {
			e.bufferMu.Lock()
			e.queues.producer.pushFront(dst)
			e.bufferMu.Unlock()
		} else {
			e.warnSurface("Engine.bypass", "reattach output buffer", reErr)
		}
		e.releaseToConsumer(consumer, []surface.BufferInfo{src})
		e.warnSurface("Engine.bypass", "attach input buffer", err)
		return surface.BufferInfo{}, nil, fmt.Errorf("%w: attach buffer %d: %v", ErrUnknown, src.SeqNum(), err)
	}

	e.bufferMu.Lock()
	e.queues.attached[src.SeqNum()] = src
	e.bufferMu.Unlock()

	var events []event
	cfg := e.requestCfg
	if err := e.algo.UpdateRequestCfgFromBuffer(src.Buffer, &cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.bypass",
			"feature":  e.algo.Name(),
			"seq":      src.SeqNum(),
			"error":    err.Error(),
		}).Warn("Request config not updated from input buffer")
	} else {
		events = e.setRequestCfgLocked(cfg)
	}

	e.bypassed.Add(1)
	metrics.RecordBypassed(e.algo.Name())
	return src, events, nil
}

// syncTransformLocked copies the input transform to the output surface when it
// changed or a surface swap forced a resync.
func (e *Engine) syncTransformLocked(p surface.ProducerSurface, consumer surface.ConsumerSurface) []event {
	transform := consumer.Transform()
	if !e.forceUpdate && transform == e.lastTransform {
		return nil
	}
	if err := p.SetTransform(transform); err != nil {
		e.warnSurface("Engine.syncTransform", "set transform", err)
		return []event{errorEvent(fmt.Errorf("%w: set transform: %v", ErrUnknown, err))}
	}
	e.lastTransform = transform
	e.forceUpdate = false
	return nil
}

// setRequestCfgLocked stores cfg and reports a format change. producerMu must be held.
func (e *Engine) setRequestCfgLocked(cfg surface.BufferRequestConfig) []event {
	prev := e.requestCfg
	e.requestCfg = cfg
	if prev.Format == surface.PixelFormatUnknown || prev.Format == cfg.Format {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Engine.setRequestCfg",
		"feature":    e.algo.Name(),
		"old_format": prev.Format,
		"new_format": cfg.Format,
	}).Info("Output format changed")
	return []event{formatEvent(cfg.Format)}
}
