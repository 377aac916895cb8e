package engine

import (
	"fmt"

	"github.com/opd-ai/vpe/metrics"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// SetOutputSurface sets or replaces the surface processed frames are rendered to.
//
// Buffers the engine still holds survive a replacement: render-pending and
// producer-queue buffers are attached to the new surface, and buffers that were
// flushed to the old surface are attached and reused as output buffers.
// Setting the current surface again is a no-op.
func (e *Engine) SetOutputSurface(s surface.ProducerSurface) error {
	if s == nil {
		return fmt.Errorf("%w: nil output surface", ErrInvalidValue)
	}
	if s.IsConsumer() {
		return fmt.Errorf("%w: output surface %q is a consumer endpoint", ErrInvalidValue, s.Name())
	}
	if !e.algo.IsProducerSurfaceValid(s) {
		return fmt.Errorf("%w: output surface %q rejected by %s", ErrInvalidValue, s.Name(), e.algo.Name())
	}

	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return fmt.Errorf("%w: not initialized", ErrInvalidOperation)
	}
	cb := e.callback

	e.producerMu.Lock()
	e.taskMu.Lock()
	events, swapped, err := e.swapOutputSurfaceLocked(s)
	e.taskMu.Unlock()
	e.producerMu.Unlock()
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if swapped {
		dispatch(cb, events)
		e.kick()
	}
	return nil
}

func (e *Engine) swapOutputSurfaceLocked(s surface.ProducerSurface) ([]event, bool, error) {
	old := e.producer
	if old != nil && old.UniqueID() == s.UniqueID() {
		return nil, false, nil
	}

	// The old surface stays in place until the new one accepts the listener.
	if err := s.RegisterReleaseListener(e.onProducerBufferReleased); err != nil {
		return nil, false, fmt.Errorf("%w: register release listener on %q: %v", ErrUnknown, s.Name(), err)
	}

	if old != nil {
		if err := old.UnregisterReleaseListener(); err != nil {
			e.warnSurface("Engine.SetOutputSurface", "unregister release listener", err)
		}
		if err := old.CleanCache(); err != nil {
			e.warnSurface("Engine.SetOutputSurface", "clean old output cache", err)
		}
	}
	if err := s.SetQueueSize(e.config.OutputQueueSize); err != nil {
		e.warnSurface("Engine.SetOutputSurface", "set queue size", err)
	}
	if err := s.Connect(); err != nil {
		e.warnSurface("Engine.SetOutputSurface", "connect", err)
	}
	if err := s.CleanCache(); err != nil {
		e.warnSurface("Engine.SetOutputSurface", "clean new output cache", err)
	}

	e.producer = s
	e.forceUpdate = true

	reattached, releases := e.reattachLocked(s)
	e.releaseToConsumer(e.consumerSurface(), releases)

	cfg := e.requestCfg
	if cfg == (surface.BufferRequestConfig{}) {
		cfg = s.DefaultRequestConfig()
	}
	if e.enabled.Load() {
		if err := e.algo.UpdateRequestCfg(s, &cfg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.SetOutputSurface",
				"feature":  e.algo.Name(),
				"error":    err.Error(),
			}).Warn("Algorithm rejected request config update, keeping previous")
		}
	}
	events := e.setRequestCfgLocked(cfg)

	e.consumerMu.Lock()
	e.needPrepare = true
	e.consumerMu.Unlock()

	if old != nil {
		metrics.RecordSurfaceSwap(e.algo.Name())
	}

	logrus.WithFields(logrus.Fields{
		"function":          "Engine.SetOutputSurface",
		"feature":           e.algo.Name(),
		"surface_id":        s.UniqueID(),
		"replaced":          old != nil,
		"reattached":        reattached,
		"released_to_input": len(releases),
		"width":             cfg.Width,
		"height":            cfg.Height,
		"format":            cfg.Format,
	}).Info("Output surface set")

	return events, true, nil
}

// reattachLocked moves every held buffer into the new output surface. It
// returns the number of buffers attached and the bypassed input buffers that
// must go back to the input surface. producerMu must be held.
func (e *Engine) reattachLocked(s surface.ProducerSurface) (int, []surface.BufferInfo) {
	e.bufferMu.Lock()
	defer e.bufferMu.Unlock()

	attached := 0
	var releases []surface.BufferInfo

	for index, info := range e.queues.render {
		if err := s.AttachBufferToQueue(info.Buffer); err != nil {
			e.warnSurface("Engine.reattach", "attach render-pending buffer", err)
			delete(e.queues.render, index)
			if e.queues.takeAttached(info.Buffer) {
				releases = append(releases, info)
			}
			continue
		}
		attached++
	}

	kept := e.queues.producer.drain()
	for _, info := range kept {
		if err := s.AttachBufferToQueue(info.Buffer); err != nil {
			e.warnSurface("Engine.reattach", "attach producer buffer", err)
			continue
		}
		e.queues.producer.push(info)
		attached++
	}

	// The old surface will never release what was flushed to it
	output, bypass := e.queues.splitBypass(e.queues.flush.drain())
	releases = append(releases, bypass...)
	for _, info := range output {
		if err := s.AttachBufferToQueue(info.Buffer); err != nil {
			e.warnSurface("Engine.reattach", "attach flushed buffer", err)
			continue
		}
		e.queues.producer.push(surface.BufferInfo{Buffer: info.Buffer})
		attached++
	}

	for seq, info := range e.queues.attached {
		if pending, ok := e.queues.render[seq]; ok && pending.Buffer == info.Buffer {
			continue
		}
		delete(e.queues.attached, seq)
		releases = append(releases, info)
	}

	return attached, releases
}
