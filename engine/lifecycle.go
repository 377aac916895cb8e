package engine

import (
	"fmt"

	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// RegisterCallback sets the event receiver. Only allowed while idle.
func (e *Engine) RegisterCallback(cb interfaces.Callback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalidValue)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return fmt.Errorf("%w: register callback while %s", ErrInvalidOperation, e.state)
	}
	e.callback = cb
	return nil
}

// GetInputSurface creates the input surface on first use and returns its
// producer endpoint. Decoders flush frames into it. Only allowed while idle.
func (e *Engine) GetInputSurface() (surface.ProducerSurface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("%w: not initialized", ErrInvalidOperation)
	}
	if e.state != StateIdle {
		return nil, fmt.Errorf("%w: get input surface while %s", ErrInvalidOperation, e.state)
	}
	if e.consumer != nil {
		return e.consumer.InputSurface(), nil
	}

	consumer := e.newSurface(e.algo.Name()+"-input", e.config)
	if consumer == nil {
		return nil, fmt.Errorf("%w: input surface creation", ErrInitialization)
	}
	if err := consumer.SetDefaultUsage(e.config.InputUsage); err != nil {
		return nil, fmt.Errorf("%w: input surface usage: %v", ErrInitialization, err)
	}
	if err := consumer.RegisterConsumerListener(e.onConsumerBufferAvailable); err != nil {
		return nil, fmt.Errorf("%w: input surface listener: %v", ErrInitialization, err)
	}

	e.consumerMu.Lock()
	e.consumer = consumer
	e.consumerMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Engine.GetInputSurface",
		"feature":    e.algo.Name(),
		"surface_id": consumer.UniqueID(),
	}).Info("Input surface created")

	return consumer.InputSurface(), nil
}

// Start moves the engine from idle to running. The callback, the input surface
// and the output surface must all be in place.
func (e *Engine) Start() error {
	e.mu.Lock()

	if err := e.checkStartLocked(); err != nil {
		e.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Engine.Start",
			"feature":  e.algo.Name(),
			"error":    err.Error(),
		}).Error("Cannot start engine")
		return err
	}

	e.state = StateRunning
	cb := e.callback

	e.consumerMu.Lock()
	e.needPrepare = true
	e.consumerMu.Unlock()
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Start",
		"feature":  e.algo.Name(),
	}).Info("Engine started")

	cb.OnState(interfaces.AlgoStateRunning)
	e.kick()
	return nil
}

func (e *Engine) checkStartLocked() error {
	if !e.initialized {
		return fmt.Errorf("%w: not initialized", ErrInvalidOperation)
	}
	if e.state != StateIdle {
		return fmt.Errorf("%w: start while %s", ErrInvalidOperation, e.state)
	}
	if e.callback == nil {
		return fmt.Errorf("%w: no callback registered", ErrInvalidOperation)
	}
	if e.consumer == nil {
		return fmt.Errorf("%w: input surface not created", ErrInvalidOperation)
	}

	e.producerMu.Lock()
	defer e.producerMu.Unlock()
	if e.producer == nil {
		return fmt.Errorf("%w: output surface not set", ErrInvalidOperation)
	}
	return nil
}

// Stop asks the worker to go idle after its current pass. The worker reports
// AlgoStateStopped once it has done so.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: stop while %s", ErrInvalidOperation, state)
	}
	e.state = StateStopping
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Stop",
		"feature":  e.algo.Name(),
	}).Info("Engine stopping")

	e.kick()
	return nil
}

// Enable turns processing on. The request config is renegotiated with the
// algorithm for the current output surface.
func (e *Engine) Enable() error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return fmt.Errorf("%w: not initialized", ErrInvalidOperation)
	}
	if e.enabled.Load() {
		e.mu.Unlock()
		return nil
	}
	e.enabled.Store(true)
	e.effect.mark()
	cb := e.callback

	var events []event
	e.producerMu.Lock()
	if e.producer != nil {
		cfg := e.requestCfg
		if err := e.algo.UpdateRequestCfg(e.producer, &cfg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.Enable",
				"feature":  e.algo.Name(),
				"error":    err.Error(),
			}).Warn("Algorithm rejected request config update, keeping previous")
		} else {
			events = e.setRequestCfgLocked(cfg)
		}
	}
	e.producerMu.Unlock()
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Enable",
		"feature":  e.algo.Name(),
	}).Info("Processing enabled")

	dispatch(cb, events)
	e.kick()
	return nil
}

// Disable turns processing off. Frames are passed through to the output
// surface unmodified until Enable is called.
func (e *Engine) Disable() error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return fmt.Errorf("%w: not initialized", ErrInvalidOperation)
	}
	if !e.enabled.Load() {
		e.mu.Unlock()
		return nil
	}
	e.enabled.Store(false)
	e.effect.mark()
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Disable",
		"feature":  e.algo.Name(),
	}).Info("Processing disabled")

	e.kick()
	return nil
}

// IsEnabled reports whether frames go through the algorithm.
func (e *Engine) IsEnabled() bool {
	return e.enabled.Load()
}

// State returns the current run state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// NotifyEos queues an end-of-stream marker behind the frames already acquired.
func (e *Engine) NotifyEos() error {
	e.mu.Lock()
	if !e.initialized || e.consumer == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: no input surface", ErrInvalidOperation)
	}

	e.consumerMu.Lock()
	e.queues.consumer.push(surface.BufferInfo{Flag: surface.BufferFlagEOS})
	e.consumerMu.Unlock()
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.NotifyEos",
		"feature":  e.algo.Name(),
	}).Debug("End of stream queued")

	e.kick()
	return nil
}
