package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/vpe/bufferqueue"
	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/metrics"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// ConsumerFactory creates the input surface returned by GetInputSurface.
type ConsumerFactory func(name string, cfg interfaces.VideoConfig) surface.ConsumerSurface

// Engine drives one algorithm between an input and an output surface.
type Engine struct {
	algo       interfaces.Algorithm
	config     interfaces.VideoConfig
	newSurface ConsumerFactory

	mu          sync.Mutex
	initialized bool
	state       State
	callback    interfaces.Callback
	effect      effectEdge
	enabled     atomic.Bool
	quit        chan struct{}
	done        chan struct{}

	producerMu    sync.Mutex
	producer      surface.ProducerSurface
	requestCfg    surface.BufferRequestConfig
	forceUpdate   bool
	lastTransform surface.Transform

	taskMu sync.Mutex

	consumerMu  sync.Mutex
	consumer    surface.ConsumerSurface
	needPrepare bool

	bufferMu sync.Mutex
	queues   *bufferQueueSet

	trigger chan struct{}

	acquired  atomic.Uint64
	requested atomic.Uint64
	processed atomic.Uint64
	bypassed  atomic.Uint64
	failed    atomic.Uint64
	eos       atomic.Uint64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg interfaces.VideoConfig) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithConsumerFactory replaces the in-process input surface.
func WithConsumerFactory(factory ConsumerFactory) Option {
	return func(e *Engine) {
		e.newSurface = factory
	}
}

func defaultConsumerFactory(name string, cfg interfaces.VideoConfig) surface.ConsumerSurface {
	return bufferqueue.New(name, bufferqueue.WithQueueSize(cfg.InputQueueSize)).Consumer()
}

// New creates an engine for algo. The engine must be initialized before use.
func New(algo interfaces.Algorithm, opts ...Option) (*Engine, error) {
	if algo == nil {
		return nil, fmt.Errorf("%w: nil algorithm", ErrInvalidValue)
	}

	e := &Engine{
		algo:       algo,
		config:     interfaces.DefaultVideoConfig(),
		newSurface: defaultConsumerFactory,
		queues:     newBufferQueueSet(),
		trigger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if e.newSurface == nil {
		return nil, fmt.Errorf("%w: nil consumer factory", ErrInvalidValue)
	}

	logrus.WithFields(logrus.Fields{
		"function":          "engine.New",
		"feature":           algo.Name(),
		"output_queue_size": e.config.OutputQueueSize,
		"trigger_timeout":   e.config.TriggerTimeout,
		"start_enabled":     e.config.StartEnabled,
	}).Debug("Engine created")

	return e, nil
}

// Feature returns the algorithm name.
func (e *Engine) Feature() string {
	return e.algo.Name()
}

// Config returns the engine configuration.
func (e *Engine) Config() interfaces.VideoConfig {
	return e.config
}

// Initialize runs the algorithm's OnInitialize and starts the worker goroutine.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return fmt.Errorf("%w: already initialized", ErrInvalidOperation)
	}

	if err := e.algo.OnInitialize(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.Initialize",
			"feature":  e.algo.Name(),
			"error":    err.Error(),
		}).Error("Algorithm initialization failed")
		return fmt.Errorf("%w: %s: %v", ErrInitialization, e.algo.Name(), err)
	}

	e.state = StateIdle
	e.enabled.Store(e.config.StartEnabled)
	e.effect = newEffectEdge(e.config.StartEnabled)
	e.quit = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(e.quit, e.done)
	e.initialized = true

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Initialize",
		"feature":  e.algo.Name(),
		"enabled":  e.config.StartEnabled,
	}).Info("Engine initialized")

	return nil
}

// Deinitialize stops the worker, detaches both surfaces and drops every queued
// buffer. No callback fires after it returns. Calling it again is a no-op.
func (e *Engine) Deinitialize() error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = false
	quit, done := e.quit, e.done
	e.mu.Unlock()

	close(quit)
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	e.producerMu.Lock()
	defer e.producerMu.Unlock()
	e.taskMu.Lock()
	defer e.taskMu.Unlock()

	if e.producer != nil {
		if err := e.producer.UnregisterReleaseListener(); err != nil {
			e.warnSurface("Engine.Deinitialize", "unregister release listener", err)
		}
		if err := e.producer.CleanCache(); err != nil {
			e.warnSurface("Engine.Deinitialize", "clean output cache", err)
		}
	}

	e.consumerMu.Lock()
	consumer := e.consumer
	releases := e.queues.consumer.drain()
	e.consumer = nil
	e.needPrepare = false
	e.consumerMu.Unlock()

	e.bufferMu.Lock()
	for _, info := range e.queues.attached {
		releases = append(releases, info)
	}
	releases = append(releases, e.queues.attach.drain()...)
	e.queues.producer.drain()
	e.queues.flush.drain()
	e.queues.render = make(map[uint32]surface.BufferInfo)
	e.queues.attached = make(map[uint32]surface.BufferInfo)
	e.bufferMu.Unlock()
	metrics.SetRenderPending(e.algo.Name(), 0)

	if consumer != nil {
		if err := consumer.UnregisterConsumerListener(); err != nil {
			e.warnSurface("Engine.Deinitialize", "unregister consumer listener", err)
		}
		e.releaseToConsumer(consumer, releases)
	}

	e.producer = nil
	e.requestCfg = surface.BufferRequestConfig{}
	e.forceUpdate = false
	e.callback = nil
	e.state = StateIdle

	if err := e.algo.OnDeinitialize(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.Deinitialize",
			"feature":  e.algo.Name(),
			"error":    err.Error(),
		}).Warn("Algorithm deinitialization failed")
	}

	logrus.WithFields(logrus.Fields{
		"function":          "Engine.Deinitialize",
		"feature":           e.algo.Name(),
		"released_to_input": len(releases),
	}).Info("Engine deinitialized")

	return nil
}

// Stats is a point-in-time view of the engine's queues and counters.
type Stats struct {
	State   State
	Enabled bool

	ConsumerQueued int
	ProducerQueued int
	RenderPending  int
	FlushPending   int
	AttachCached   int
	Attached       int

	Acquired  uint64
	Requested uint64
	Processed uint64
	Bypassed  uint64
	Failed    uint64
	EOS       uint64
}

// Held returns the number of buffers the engine currently owns or has handed
// to the caller.
func (s Stats) Held() int {
	return s.ConsumerQueued + s.ProducerQueued + s.RenderPending + s.FlushPending + s.AttachCached
}

// Stats returns a snapshot of the engine.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumerMu.Lock()
	defer e.consumerMu.Unlock()
	e.bufferMu.Lock()
	defer e.bufferMu.Unlock()

	return Stats{
		State:          e.state,
		Enabled:        e.enabled.Load(),
		ConsumerQueued: e.queues.consumer.len(),
		ProducerQueued: e.queues.producer.len(),
		RenderPending:  len(e.queues.render),
		FlushPending:   e.queues.flush.len(),
		AttachCached:   e.queues.attach.len(),
		Attached:       len(e.queues.attached),
		Acquired:       e.acquired.Load(),
		Requested:      e.requested.Load(),
		Processed:      e.processed.Load(),
		Bypassed:       e.bypassed.Load(),
		Failed:         e.failed.Load(),
		EOS:            e.eos.Load(),
	}
}

// kick wakes the worker. Triggers coalesce while one is pending.
func (e *Engine) kick() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

func (e *Engine) currentCallback() interfaces.Callback {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callback
}

// consumerSurface returns the input surface. bufferMu must not be held.
func (e *Engine) consumerSurface() surface.ConsumerSurface {
	e.consumerMu.Lock()
	defer e.consumerMu.Unlock()
	return e.consumer
}

func (e *Engine) warnSurface(function, op string, err error) {
	logrus.WithFields(logrus.Fields{
		"function":  function,
		"feature":   e.algo.Name(),
		"operation": op,
		"error":     err.Error(),
	}).Warn("Surface operation failed")
}
