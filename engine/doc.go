// Package engine implements the buffer-queue processing engine behind the
// vpe.Video facade.
//
// An Engine sits between two buffer queues. Frames flushed into its input
// surface are acquired into the consumer queue; output buffers requested from
// the output surface wait in the producer queue. A single worker goroutine
// pairs them oldest first and either runs the injected [interfaces.Algorithm]
// or, while processing is disabled, moves the input buffer straight into the
// output surface (bypass). Every result is parked in the render-pending map and
// announced through OnOutputBufferAvailable until the caller answers with
// ReleaseOutputBuffer or RenderOutputBufferAtTime.
//
//	eng, err := engine.New(feature)
//	if err != nil {
//	    return err
//	}
//	if err := eng.Initialize(); err != nil {
//	    return err
//	}
//	defer eng.Deinitialize()
//
//	eng.RegisterCallback(cb)
//	input, _ := eng.GetInputSurface()
//	eng.SetOutputSurface(display.Producer())
//	eng.Start()
//
// # Locking
//
// Five mutexes are always taken in the same order:
//
//	mu → producerMu → taskMu → consumerMu → bufferMu
//
// mu guards lifecycle state, the callback and the consumer surface pointer.
// producerMu guards the output surface and the cached request config. taskMu is
// held for one processing step so Flush and SetOutputSurface never observe a
// half-moved buffer. consumerMu guards the consumer queue and bufferMu the
// remaining queues. Surface calls that may re-enter the engine through a
// listener (FlushBuffer on the output surface) are made with no lock held.
//
// Callbacks are dispatched with no engine lock held, so a callback may call
// ReleaseOutputBuffer or RenderOutputBufferAtTime directly. Flush must not be
// called from a callback.
package engine
