// Package vpe implements a video post-processing engine that sits between a
// video decoder and a display.
//
// The decoder renders frames into the engine's input surface. A worker
// goroutine pairs every decoded frame with a free output buffer, runs the
// configured feature (detail enhancement, AI-HDR or color space conversion)
// and reports the result through OnOutputBufferAvailable. The client then
// releases the output buffer, either rendering it to the output surface or
// recycling it. When processing is disabled, input frames are attached to
// the output surface unchanged.
//
// # Getting Started
//
//	video, err := vpe.Create("detail-enhancement")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer video.Release()
//
//	video.RegisterCallback(&interfaces.CallbackFuncs{
//	    OutputBufferAvailable: func(index uint32, flag surface.BufferFlag) {
//	        video.ReleaseOutputBuffer(index, true)
//	    },
//	})
//
//	input, err := video.GetInputSurface()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := video.SetOutputSurface(display); err != nil {
//	    log.Fatal(err)
//	}
//	if err := video.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// The decoder then requests buffers from input, fills them and flushes them.
// Call NotifyEos after the last frame.
//
// # Packages
//
//   - engine: the buffer queue state machine and worker
//   - algorithm: the processing features
//   - bufferqueue: an in-process implementation of both surface endpoints
//   - factory: configuration and feature selection
//   - metrics: Prometheus instrumentation
//
// # Thread Safety
//
// All methods are safe for concurrent use. Callbacks run on the engine worker
// without engine locks held, so they may call back into the Video.
package vpe
